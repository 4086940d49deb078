package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

// RenderTable writes the closed positions and the summary as console tables.
func RenderTable(w io.Writer, r *Report) {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Token", "Venue", "Reason", "Entry", "Exit", "Cost SOL", "P/L SOL", "Return", "Held")
	for i, p := range r.Closed {
		table.Append(
			fmt.Sprintf("%d", i+1),
			label(p.Symbol, p.Token),
			string(p.Venue),
			string(p.ExitReason),
			fmt.Sprintf("%.10f", p.EntryPrice),
			fmt.Sprintf("%.10f", p.ExitPrice),
			p.EntryCost.StringFixed(4),
			p.RealizedPnL().StringFixed(4),
			fmt.Sprintf("%+.1f%%", positionReturn(p)*100),
			p.ClosedAt.Sub(p.OpenedAt).Round(time.Second).String(),
		)
	}
	table.Render()

	s := r.Summary
	fmt.Fprintf(w, "\nClosed %d (won %d, lost %d, win rate %.1f%%) | active %d | failed %d\n",
		s.Closed, s.Wins, s.Losses, s.WinRate*100, s.Active, s.Failed)
	fmt.Fprintf(w, "Realized %s SOL on %s invested | median return %+.1f%% | max drawdown %.4f SOL\n",
		s.RealizedPnL.StringFixed(4), s.Invested.StringFixed(4), s.ReturnMedian*100, s.MaxDrawdown)

	if len(r.ByExitReason) > 0 {
		groups := tablewriter.NewWriter(w)
		groups.Header("Exit Reason", "Trades", "Wins", "Win Rate", "P/L SOL")
		for _, g := range r.ByExitReason {
			groups.Append(g.Key, fmt.Sprintf("%d", g.Trades), fmt.Sprintf("%d", g.Wins),
				fmt.Sprintf("%.1f%%", g.WinRate*100), g.RealizedPnL.StringFixed(4))
		}
		groups.Render()
	}
}

func label(symbol, token string) string {
	if symbol == "" {
		if len(token) > 12 {
			return token[:6] + ".." + token[len(token)-4:]
		}
		return token
	}
	return symbol
}
