package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	sb.WriteString("# Position Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Closed | %d |\n", s.Closed))
	sb.WriteString(fmt.Sprintf("| Active | %d |\n", s.Active))
	sb.WriteString(fmt.Sprintf("| Failed entries | %d |\n", s.Failed))
	sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", s.Wins, s.Losses))
	sb.WriteString(fmt.Sprintf("| Win rate | %.2f%% |\n", s.WinRate*100))
	sb.WriteString(fmt.Sprintf("| Invested (SOL) | %s |\n", s.Invested.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Realized P/L (SOL) | %s |\n", s.RealizedPnL.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Return mean / median | %.4f / %.4f |\n", s.ReturnMean, s.ReturnMedian))
	sb.WriteString(fmt.Sprintf("| Return P10 / P90 | %.4f / %.4f |\n", s.ReturnP10, s.ReturnP90))
	sb.WriteString(fmt.Sprintf("| Max drawdown (SOL) | %.4f |\n", s.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Max consecutive losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Average hold | %s |\n", s.AvgHold))
	sb.WriteString("\n")

	writeGroups(&sb, "By Exit Reason", r.ByExitReason)
	writeGroups(&sb, "By Venue", r.ByVenue)

	// Active positions
	sb.WriteString("## Active Positions\n\n")
	if len(r.Active) == 0 {
		sb.WriteString("None.\n\n")
	} else {
		sb.WriteString("| Token | Status | Venue | Entry (SOL) | Entry Price | Opened |\n")
		sb.WriteString("|-------|--------|-------|-------------|-------------|--------|\n")
		for _, p := range r.Active {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.10f | %s |\n",
				p.Token, p.Status, p.Venue, p.EntryCost.StringFixed(4), p.EntryPrice, p.OpenedAt.Format(time.RFC3339)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func writeGroups(sb *strings.Builder, title string, rows []GroupRow) {
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	if len(rows) == 0 {
		sb.WriteString("No closed positions.\n\n")
		return
	}
	sb.WriteString("| Key | Trades | Wins | Win Rate | P/L (SOL) | Median Return |\n")
	sb.WriteString("|-----|--------|------|----------|-----------|---------------|\n")
	for _, g := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f | %s | %.4f |\n",
			g.Key, g.Trades, g.Wins, g.WinRate, g.RealizedPnL.StringFixed(4), g.ReturnMedian))
	}
	sb.WriteString("\n")
}
