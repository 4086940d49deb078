package reporting

import (
	"fmt"
	"strings"
	"time"

	"solana-sniper/internal/domain"
)

// RenderCSV renders positions as a CSV string, one row per position.
func RenderCSV(positions []*domain.Position) string {
	var sb strings.Builder

	sb.WriteString("id,token,symbol,status,entry_venue,venue,entry_cost_sol,entry_price,entry_token_amount,entry_tx,opened_at,")
	sb.WriteString("exit_reason,exit_price,exit_proceeds_sol,exit_tx,closed_at,realized_pnl_sol,fail_reason\n")

	for _, p := range positions {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%.12f,%d,%s,%s,%s,%.12f,%s,%s,%s,%s,%s\n",
			p.ID,
			p.Token,
			csvField(p.Symbol),
			p.Status,
			p.EntryVenue,
			p.Venue,
			p.EntryCost.String(),
			p.EntryPrice,
			p.EntryTokenAmount,
			p.EntryTx,
			formatTime(p.OpenedAt),
			p.ExitReason,
			p.ExitPrice,
			p.ExitProceeds.String(),
			p.ExitTx,
			formatTime(p.ClosedAt),
			p.RealizedPnL().String(),
			csvField(p.FailReason),
		))
	}

	return sb.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// csvField quotes free text that may carry separators.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
