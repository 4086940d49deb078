package alert

import (
	"fmt"
	"html"
	"strings"

	"solana-sniper/internal/domain"
)

var titles = map[domain.EventKind]string{
	domain.EventEntryFilled:     "Entry filled",
	domain.EventExitFilled:      "Exit filled",
	domain.EventExecutionFailed: "Execution failed",
	domain.EventEntryRejected:   "Entry rejected",
	domain.EventMigration:       "Curve migrated",
}

func title(kind domain.EventKind) string {
	if t, ok := titles[kind]; ok {
		return t
	}
	return string(kind)
}

func label(ev domain.Event) string {
	if ev.Symbol != "" {
		return ev.Symbol + " " + ev.Token
	}
	return ev.Token
}

// FormatText renders ev as a single log line.
func FormatText(ev domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", title(ev.Kind), label(ev))
	if ev.Venue != "" {
		fmt.Fprintf(&b, " on %s", ev.Venue)
	}
	if ev.Price > 0 {
		fmt.Fprintf(&b, " at %.10f SOL", ev.Price)
	}
	if ev.PnL != "" {
		fmt.Fprintf(&b, " pnl %s SOL", ev.PnL)
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, " (%s)", ev.Reason)
	}
	if ev.Signature != "" {
		fmt.Fprintf(&b, " tx %s", ev.Signature)
	}
	return b.String()
}

// FormatHTML renders ev for Telegram's HTML parse mode.
func FormatHTML(ev domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\nToken: <code>%s</code>", html.EscapeString(title(ev.Kind)), html.EscapeString(ev.Token))
	if ev.Symbol != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(ev.Symbol))
	}
	if ev.Venue != "" {
		fmt.Fprintf(&b, "\nVenue: %s", ev.Venue)
	}
	if ev.Price > 0 {
		fmt.Fprintf(&b, "\nPrice: %.10f SOL", ev.Price)
	}
	if ev.PnL != "" {
		fmt.Fprintf(&b, "\nPnL: %s SOL", html.EscapeString(ev.PnL))
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", html.EscapeString(ev.Reason))
	}
	if ev.Signature != "" {
		fmt.Fprintf(&b, "\nTx: <code>%s</code>", html.EscapeString(ev.Signature))
	}
	return b.String()
}
