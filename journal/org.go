package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/portfolio/ledger"
)

// FormatPositionOrg renders a closed position as an Org-mode block with the
// facts in a PROPERTIES drawer and empty review headings.
func FormatPositionOrg(p ledger.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Position: %s (%s)\n", p.Symbol, p.EntryDate.UTC().Format("2006-01-02"))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":SYMBOL: %s\n", p.Symbol)
	fmt.Fprintf(&b, ":STATUS: %s\n", p.Status)
	fmt.Fprintf(&b, ":ENTRY_DATE: %s\n", p.EntryDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.4f\n", p.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_DATE: %s\n", p.ExitDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":EXIT_PRICE: %.4f\n", p.ExitPrice)
	fmt.Fprintf(&b, ":REALIZED_PL: %.2f\n", p.RealizedPnL)
	fmt.Fprintf(&b, ":EXIT_REASON: %s\n", orDash(p.ExitReason))
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

// FormatPositionsOrg renders positions separated by blank lines.
func FormatPositionsOrg(ps []ledger.Position) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = FormatPositionOrg(p)
	}
	return strings.Join(parts, "\n\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
