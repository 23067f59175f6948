package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/sessiontrader/edge"
)

// FormatTradeOrg renders a trade as an Org-mode block. Structured facts go
// in the PROPERTIES drawer; the narrative headings are left empty.
func FormatTradeOrg(t edge.TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s (%s)\n", t.Module, t.Session, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":MODULE: %s\n", t.Module)
	fmt.Fprintf(&b, ":SESSION: %s\n", t.Session)
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.CloseTime.Format(time.RFC3339))
	fmt.Fprintf(&b, ":PNL: %.2f\n", t.PnL)
	fmt.Fprintf(&b, ":RISK: %.2f\n", t.Risk)
	fmt.Fprintf(&b, ":R: %.2f\n", t.R)
	fmt.Fprintf(&b, ":MFE: %.2f\n", t.MFE)
	fmt.Fprintf(&b, ":MAE: %.2f\n", t.MAE)
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []edge.TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
