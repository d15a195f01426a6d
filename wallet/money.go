package wallet

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.Mongolian)

// FormatAmount renders a tögrög amount with thousands separators and
// the trailing currency glyph, e.g. 12345 -> "12,345₮". Amounts are
// whole currency units; no fractional part is modelled.
func FormatAmount(n int64) string {
	return moneyPrinter.Sprintf("%d", n) + "₮"
}
