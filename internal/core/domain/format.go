package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DisplayTimeLayout is how vouchers and guardian mails print timestamps.
const DisplayTimeLayout = "02/01/2006 15:04:05"

var arPrinter = message.NewPrinter(language.MustParse("es-AR"))

// FormatARS renders amount for Argentine readers: "$ 1.234,50".
func FormatARS(amount decimal.Decimal) string {
	return arPrinter.Sprintf("$ %.2f", amount.Round(MaxScale).InexactFloat64())
}

// FormatLocal renders t in loc using DisplayTimeLayout.
func FormatLocal(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayTimeLayout)
}
