package market

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var cnyPrinter = message.NewPrinter(language.Chinese)

// FormatCNY renders a decimal amount the way a Chinese brokerage statement
// groups it: a yuan sign followed by thousands-grouped digits at two
// decimal places, e.g. "¥1,234,567.89". Negative amounts keep their sign
// before the symbol.
func FormatCNY(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}
	return sign + "¥" + cnyPrinter.Sprint(number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
