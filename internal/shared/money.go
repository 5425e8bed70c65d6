package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Round2 rounds a monetary amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineAmount returns hours x rate rounded to cents.
func LineAmount(hours, rate decimal.Decimal) decimal.Decimal {
	return Round2(hours.Mul(rate))
}

var moneyPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatMoney renders an amount as USD with grouping for emails and documents.
func FormatMoney(d decimal.Decimal) string {
	f, _ := Round2(d).Float64()
	return moneyPrinter.Sprintf("$%v", number.Decimal(f, number.Scale(2)))
}
