package models

import "github.com/shopspring/decimal"

const CurrencyPrefix = "R$ "

// RoundMoney rounds to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatMoney renders a display string such as "R$ 12.34".
func FormatMoney(d decimal.Decimal) string {
	return CurrencyPrefix + d.StringFixed(2)
}
