package core

import (
	"strings"

	"github.com/Rhymond/go-money"
)

// FormatAmount renders m for display in the given ISO currency,
// e.g. "₹1,234.56" for INR.
func FormatAmount(m Money, currency string) string {
	if strings.TrimSpace(currency) == "" {
		currency = DefaultCurrency
	}
	return money.New(m.Cents, strings.ToUpper(currency)).Display()
}

// FormatSigned prefixes the formatted amount with + for income and - for expense.
func FormatSigned(t Transaction, currency string) string {
	if t.IsIncome() {
		return "+" + FormatAmount(t.Amount, currency)
	}
	return "-" + FormatAmount(t.Amount, currency)
}
