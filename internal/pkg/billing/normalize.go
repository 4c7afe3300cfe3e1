package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

func normalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "usd"
	}
	return c
}

// toMinorUnits converts an amount to the provider's integer cents.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromMinorUnits converts provider cents back into a decimal amount.
func fromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
