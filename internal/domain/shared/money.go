package shared

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in an ISO 4217 currency
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney creates Money from a float amount
func NewMoney(amount float64, currency string) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: strings.ToUpper(currency)}
}

// Add sums two amounts; the currency of m wins when o has none.
func (m Money) Add(o Money) Money {
	cur := m.Currency
	if cur == "" {
		cur = o.Currency
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: cur}
}

// Mul multiplies the amount by n
func (m Money) Mul(n int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(n))), Currency: m.Currency}
}
