package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"payment-platform/internal/domain"
)

// Money is an immutable currency-aware amount. The amount is stored in minor
// units (cents) to avoid floating-point error; every operation returns a new
// value and never mutates the receiver.
type Money struct {
	amount   int64 // minor units, never negative
	currency string
}

// minimumChargeable holds the provider-defined minimum chargeable amount per
// supported currency, in minor units. A currency absent from this map is
// unsupported.
var minimumChargeable = map[string]int64{
	"USD": 50,
	"EUR": 50,
	"GBP": 30,
	"CAD": 50,
	"AUD": 50,
}

// NewMoney builds a Money from minor units, validating currency support and
// the per-currency minimum chargeable amount.
func NewMoney(amountMinor int64, currency string) (Money, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	min, ok := minimumChargeable[cur]
	if !ok {
		return Money{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedCurrency, currency)
	}
	if amountMinor < min {
		return Money{}, fmt.Errorf("%w: %d < %d %s", domain.ErrAmountBelowMinimum, amountMinor, min, cur)
	}
	return Money{amount: amountMinor, currency: cur}, nil
}

// NewMoneyFromMajor builds a Money from a major-unit decimal (e.g. 10.99 USD),
// rounding half away from zero on an already cent-scaled value so binary-float
// drift (10.99*100 = 1098.999...) cannot lose a cent.
func NewMoneyFromMajor(amountMajor float64, currency string) (Money, error) {
	if amountMajor < 0 || math.IsNaN(amountMajor) || math.IsInf(amountMajor, 0) {
		return Money{}, fmt.Errorf("%w: major amount %v", domain.ErrInvalidArgument, amountMajor)
	}
	minor := int64(math.Round(amountMajor * 100))
	return NewMoney(minor, currency)
}

// RehydrateMoney rebuilds a Money from its persisted form without the minimum
// chargeable check: refund remainders and zero balances are legitimately below
// the chargeable minimum. For repositories and provider-reported amounts.
func RehydrateMoney(amountMinor int64, currency string) Money {
	return Money{amount: amountMinor, currency: strings.ToUpper(currency)}
}

func (m Money) MinorUnits() int64 { return m.amount }
func (m Money) Currency() string  { return m.currency }
func (m Money) IsZero() bool      { return m.amount == 0 }

// Major returns the amount as a major-unit decimal.
func (m Money) Major() float64 { return float64(m.amount) / 100 }

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.amount/100, m.amount%100, m.currency)
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%w: %s vs %s", domain.ErrCurrencyMismatch, m.currency, o.currency)
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount + o.amount, currency: m.currency}, nil
}

// Subtract returns m-o; it never produces a negative amount and fails instead.
func (m Money) Subtract(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	if o.amount > m.amount {
		return Money{}, fmt.Errorf("%w: %s - %s", domain.ErrNegativeResult, m, o)
	}
	return Money{amount: m.amount - o.amount, currency: m.currency}, nil
}

// Multiply scales the amount by a non-negative factor, rounding to the nearest
// minor unit.
func (m Money) Multiply(factor float64) (Money, error) {
	if factor < 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Money{}, fmt.Errorf("%w: factor %v", domain.ErrInvalidArgument, factor)
	}
	return Money{amount: int64(math.Round(float64(m.amount) * factor)), currency: m.currency}, nil
}

func (m Money) GreaterThan(o Money) (bool, error) {
	if err := m.sameCurrency(o); err != nil {
		return false, err
	}
	return m.amount > o.amount, nil
}

func (m Money) Equals(o Money) bool {
	return m.amount == o.amount && m.currency == o.currency
}

// moneyJSON is the externally observable form: major-unit decimal plus ISO code.
type moneyJSON struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Major(), Currency: m.currency})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var in moneyJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	v, err := NewMoneyFromMajor(in.Amount, in.Currency)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
