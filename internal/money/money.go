package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrNegativeAmount     = errors.New("money: amount must be non-negative")
	ErrInvalidCurrency    = errors.New("money: currency must be a 3-letter code")
	ErrCurrencyMismatch   = errors.New("money: currency mismatch")
	ErrInvalidRate        = errors.New("money: rate must be finite and non-negative")
	ErrInsufficientAmount = errors.New("money: subtraction underflow")
)

// Money is an immutable fixed-point currency amount in integer cents.
// All arithmetic is checked; operations across differing currencies fail.
type Money struct {
	amountCents int64
	currency    string
}

func Zero(currency string) (Money, error) {
	return FromCents(0, currency)
}

func FromCents(amountCents int64, currency string) (Money, error) {
	if amountCents < 0 {
		return Money{}, ErrNegativeAmount
	}
	normalized, err := normalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{amountCents: amountCents, currency: normalized}, nil
}

// MustFromCents is for constants and tests where the inputs are known-valid.
func MustFromCents(amountCents int64, currency string) Money {
	m, err := FromCents(amountCents, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) AmountCents() int64 { return m.amountCents }
func (m Money) Currency() string   { return m.currency }

func (m Money) IsZero() bool     { return m.amountCents == 0 }
func (m Money) IsPositive() bool { return m.amountCents > 0 }

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amountCents: m.amountCents + other.amountCents, currency: m.currency}, nil
}

func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.amountCents > m.amountCents {
		return Money{}, ErrInsufficientAmount
	}
	return Money{amountCents: m.amountCents - other.amountCents, currency: m.currency}, nil
}

// SubtractSaturating clamps to zero instead of failing on underflow.
func (m Money) SubtractSaturating(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	remaining := m.amountCents - other.amountCents
	if remaining < 0 {
		remaining = 0
	}
	return Money{amountCents: remaining, currency: m.currency}, nil
}

// MultiplyRate floors the fractional result. The consistent floor here is
// what lets a remainder-based split sum exactly to the gross amount.
func (m Money) MultiplyRate(rate float64) (Money, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return Money{}, ErrInvalidRate
	}
	scaled := int64(math.Floor(float64(m.amountCents) * rate))
	return Money{amountCents: scaled, currency: m.currency}, nil
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amountCents == other.amountCents
}

// Compare returns -1, 0 or 1. Fails on currency mismatch.
func (m Money) Compare(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.amountCents < other.amountCents:
		return -1, nil
	case m.amountCents > other.amountCents:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) Less(other Money) (bool, error) {
	cmp, err := m.Compare(other)
	if err != nil {
		return false, err
	}
	return cmp < 0, nil
}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// String renders a display amount, e.g. "$15.00" or "JPY 1.00".
func (m Money) String() string {
	whole := m.amountCents / 100
	fraction := m.amountCents % 100
	if symbol, ok := currencySymbols[m.currency]; ok {
		return fmt.Sprintf("%s%d.%02d", symbol, whole, fraction)
	}
	return fmt.Sprintf("%s %d.%02d", m.currency, whole, fraction)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return ErrCurrencyMismatch
	}
	return nil
}

func normalizeCurrency(currency string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	if len(normalized) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range normalized {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return normalized, nil
}
