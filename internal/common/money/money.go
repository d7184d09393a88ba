package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents an ISO 4217 currency code
type Currency string

const (
	BRL Currency = "BRL"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// CurrencyInfo contains metadata about a currency
type CurrencyInfo struct {
	Code         Currency
	MinorUnits   int32 // Number of decimal places
	Symbol       string
	DecimalSep   string
	ThousandsSep string
}

var currencies = map[Currency]CurrencyInfo{
	BRL: {Code: BRL, MinorUnits: 2, Symbol: "R$", DecimalSep: ",", ThousandsSep: "."},
	USD: {Code: USD, MinorUnits: 2, Symbol: "$", DecimalSep: ".", ThousandsSep: ","},
	EUR: {Code: EUR, MinorUnits: 2, Symbol: "€", DecimalSep: ",", ThousandsSep: "."},
}

// GetCurrencyInfo returns info about a currency
func GetCurrencyInfo(c Currency) (CurrencyInfo, bool) {
	info, ok := currencies[c]
	return info, ok
}

func infoFor(c Currency) CurrencyInfo {
	if info, ok := currencies[c]; ok {
		return info
	}
	return CurrencyInfo{Code: c, MinorUnits: 2, Symbol: string(c), DecimalSep: ".", ThousandsSep: ","}
}

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrTooPrecise       = errors.New("amount has more fraction digits than the currency allows")
	ErrOutOfRange       = errors.New("amount does not fit in minor units")
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// fits reports whether a whole number of minor units fits in int64.
func fits(minor decimal.Decimal) bool {
	return minor.Cmp(minMinor) >= 0 && minor.Cmp(maxMinor) <= 0
}

// saturate converts whole minor units to int64, pinning values outside the
// int64 range to its bounds.
func saturate(minor decimal.Decimal) int64 {
	switch {
	case minor.Cmp(maxMinor) > 0:
		return math.MaxInt64
	case minor.Cmp(minMinor) < 0:
		return math.MinInt64
	}
	return minor.IntPart()
}

// Money represents a monetary amount in minor units (centavos, cents).
type Money struct {
	AmountMinor int64    `json:"amount_minor"`
	Currency    Currency `json:"currency"`
}

// New creates a new Money value from minor units
func New(amountMinor int64, currency Currency) Money {
	return Money{AmountMinor: amountMinor, Currency: currency}
}

// FromDecimal converts a major-unit decimal (e.g. 100.25) into Money.
// Amounts finer than the currency's minor unit are rejected rather than rounded.
func FromDecimal(amount decimal.Decimal, currency Currency) (Money, error) {
	info := infoFor(currency)
	if !amount.Equal(amount.Round(info.MinorUnits)) {
		return Money{}, fmt.Errorf("%s: %w", amount.String(), ErrTooPrecise)
	}
	minor := amount.Shift(info.MinorUnits)
	if !fits(minor) {
		return Money{}, fmt.Errorf("%s: %w", amount.String(), ErrOutOfRange)
	}
	return Money{AmountMinor: minor.IntPart(), Currency: currency}, nil
}

// Parse parses a major-unit decimal string such as "1234.56".
func Parse(s string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return FromDecimal(d, currency)
}

// RoundDecimal converts a major-unit decimal into Money, rounding half away
// from zero to the minor unit. Amounts beyond the int64 range saturate.
func RoundDecimal(amount decimal.Decimal, currency Currency) Money {
	info := infoFor(currency)
	return Money{
		AmountMinor: saturate(amount.Shift(info.MinorUnits).Round(0)),
		Currency:    currency,
	}
}

// Zero returns a zero amount for a currency
func Zero(currency Currency) Money {
	return Money{AmountMinor: 0, Currency: currency}
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.AmountMinor < 0
}

// Add adds two money values (must be same currency)
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

// Sub subtracts two money values (must be same currency)
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{AmountMinor: m.AmountMinor - other.AmountMinor, Currency: m.Currency}, nil
}

// Multiply multiplies by an integer
func (m Money) Multiply(factor int64) Money {
	return Money{AmountMinor: m.AmountMinor * factor, Currency: m.Currency}
}

// MulRate multiplies by a decimal rate, rounding half away from zero to the
// minor unit. MulRate(0.96) of R$ 100,00 is R$ 96,00. Results beyond the
// int64 range saturate.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{
		AmountMinor: saturate(decimal.NewFromInt(m.AmountMinor).Mul(rate).Round(0)),
		Currency:    m.Currency,
	}
}

// Percent returns pct percent of m (pct=2.5 means 2.5%).
func (m Money) Percent(pct decimal.Decimal) Money {
	return m.MulRate(pct.Div(decimal.NewFromInt(100)))
}

// Clamp bounds m to [lo, hi]. Bounds are compared on minor units; the result
// keeps m's currency.
func (m Money) Clamp(lo, hi Money) Money {
	if m.AmountMinor < lo.AmountMinor {
		return Money{AmountMinor: lo.AmountMinor, Currency: m.Currency}
	}
	if m.AmountMinor > hi.AmountMinor {
		return Money{AmountMinor: hi.AmountMinor, Currency: m.Currency}
	}
	return m
}

// Compare returns -1, 0, or 1
func (m Money) Compare(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	switch {
	case m.AmountMinor < other.AmountMinor:
		return -1, nil
	case m.AmountMinor > other.AmountMinor:
		return 1, nil
	}
	return 0, nil
}

// Equal checks equality
func (m Money) Equal(other Money) bool {
	return m.AmountMinor == other.AmountMinor && m.Currency == other.Currency
}

// GreaterThan checks if m > other
func (m Money) GreaterThan(other Money) bool {
	cmp, err := m.Compare(other)
	return err == nil && cmp > 0
}

// LessThan checks if m < other
func (m Money) LessThan(other Money) bool {
	cmp, err := m.Compare(other)
	return err == nil && cmp < 0
}

// Decimal converts to major units without losing precision.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.AmountMinor, -infoFor(m.Currency).MinorUnits)
}

// ToMajor converts to major units as float, for wire formats that want JSON numbers.
func (m Money) ToMajor() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// String returns the display form, e.g. "R$ 1.234,56".
func (m Money) String() string {
	info := infoFor(m.Currency)
	fixed := m.Decimal().Abs().StringFixed(info.MinorUnits)

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(info.ThousandsSep)
		}
		b.WriteRune(r)
	}
	if info.MinorUnits > 0 {
		b.WriteString(info.DecimalSep)
		b.WriteString(fracPart)
	}

	sign := ""
	if m.AmountMinor < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%s %s", sign, info.Symbol, b.String())
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AmountMinor int64  `json:"amount_minor"`
		Currency    string `json:"currency"`
		Display     string `json:"display"`
	}{
		AmountMinor: m.AmountMinor,
		Currency:    string(m.Currency),
		Display:     m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		AmountMinor int64  `json:"amount_minor"`
		Currency    string `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.AmountMinor = v.AmountMinor
	m.Currency = Currency(v.Currency)
	return nil
}

// Split divides m into parts installments. Every part but the last gets
// floor(m/parts); the last absorbs the residual so the parts always sum to m.
func (m Money) Split(parts int) []Money {
	if parts <= 0 {
		return nil
	}

	base := m.AmountMinor / int64(parts)
	if m.AmountMinor < 0 && m.AmountMinor%int64(parts) != 0 {
		base-- // floor, not truncation
	}

	result := make([]Money, parts)
	for i := range result {
		result[i] = Money{AmountMinor: base, Currency: m.Currency}
	}
	result[parts-1].AmountMinor = m.AmountMinor - base*int64(parts-1)

	return result
}

// Sum adds up multiple money values
func Sum(amounts ...Money) (Money, error) {
	if len(amounts) == 0 {
		return Money{}, nil
	}

	result := amounts[0]
	for _, a := range amounts[1:] {
		var err error
		result, err = result.Add(a)
		if err != nil {
			return Money{}, err
		}
	}
	return result, nil
}
