package charge

import (
	"github.com/shopspring/decimal"

	"edunexia/internal/common/money"
)

// RuleType says how a rule's value is read.
type RuleType string

const (
	Fixed      RuleType = "FIXED"
	Percentage RuleType = "PERCENTAGE"
)

func (t RuleType) valid() bool {
	return t == Fixed || t == Percentage
}

var hundred = decimal.NewFromInt(100)

// maxFixedValue is MaxValueMinor in major units.
var maxFixedValue = decimal.New(MaxValueMinor, -2)

// checkFixed bounds a FIXED rule value like a charge value.
func checkFixed(field string, t RuleType, value decimal.Decimal) error {
	if t == Fixed && value.GreaterThan(maxFixedValue) {
		return invalid(field, "must not exceed %s", money.New(MaxValueMinor, money.BRL))
	}
	return nil
}

// Evaluate turns a rule value into an amount against base. FIXED values are
// amounts in major units, PERCENTAGE values are percent of base. The result
// is clamped to [0, base].
func Evaluate(t RuleType, value decimal.Decimal, base money.Money) money.Money {
	zero := money.Zero(base.Currency)
	if base.IsNegative() {
		return zero
	}

	var amount money.Money
	switch t {
	case Fixed:
		amount = money.RoundDecimal(value, base.Currency)
	case Percentage:
		amount = base.Percent(value)
	default:
		return zero
	}
	return amount.Clamp(zero, base)
}

// DiscountRule grants a discount for paying at least DueDateLimitDays before
// the due date. The gateway applies it; it is only forwarded from here.
type DiscountRule struct {
	Enabled          bool            `json:"enabled"`
	Type             RuleType        `json:"type"`
	Value            decimal.Decimal `json:"value"`
	DueDateLimitDays int             `json:"dueDateLimitDays"`
}

// Validate checks an enabled rule. Disabled rules are never validated.
func (r DiscountRule) Validate() error {
	if !r.Enabled {
		return nil
	}
	if !r.Type.valid() {
		return invalid("discount.type", "must be one of: FIXED PERCENTAGE")
	}
	if r.Value.IsNegative() {
		return invalid("discount.value", "must not be negative")
	}
	if r.Type == Percentage && r.Value.GreaterThan(hundred) {
		return invalid("discount.value", "percentage discount must not exceed 100")
	}
	if err := checkFixed("discount.value", r.Type, r.Value); err != nil {
		return err
	}
	if r.DueDateLimitDays < 0 {
		return invalid("discount.dueDateLimitDays", "must not be negative")
	}
	return nil
}

// Amount is the discount on base, for display.
func (r DiscountRule) Amount(base money.Money) money.Money {
	if !r.Enabled {
		return money.Zero(base.Currency)
	}
	return Evaluate(r.Type, r.Value, base)
}

// FineRule is charged by the gateway on late payment.
type FineRule struct {
	Enabled bool            `json:"enabled"`
	Type    RuleType        `json:"type"`
	Value   decimal.Decimal `json:"value"`
}

func (r FineRule) Validate() error {
	if !r.Enabled {
		return nil
	}
	if !r.Type.valid() {
		return invalid("fine.type", "must be one of: FIXED PERCENTAGE")
	}
	if r.Value.IsNegative() {
		return invalid("fine.value", "must not be negative")
	}
	return checkFixed("fine.value", r.Type, r.Value)
}

// Amount is the fine on base, for display.
func (r FineRule) Amount(base money.Money) money.Money {
	if !r.Enabled {
		return money.Zero(base.Currency)
	}
	return Evaluate(r.Type, r.Value, base)
}

// InterestRule is a monthly percentage rate applied by the gateway to late
// payments. There is no fixed-amount variant.
type InterestRule struct {
	Enabled bool            `json:"enabled"`
	Value   decimal.Decimal `json:"value"`
}

func (r InterestRule) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Value.IsNegative() {
		return invalid("interest.value", "must not be negative")
	}
	return nil
}

// MonthlyAmount is one month of interest on base, for display.
func (r InterestRule) MonthlyAmount(base money.Money) money.Money {
	if !r.Enabled {
		return money.Zero(base.Currency)
	}
	return Evaluate(Percentage, r.Value, base)
}
