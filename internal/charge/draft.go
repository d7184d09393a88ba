package charge

import (
	"fmt"
	"time"

	"edunexia/internal/common/money"
)

// DefaultMaxInstallments is the installment cap when none is configured.
const DefaultMaxInstallments = 12

// MaxValueMinor is the largest amount, in centavos, a charge or a fixed rule
// may carry: R$ 1.000.000.000,00.
const MaxValueMinor int64 = 100_000_000_000

// Limits bounds what a charge may ask for.
type Limits struct {
	MaxInstallments int
}

// DefaultLimits returns the limits used when configuration is silent.
func DefaultLimits() Limits {
	return Limits{MaxInstallments: DefaultMaxInstallments}
}

// LinkInfo is the first wizard step: who pays, how much, for what, when.
type LinkInfo struct {
	CustomerID        string      `json:"customerId" validate:"notblank"`
	Value             money.Money `json:"value"`
	FreeValue         bool        `json:"freeValue"`
	Description       string      `json:"description" validate:"notblank,max=500"`
	DueDate           time.Time   `json:"dueDate" validate:"required"`
	ExternalReference string      `json:"externalReference,omitempty" validate:"max=100"`
}

var linkInfoOrder = []string{"customerId", "value", "description", "dueDate", "externalReference"}

// Validate reports the first missing or invalid field of the step.
func (i LinkInfo) Validate() error {
	errs := fieldErrors(validate.Struct(i))
	switch {
	case i.Value.IsNegative():
		errs["value"] = "must not be negative"
	case i.Value.IsZero() && !i.FreeValue:
		errs["value"] = "must be greater than zero"
	case i.Value.AmountMinor > MaxValueMinor:
		errs["value"] = "must not exceed " + money.New(MaxValueMinor, i.Value.Currency).String()
	}
	return firstInOrder(linkInfoOrder, errs)
}

// PaymentOptions is the second wizard step: rails, installments and rules.
type PaymentOptions struct {
	BillingMethods     []BillingMethod `json:"billingMethods" validate:"min=1,unique,dive,oneof=BOLETO_PIX CREDIT_CARD"`
	InstallmentEnabled bool            `json:"installmentEnabled"`
	InstallmentCount   int             `json:"installmentCount"`
	Discount           DiscountRule    `json:"discount"`
	Fine               FineRule        `json:"fine"`
	Interest           InterestRule    `json:"interest"`
}

// Count is the effective number of installments.
func (o PaymentOptions) Count() int {
	if !o.InstallmentEnabled {
		return 1
	}
	return o.InstallmentCount
}

// Validate reports the first invalid field of the step.
func (o PaymentOptions) Validate(limits Limits) error {
	errs := fieldErrors(validate.Struct(o))
	if err := firstInOrder([]string{"billingMethods"}, errs); err != nil {
		return err
	}

	if o.InstallmentEnabled {
		if o.InstallmentCount < 1 {
			return invalid("installmentCount", "must be at least 1")
		}
		if limits.MaxInstallments > 0 && o.InstallmentCount > limits.MaxInstallments {
			return invalid("installmentCount", "must be at most %d", limits.MaxInstallments)
		}
	}

	if err := o.Discount.Validate(); err != nil {
		return err
	}
	if err := o.Fine.Validate(); err != nil {
		return err
	}
	if err := o.Interest.Validate(); err != nil {
		return err
	}
	return firstInOrder(nil, errs)
}

// Draft is everything the wizard collected.
type Draft struct {
	Info    LinkInfo       `json:"info"`
	Options PaymentOptions `json:"options"`
}

// plan splits the draft's value by its effective installment count.
func (d Draft) plan() (Plan, error) {
	plan, err := Split(d.Info.Value, d.Options.Count())
	if err != nil {
		return Plan{}, err
	}
	if err := plan.Verify(); err != nil {
		return Plan{}, fmt.Errorf("splitting %s in %d: %w", d.Info.Value, plan.Count, err)
	}
	return plan, nil
}

// checkDiscountBound rejects a fixed discount larger than what each payment
// charges. A free-value link with no suggested value has nothing to bound by.
func checkDiscountBound(r DiscountRule, charged money.Money, freeValue bool) error {
	if !r.Enabled || r.Type != Fixed {
		return nil
	}
	if freeValue && charged.IsZero() {
		return nil
	}
	amount := money.RoundDecimal(r.Value, charged.Currency)
	if amount.GreaterThan(charged) {
		return invalid("discount.value", "discount of %s exceeds the charged %s", amount, charged)
	}
	return nil
}
