package charge

import (
	"fmt"

	"edunexia/internal/common/money"
)

// Plan is an installment split of a charge total. It is derived on demand
// and never stored.
type Plan struct {
	Count               int         `json:"count"`
	PerInstallment      money.Money `json:"perInstallment"`
	RemainderAdjustment money.Money `json:"remainderAdjustment"`
	Total               money.Money `json:"total"`
}

// Installment is one entry of a plan, 1-based.
type Installment struct {
	Index int         `json:"index"`
	Count int         `json:"count"`
	Value money.Money `json:"value"`
	Label string      `json:"label"`
}

// Split divides total into count installments. All installments get the
// floored per-installment value except the last, which absorbs the residual.
func Split(total money.Money, count int) (Plan, error) {
	if count < 1 {
		return Plan{}, invalid("installmentCount", "must be at least 1")
	}
	if total.IsNegative() {
		return Plan{}, invalid("value", "must not be negative")
	}

	parts := total.Split(count)
	base := parts[0]
	if count == 1 {
		return Plan{
			Count:               1,
			PerInstallment:      total,
			RemainderAdjustment: money.Zero(total.Currency),
			Total:               total,
		}, nil
	}

	remainder, err := total.Sub(base.Multiply(int64(count)))
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Count:               count,
		PerInstallment:      base,
		RemainderAdjustment: remainder,
		Total:               total,
	}
	if err := plan.Verify(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Last returns the value of the final installment.
func (p Plan) Last() money.Money {
	last, _ := p.PerInstallment.Add(p.RemainderAdjustment)
	return last
}

// Installments expands the plan into labelled installments.
func (p Plan) Installments() []Installment {
	out := make([]Installment, p.Count)
	for i := range out {
		value := p.PerInstallment
		if i == p.Count-1 {
			value = p.Last()
		}
		out[i] = Installment{
			Index: i + 1,
			Count: p.Count,
			Value: value,
			Label: fmt.Sprintf("Installment %d of %d", i+1, p.Count),
		}
	}
	return out
}

// Verify recomputes the plan and fails if it no longer reconstructs the total
// to the cent or if any installment went negative.
func (p Plan) Verify() error {
	if p.Count < 1 {
		return fmt.Errorf("%w: count %d", ErrArithmeticInconsistency, p.Count)
	}
	if p.PerInstallment.IsNegative() || p.Last().IsNegative() {
		return fmt.Errorf("%w: negative installment", ErrArithmeticInconsistency)
	}

	var sum int64
	for _, inst := range p.Installments() {
		if inst.Value.Currency != p.Total.Currency {
			return fmt.Errorf("%w: currency %s in a %s plan", ErrArithmeticInconsistency, inst.Value.Currency, p.Total.Currency)
		}
		sum += inst.Value.AmountMinor
	}
	if sum != p.Total.AmountMinor {
		return fmt.Errorf("%w: installments sum to %d, total is %d", ErrArithmeticInconsistency, sum, p.Total.AmountMinor)
	}
	return nil
}
