package charge

import (
	"fmt"

	"github.com/shopspring/decimal"

	"edunexia/internal/common/money"
)

// NetValue is what the institution receives for one installment on one rail.
type NetValue struct {
	Method  BillingMethod   `json:"method"`
	FeeRate decimal.Decimal `json:"feeRate"`
	Value   money.Money     `json:"value"`
}

// SimulatedInstallment is an installment with its per-rail net values.
type SimulatedInstallment struct {
	Installment
	NetValues []NetValue `json:"netValues"`
}

// Simulation is the summary step preview. Rule amounts are evaluated against
// the first installment and are advisory; the gateway applies the rules.
type Simulation struct {
	Total            money.Money            `json:"total"`
	Installments     []SimulatedInstallment `json:"installments"`
	Discount         *money.Money           `json:"discount,omitempty"`
	DueDateLimitDays int                    `json:"dueDateLimitDays,omitempty"`
	Fine             *money.Money           `json:"fine,omitempty"`
	MonthlyInterest  *money.Money           `json:"monthlyInterest,omitempty"`
}

// Simulate previews d. Only the value and the payment options are checked;
// the rest of the link info is not needed to show numbers.
func Simulate(d Draft, fees FeeSchedule, limits Limits) (*Simulation, error) {
	if d.Info.Value.IsNegative() {
		return nil, invalid("value", "must not be negative")
	}
	if err := d.Options.Validate(limits); err != nil {
		return nil, err
	}

	plan, err := d.plan()
	if err != nil {
		return nil, fmt.Errorf("simulating charge: %w", err)
	}
	if err := checkDiscountBound(d.Options.Discount, plan.PerInstallment, d.Info.FreeValue); err != nil {
		return nil, err
	}

	sim := &Simulation{Total: plan.Total}
	for _, inst := range plan.Installments() {
		row := SimulatedInstallment{Installment: inst}
		for _, method := range d.Options.BillingMethods {
			net, err := fees.NetValue(inst.Value, method)
			if err != nil {
				return nil, err
			}
			row.NetValues = append(row.NetValues, NetValue{
				Method:  method,
				FeeRate: fees[method],
				Value:   net,
			})
		}
		sim.Installments = append(sim.Installments, row)
	}

	base := plan.PerInstallment
	if r := d.Options.Discount; r.Enabled {
		amount := r.Amount(base)
		sim.Discount = &amount
		sim.DueDateLimitDays = r.DueDateLimitDays
	}
	if r := d.Options.Fine; r.Enabled {
		amount := r.Amount(base)
		sim.Fine = &amount
	}
	if r := d.Options.Interest; r.Enabled {
		amount := r.MonthlyAmount(base)
		sim.MonthlyInterest = &amount
	}
	return sim, nil
}
