package charge

import (
	"fmt"
	"time"

	"edunexia/internal/common/money"
)

// ChargeRequest is a validated charge ready for the gateway. Optional parts
// are nil when they must not be sent.
type ChargeRequest struct {
	CustomerID        string          `json:"customerId"`
	Value             money.Money     `json:"value"`
	FreeValue         bool            `json:"freeValue"`
	Description       string          `json:"description"`
	DueDate           time.Time       `json:"dueDate"`
	BillingMethods    []BillingMethod `json:"billingMethods"`
	Installment       *Plan           `json:"installment,omitempty"`
	Discount          *DiscountRule   `json:"discount,omitempty"`
	Fine              *FineRule       `json:"fine,omitempty"`
	Interest          *InterestRule   `json:"interest,omitempty"`
	ExternalReference string          `json:"externalReference,omitempty"`
}

// Assemble validates d and builds the request. Nothing is returned unless
// every requirement holds; the first failure names its field.
func Assemble(d Draft, limits Limits) (*ChargeRequest, error) {
	if err := d.Info.Validate(); err != nil {
		return nil, err
	}
	if err := d.Options.Validate(limits); err != nil {
		return nil, err
	}

	plan, err := d.plan()
	if err != nil {
		return nil, fmt.Errorf("assembling charge: %w", err)
	}
	if err := checkDiscountBound(d.Options.Discount, plan.PerInstallment, d.Info.FreeValue); err != nil {
		return nil, err
	}

	req := &ChargeRequest{
		CustomerID:        d.Info.CustomerID,
		Value:             d.Info.Value,
		FreeValue:         d.Info.FreeValue,
		Description:       d.Info.Description,
		DueDate:           d.Info.DueDate,
		BillingMethods:    append([]BillingMethod(nil), d.Options.BillingMethods...),
		ExternalReference: d.Info.ExternalReference,
	}
	if plan.Count > 1 {
		req.Installment = &plan
	}
	if r := d.Options.Discount; r.Enabled {
		req.Discount = &r
	}
	if r := d.Options.Fine; r.Enabled {
		req.Fine = &r
	}
	if r := d.Options.Interest; r.Enabled {
		req.Interest = &r
	}
	return req, nil
}

// InstallmentCount is the number of payments the request creates.
func (r *ChargeRequest) InstallmentCount() int {
	if r.Installment == nil {
		return 1
	}
	return r.Installment.Count
}
