package gateway

import (
	"strings"

	"edunexia/internal/charge"
)

// ChargePayload is the JSON body of POST /payments.
type ChargePayload struct {
	CustomerID        string           `json:"customerId"`
	Value             float64          `json:"value"`
	Description       string           `json:"description"`
	DueDate           string           `json:"dueDate"`
	BillingType       string           `json:"billingType"`
	InstallmentCount  int              `json:"installmentCount,omitempty"`
	InstallmentValue  float64          `json:"installmentValue,omitempty"`
	TotalValue        float64          `json:"totalValue,omitempty"`
	Discount          *DiscountPayload `json:"discount,omitempty"`
	Fine              *RulePayload     `json:"fine,omitempty"`
	Interest          *RulePayload     `json:"interest,omitempty"`
	ExternalReference string           `json:"externalReference,omitempty"`
}

// DiscountPayload is the discount sub-object.
type DiscountPayload struct {
	Value            float64 `json:"value"`
	DueDateLimitDays int     `json:"dueDateLimitDays"`
	Type             string  `json:"type"`
}

// RulePayload is the fine and interest sub-object.
type RulePayload struct {
	Value float64 `json:"value"`
	Type  string  `json:"type"`
}

// NewChargePayload maps an assembled request to the gateway's wire shape.
// Values are major units; rule values are forwarded as captured.
func NewChargePayload(req *charge.ChargeRequest) ChargePayload {
	methods := make([]string, len(req.BillingMethods))
	for i, m := range req.BillingMethods {
		methods[i] = string(m)
	}

	p := ChargePayload{
		CustomerID:        req.CustomerID,
		Value:             req.Value.ToMajor(),
		Description:       req.Description,
		DueDate:           req.DueDate.Format("2006-01-02"),
		BillingType:       strings.Join(methods, ","),
		ExternalReference: req.ExternalReference,
	}
	if plan := req.Installment; plan != nil {
		p.InstallmentCount = plan.Count
		// installmentValue is the floored share; the last installment's
		// residual is only recoverable from totalValue.
		p.InstallmentValue = plan.PerInstallment.ToMajor()
		p.TotalValue = plan.Total.ToMajor()
	}
	if d := req.Discount; d != nil {
		v, _ := d.Value.Float64()
		p.Discount = &DiscountPayload{Value: v, DueDateLimitDays: d.DueDateLimitDays, Type: string(d.Type)}
	}
	if f := req.Fine; f != nil {
		v, _ := f.Value.Float64()
		p.Fine = &RulePayload{Value: v, Type: string(f.Type)}
	}
	if i := req.Interest; i != nil {
		v, _ := i.Value.Float64()
		p.Interest = &RulePayload{Value: v, Type: string(charge.Percentage)}
	}
	return p
}
