// Package wizard runs the three-step payment link wizard (link info, payment
// methods, summary) and the submission of the resulting charge.
package wizard

import (
	"errors"
	"fmt"
	"time"

	"edunexia/internal/charge"
)

// State is a wizard step or submission outcome.
type State string

const (
	StateCollectingInfo           State = "collecting_info"
	StateCollectingPaymentMethods State = "collecting_payment_methods"
	StateSummary                  State = "summary"
	StateSubmitting               State = "submitting"
	StateSubmitted                State = "submitted"
	StateFailed                   State = "failed"
)

var (
	ErrNotFound           = errors.New("wizard not found")
	ErrInvalidTransition  = errors.New("invalid wizard transition")
	ErrSubmissionInFlight = errors.New("a submission is already in flight for this wizard")
)

// Result is what the gateway returned for an accepted charge.
type Result struct {
	ProviderRef string `json:"providerRef"`
	InvoiceURL  string `json:"invoiceUrl,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Failure is the last rejected submission, reported verbatim.
type Failure struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
}

// Wizard is one payment link being composed. Transitions return a new value
// and leave the receiver untouched.
type Wizard struct {
	ID             string                `json:"id"`
	IdempotencyKey string                `json:"idempotencyKey"`
	State          State                 `json:"state"`
	Info           charge.LinkInfo       `json:"info"`
	Options        charge.PaymentOptions `json:"options"`
	Result         *Result               `json:"result,omitempty"`
	LastError      *Failure              `json:"lastError,omitempty"`
	AttemptCount   int                   `json:"attemptCount"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// New opens a wizard on its first step.
func New(id, idempotencyKey string, now time.Time) Wizard {
	return Wizard{
		ID:             id,
		IdempotencyKey: idempotencyKey,
		State:          StateCollectingInfo,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Draft is the charge as collected so far.
func (w Wizard) Draft() charge.Draft {
	return charge.Draft{Info: w.Info, Options: w.Options}
}

// Terminal reports whether the wizard can no longer change.
func (w Wizard) Terminal() bool {
	return w.State == StateSubmitted
}

func (w Wizard) transitionError(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, w.State)
}

// WithInfo replaces the link info. Only allowed on the info step.
func (w Wizard) WithInfo(info charge.LinkInfo) (Wizard, error) {
	if w.State != StateCollectingInfo {
		return w, w.transitionError("edit link info")
	}
	w.Info = info
	return w, nil
}

// WithOptions replaces the payment options. Only allowed on the payment
// methods step.
func (w Wizard) WithOptions(opts charge.PaymentOptions) (Wizard, error) {
	if w.State != StateCollectingPaymentMethods {
		return w, w.transitionError("edit payment options")
	}
	opts.BillingMethods = append([]charge.BillingMethod(nil), opts.BillingMethods...)
	w.Options = opts
	return w, nil
}

// Next advances one step once the current step's fields are valid.
func (w Wizard) Next(limits charge.Limits) (Wizard, error) {
	switch w.State {
	case StateCollectingInfo:
		if err := w.Info.Validate(); err != nil {
			return w, err
		}
		w.State = StateCollectingPaymentMethods
	case StateCollectingPaymentMethods:
		if err := w.Options.Validate(limits); err != nil {
			return w, err
		}
		w.State = StateSummary
	default:
		return w, w.transitionError("advance")
	}
	return w, nil
}

// Back returns to the previous step keeping every entered value. A failed
// submission goes back to the summary.
func (w Wizard) Back() (Wizard, error) {
	switch w.State {
	case StateCollectingPaymentMethods:
		w.State = StateCollectingInfo
	case StateSummary:
		w.State = StateCollectingPaymentMethods
	case StateFailed:
		w.State = StateSummary
	default:
		return w, w.transitionError("go back")
	}
	return w, nil
}

// BeginSubmit assembles the charge and moves to submitting. Nothing changes
// when assembly fails.
func (w Wizard) BeginSubmit(limits charge.Limits) (Wizard, *charge.ChargeRequest, error) {
	if w.State != StateSummary {
		return w, nil, w.transitionError("submit")
	}
	req, err := charge.Assemble(w.Draft(), limits)
	if err != nil {
		return w, nil, err
	}
	w.State = StateSubmitting
	w.AttemptCount++
	w.LastError = nil
	return w, req, nil
}

// Succeed records the gateway's acceptance.
func (w Wizard) Succeed(res Result) (Wizard, error) {
	if w.State != StateSubmitting {
		return w, w.transitionError("complete submission")
	}
	w.State = StateSubmitted
	w.Result = &res
	w.LastError = nil
	return w, nil
}

// Fail records a rejected or unreachable submission. Entered values survive.
func (w Wizard) Fail(f Failure) (Wizard, error) {
	if w.State != StateSubmitting {
		return w, w.transitionError("fail submission")
	}
	w.State = StateFailed
	w.LastError = &f
	return w, nil
}
