package wizard

import (
	"context"
	"time"

	"edunexia/internal/charge"
)

// AttemptStatus is the outcome of one submission attempt.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt is one submission of a wizard's charge to the gateway.
type Attempt struct {
	WizardID     string                `json:"wizardId"`
	Number       int                   `json:"number"`
	Status       AttemptStatus         `json:"status"`
	Request      *charge.ChargeRequest `json:"request"`
	ProviderRef  string                `json:"providerRef,omitempty"`
	ErrorCode    string                `json:"errorCode,omitempty"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
	StartedAt    time.Time             `json:"startedAt"`
	FinishedAt   *time.Time            `json:"finishedAt,omitempty"`
}

// Store persists wizards and their submission attempts.
type Store interface {
	CreateWizard(ctx context.Context, w *Wizard) error
	GetWizard(ctx context.Context, id string) (*Wizard, error)
	UpdateWizard(ctx context.Context, w *Wizard) error

	// StartAttempt saves w in its submitting state together with a new attempt.
	StartAttempt(ctx context.Context, w *Wizard, a *Attempt) error
	// FinishAttempt saves the outcome of an attempt and the wizard it moved.
	FinishAttempt(ctx context.Context, w *Wizard, a *Attempt) error
	ListAttempts(ctx context.Context, wizardID string) ([]*Attempt, error)
}
