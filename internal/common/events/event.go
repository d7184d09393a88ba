package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds correlation and causation IDs
func (e *Event) WithCorrelation(correlationID, causationID string) *Event {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Aggregate types
const (
	AggregateChargeWizard = "charge_wizard"
)

// Charge event types
const (
	EventWizardCreated          = "charge.wizard.created"
	EventChargeSubmitted        = "charge.submitted"
	EventChargeSubmissionFailed = "charge.submission_failed"
)

// WizardCreatedData is the data for charge.wizard.created events
type WizardCreatedData struct {
	WizardID       string `json:"wizard_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ChargeSubmittedData is the data for charge.submitted events
type ChargeSubmittedData struct {
	WizardID         string   `json:"wizard_id"`
	Attempt          int      `json:"attempt"`
	ProviderRef      string   `json:"provider_ref"`
	CustomerID       string   `json:"customer_id"`
	ValueMinor       int64    `json:"value_minor"`
	Currency         string   `json:"currency"`
	InstallmentCount int      `json:"installment_count"`
	BillingTypes     []string `json:"billing_types"`
}

// ChargeSubmissionFailedData is the data for charge.submission_failed events
type ChargeSubmissionFailedData struct {
	WizardID     string `json:"wizard_id"`
	Attempt      int    `json:"attempt"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message"`
}
