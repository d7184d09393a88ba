package wizard

import (
	"context"

	"edunexia/internal/charge"
	"edunexia/internal/common/events"
	"edunexia/internal/gateway"
)

//go:generate mockgen -destination=mocks/ports.go -package=mocks edunexia/internal/wizard Gateway,Publisher

// Gateway submits assembled charges.
type Gateway interface {
	CreateCharge(ctx context.Context, req *charge.ChargeRequest, idempotencyKey string) (*gateway.ChargeResult, error)
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}
