package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"edunexia/internal/charge"
	"edunexia/internal/common/events"
	"edunexia/internal/common/middleware"
	"edunexia/internal/gateway"
	"edunexia/internal/metrics"
)

// interruptedMessage marks an attempt whose outcome was never recorded.
const interruptedMessage = "submission interrupted before the gateway answered"

// Config holds the business settings of the service.
type Config struct {
	Fees   charge.FeeSchedule
	Limits charge.Limits
}

// Service owns wizard sessions and their submission.
type Service struct {
	store     Store
	gateway   Gateway
	publisher Publisher
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	locks    wizardLocks
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService creates a new wizard service.
func NewService(store Store, gw Gateway, cfg Config, logger *slog.Logger) *Service {
	if cfg.Fees == nil {
		cfg.Fees = charge.DefaultFeeSchedule()
	}
	return &Service{
		store:    store,
		gateway:  gw,
		config:   cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    wizardLocks{locks: make(map[string]*wizardLock)},
		inFlight: make(map[string]struct{}),
	}
}

// SetPublisher enables event publication.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// Create opens a new wizard with its own idempotency key.
func (s *Service) Create(ctx context.Context) (*Wizard, error) {
	w := New(ulid.Make().String(), ulid.Make().String(), s.now())
	if err := s.store.CreateWizard(ctx, &w); err != nil {
		return nil, fmt.Errorf("create wizard: %w", err)
	}
	metrics.WizardsCreated.Inc()

	s.publish(ctx, events.EventWizardCreated, w.ID, events.WizardCreatedData{
		WizardID:       w.ID,
		IdempotencyKey: w.IdempotencyKey,
	})

	s.logger.Info("charge wizard created",
		"wizard_id", w.ID,
		"idempotency_key", w.IdempotencyKey,
	)
	return &w, nil
}

// Get loads a wizard.
func (s *Service) Get(ctx context.Context, id string) (*Wizard, error) {
	return s.store.GetWizard(ctx, id)
}

// UpdateInfo replaces the link info of the first step.
func (s *Service) UpdateInfo(ctx context.Context, id string, info charge.LinkInfo) (*Wizard, error) {
	return s.mutate(ctx, id, "edit_info", func(w Wizard) (Wizard, error) {
		return w.WithInfo(info)
	})
}

// UpdateOptions replaces the payment options of the second step.
func (s *Service) UpdateOptions(ctx context.Context, id string, opts charge.PaymentOptions) (*Wizard, error) {
	return s.mutate(ctx, id, "edit_options", func(w Wizard) (Wizard, error) {
		return w.WithOptions(opts)
	})
}

// Next advances the wizard once its current step is valid.
func (s *Service) Next(ctx context.Context, id string) (*Wizard, error) {
	return s.mutate(ctx, id, "next", func(w Wizard) (Wizard, error) {
		return w.Next(s.config.Limits)
	})
}

// Back returns the wizard to its previous step.
func (s *Service) Back(ctx context.Context, id string) (*Wizard, error) {
	return s.mutate(ctx, id, "back", func(w Wizard) (Wizard, error) {
		return w.Back()
	})
}

// Summary previews the wizard's current draft.
func (s *Service) Summary(ctx context.Context, id string) (*charge.Simulation, error) {
	w, err := s.store.GetWizard(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Simulate(w.Draft())
}

// Simulate previews a draft that belongs to no wizard.
func (s *Service) Simulate(d charge.Draft) (*charge.Simulation, error) {
	sim, err := charge.Simulate(d, s.config.Fees, s.config.Limits)
	if err != nil {
		metrics.Simulations.WithLabelValues("invalid").Inc()
		s.countValidation(err)
		return nil, err
	}
	metrics.Simulations.WithLabelValues("ok").Inc()
	return sim, nil
}

// Attempts lists the submission attempts of a wizard, oldest first.
func (s *Service) Attempts(ctx context.Context, id string) ([]*Attempt, error) {
	if _, err := s.store.GetWizard(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, id)
}

// Submit assembles the wizard's charge and sends it to the gateway. Local
// validation happens before any network call. A second Submit for the same
// wizard while one is outstanding fails with ErrSubmissionInFlight. On a
// gateway failure the wizard is returned in the failed state together with
// the error.
func (s *Service) Submit(ctx context.Context, id string) (*Wizard, error) {
	if !s.beginInFlight(id) {
		return nil, ErrSubmissionInFlight
	}
	defer s.endInFlight(id)

	w, req, attempt, err := s.startAttempt(ctx, id)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("wizard_id", w.ID, "attempt", attempt.Number)
	logger.Info("submitting charge",
		"customer_id", req.CustomerID,
		"value", req.Value.String(),
		"installments", req.InstallmentCount(),
	)

	start := time.Now()
	res, gwErr := s.gateway.CreateCharge(ctx, req, w.IdempotencyKey)
	elapsed := time.Since(start).Seconds()

	unlock := s.locks.lock(id)
	defer unlock()

	finished := s.now()
	attempt.FinishedAt = &finished
	w.UpdatedAt = finished

	if gwErr != nil {
		failure := failureFrom(gwErr)
		w, _ = w.Fail(failure)
		attempt.Status = AttemptFailed
		attempt.ErrorCode = failure.Code
		attempt.ErrorMessage = failure.Message
	} else {
		w, _ = w.Succeed(Result{ProviderRef: res.ID, InvoiceURL: res.InvoiceURL, Status: res.Status})
		attempt.Status = AttemptSucceeded
		attempt.ProviderRef = res.ID
	}

	// The outcome must be recorded even when the caller went away.
	if err := s.store.FinishAttempt(context.WithoutCancel(ctx), &w, attempt); err != nil {
		logger.Error("failed to record submission outcome", "error", err, "gateway_error", gwErr)
		return nil, fmt.Errorf("record submission outcome: %w", err)
	}

	if gwErr != nil {
		metrics.Submissions.WithLabelValues("failed").Inc()
		metrics.SubmissionDuration.WithLabelValues("failed").Observe(elapsed)
		logger.Warn("charge submission failed", "error", gwErr)
		s.publish(ctx, events.EventChargeSubmissionFailed, w.ID, events.ChargeSubmissionFailedData{
			WizardID:     w.ID,
			Attempt:      attempt.Number,
			ErrorCode:    attempt.ErrorCode,
			ErrorMessage: attempt.ErrorMessage,
		})
		return &w, fmt.Errorf("submit charge: %w", gwErr)
	}

	metrics.Submissions.WithLabelValues("submitted").Inc()
	metrics.SubmissionDuration.WithLabelValues("submitted").Observe(elapsed)
	logger.Info("charge submitted", "provider_ref", res.ID)

	methods := make([]string, len(req.BillingMethods))
	for i, m := range req.BillingMethods {
		methods[i] = string(m)
	}
	s.publish(ctx, events.EventChargeSubmitted, w.ID, events.ChargeSubmittedData{
		WizardID:         w.ID,
		Attempt:          attempt.Number,
		ProviderRef:      res.ID,
		CustomerID:       req.CustomerID,
		ValueMinor:       req.Value.AmountMinor,
		Currency:         string(req.Value.Currency),
		InstallmentCount: req.InstallmentCount(),
		BillingTypes:     methods,
	})
	return &w, nil
}

// startAttempt moves the wizard to submitting and records a pending attempt.
func (s *Service) startAttempt(ctx context.Context, id string) (Wizard, *charge.ChargeRequest, *Attempt, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	loaded, err := s.store.GetWizard(ctx, id)
	if err != nil {
		return Wizard{}, nil, nil, err
	}
	w := *loaded

	if w.State == StateSubmitting {
		// Nothing in this process is submitting it, so an earlier attempt
		// died before its outcome was saved.
		if w, err = s.abandonAttempt(ctx, w); err != nil {
			return Wizard{}, nil, nil, err
		}
	}

	next, req, err := w.BeginSubmit(s.config.Limits)
	if err != nil {
		if charge.IsValidationError(err) {
			metrics.Submissions.WithLabelValues("invalid").Inc()
			s.countValidation(err)
		}
		return Wizard{}, nil, nil, err
	}

	next.UpdatedAt = s.now()
	attempt := &Attempt{
		WizardID:  next.ID,
		Number:    next.AttemptCount,
		Status:    AttemptPending,
		Request:   req,
		StartedAt: next.UpdatedAt,
	}
	if err := s.store.StartAttempt(ctx, &next, attempt); err != nil {
		return Wizard{}, nil, nil, fmt.Errorf("record submission attempt: %w", err)
	}
	return next, req, attempt, nil
}

// abandonAttempt fails a dangling attempt and returns the wizard to summary.
// The retry reuses the idempotency key, so the gateway collapses it if the
// lost attempt did go through.
func (s *Service) abandonAttempt(ctx context.Context, w Wizard) (Wizard, error) {
	failed, err := w.Fail(Failure{Message: interruptedMessage})
	if err != nil {
		return w, err
	}
	failed.UpdatedAt = s.now()

	attempts, err := s.store.ListAttempts(ctx, w.ID)
	if err != nil {
		return w, fmt.Errorf("list attempts: %w", err)
	}
	var attempt *Attempt
	for _, a := range attempts {
		if a.Number == w.AttemptCount {
			attempt = a
		}
	}
	if attempt == nil {
		return w, fmt.Errorf("attempt %d of wizard %s: %w", w.AttemptCount, w.ID, ErrNotFound)
	}

	finished := failed.UpdatedAt
	attempt.Status = AttemptFailed
	attempt.ErrorMessage = interruptedMessage
	attempt.FinishedAt = &finished
	if err := s.store.FinishAttempt(ctx, &failed, attempt); err != nil {
		return w, fmt.Errorf("abandon attempt %d: %w", attempt.Number, err)
	}

	s.logger.Warn("abandoned interrupted submission",
		"wizard_id", w.ID,
		"attempt", attempt.Number,
	)
	return failed.Back()
}

// mutate applies one transition under the wizard's lock and saves it.
func (s *Service) mutate(ctx context.Context, id, action string, fn func(Wizard) (Wizard, error)) (*Wizard, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	w, err := s.store.GetWizard(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := fn(*w)
	if err != nil {
		switch {
		case charge.IsValidationError(err):
			metrics.WizardTransitions.WithLabelValues(action, "invalid").Inc()
			s.countValidation(err)
		case errors.Is(err, ErrInvalidTransition):
			metrics.WizardTransitions.WithLabelValues(action, "rejected").Inc()
		}
		return nil, err
	}

	next.UpdatedAt = s.now()
	if err := s.store.UpdateWizard(ctx, &next); err != nil {
		return nil, fmt.Errorf("save wizard: %w", err)
	}
	metrics.WizardTransitions.WithLabelValues(action, "ok").Inc()

	s.logger.Debug("wizard updated",
		"wizard_id", id,
		"action", action,
		"state", next.State,
	)
	return &next, nil
}

func (s *Service) countValidation(err error) {
	var verr *charge.ValidationError
	if errors.As(err, &verr) {
		metrics.ValidationFailures.WithLabelValues(verr.Field).Inc()
	}
}

// publish sends an event when a publisher is configured. Failures are logged
// and never reach the caller.
func (s *Service) publish(ctx context.Context, eventType, wizardID string, data any) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, events.AggregateChargeWizard, wizardID, data)
	if err != nil {
		s.logger.Error("failed to build event", "type", eventType, "wizard_id", wizardID, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx), "")

	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish event",
			"type", eventType,
			"wizard_id", wizardID,
			"error", err,
		)
	}
}

func (s *Service) beginInFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[id]; ok {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) endInFlight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// failureFrom keeps the gateway's own wording for the user.
func failureFrom(err error) Failure {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		return Failure{StatusCode: gerr.StatusCode, Code: gerr.Code, Message: gerr.Message}
	}
	return Failure{Message: err.Error()}
}

// wizardLocks serializes load-modify-save cycles per wizard.
type wizardLocks struct {
	mu    sync.Mutex
	locks map[string]*wizardLock
}

type wizardLock struct {
	sync.Mutex
	refs int
}

func (l *wizardLocks) lock(id string) func() {
	l.mu.Lock()
	wl, ok := l.locks[id]
	if !ok {
		wl = &wizardLock{}
		l.locks[id] = wl
	}
	wl.refs++
	l.mu.Unlock()

	wl.Lock()
	return func() {
		wl.Unlock()
		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
