package wizard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"edunexia/internal/charge"
	"edunexia/internal/common/database"
)

// PostgresStore implements Store using PostgreSQL. The collected fields live
// in a JSONB document; state and bookkeeping are plain columns.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type wizardDocument struct {
	Info      charge.LinkInfo       `json:"info"`
	Options   charge.PaymentOptions `json:"options"`
	Result    *Result               `json:"result,omitempty"`
	LastError *Failure              `json:"lastError,omitempty"`
}

func (s *PostgresStore) CreateWizard(ctx context.Context, w *Wizard) error {
	return insertWizard(ctx, s.db, w)
}

func insertWizard(ctx context.Context, q database.Querier, w *Wizard) error {
	query := `
		INSERT INTO charge_wizards (
			id, idempotency_key, state, document, attempt_count, provider_ref,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	doc, err := marshalDocument(w)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, query,
		w.ID, w.IdempotencyKey, w.State, doc, w.AttemptCount, providerRef(w),
		w.CreatedAt, w.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("wizard %s: %w", w.ID, database.ErrAlreadyExists)
	}
	return err
}

func (s *PostgresStore) GetWizard(ctx context.Context, id string) (*Wizard, error) {
	return getWizard(ctx, s.db, id)
}

func getWizard(ctx context.Context, q database.Querier, id string) (*Wizard, error) {
	query := `
		SELECT id, idempotency_key, state, document, attempt_count, created_at, updated_at
		FROM charge_wizards
		WHERE id = $1
	`

	var w Wizard
	var doc []byte
	err := q.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.IdempotencyKey, &w.State, &doc, &w.AttemptCount, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading wizard %s: %w", id, err)
	}

	var d wizardDocument
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("decoding wizard %s: %w", id, err)
	}
	w.Info, w.Options, w.Result, w.LastError = d.Info, d.Options, d.Result, d.LastError
	return &w, nil
}

func (s *PostgresStore) UpdateWizard(ctx context.Context, w *Wizard) error {
	return updateWizard(ctx, s.db, w)
}

func (s *PostgresStore) StartAttempt(ctx context.Context, w *Wizard, a *Attempt) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := updateWizard(ctx, tx, w); err != nil {
			return err
		}
		return insertAttempt(ctx, tx, a)
	})
}

func (s *PostgresStore) FinishAttempt(ctx context.Context, w *Wizard, a *Attempt) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := updateWizard(ctx, tx, w); err != nil {
			return err
		}
		return finishAttempt(ctx, tx, a)
	})
}

func insertAttempt(ctx context.Context, q database.Querier, a *Attempt) error {
	query := `
		INSERT INTO charge_attempts (
			wizard_id, attempt, status, request, provider_ref, error_code, error_message,
			started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	request, err := json.Marshal(a.Request)
	if err != nil {
		return fmt.Errorf("encoding charge request: %w", err)
	}

	_, err = q.Exec(ctx, query,
		a.WizardID, a.Number, a.Status, request, nullStr(a.ProviderRef),
		nullStr(a.ErrorCode), nullStr(a.ErrorMessage), a.StartedAt, a.FinishedAt,
	)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("attempt %d of wizard %s: %w", a.Number, a.WizardID, database.ErrAlreadyExists)
	}
	return err
}

func finishAttempt(ctx context.Context, q database.Querier, a *Attempt) error {
	query := `
		UPDATE charge_attempts SET
			status = $3, provider_ref = $4, error_code = $5, error_message = $6, finished_at = $7
		WHERE wizard_id = $1 AND attempt = $2
	`

	tag, err := q.Exec(ctx, query,
		a.WizardID, a.Number, a.Status, nullStr(a.ProviderRef),
		nullStr(a.ErrorCode), nullStr(a.ErrorMessage), a.FinishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %d of wizard %s: %w", a.Number, a.WizardID, database.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, wizardID string) ([]*Attempt, error) {
	return listAttempts(ctx, s.db, wizardID)
}

func listAttempts(ctx context.Context, q database.Querier, wizardID string) ([]*Attempt, error) {
	query := `
		SELECT wizard_id, attempt, status, request, provider_ref, error_code, error_message,
			   started_at, finished_at
		FROM charge_attempts WHERE wizard_id = $1
		ORDER BY attempt ASC
	`

	rows, err := q.Query(ctx, query, wizardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []*Attempt{}
	for rows.Next() {
		var a Attempt
		var ref, code, msg *string
		var request []byte

		err := rows.Scan(
			&a.WizardID, &a.Number, &a.Status, &request, &ref, &code, &msg,
			&a.StartedAt, &a.FinishedAt,
		)
		if err != nil {
			return nil, err
		}

		if ref != nil {
			a.ProviderRef = *ref
		}
		if code != nil {
			a.ErrorCode = *code
		}
		if msg != nil {
			a.ErrorMessage = *msg
		}
		if err := json.Unmarshal(request, &a.Request); err != nil {
			return nil, fmt.Errorf("decoding attempt %d request: %w", a.Number, err)
		}

		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

func updateWizard(ctx context.Context, q database.Querier, w *Wizard) error {
	query := `
		UPDATE charge_wizards SET
			state = $2, document = $3, attempt_count = $4, provider_ref = $5, updated_at = $6
		WHERE id = $1
	`

	doc, err := marshalDocument(w)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, query, w.ID, w.State, doc, w.AttemptCount, providerRef(w), w.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalDocument(w *Wizard) ([]byte, error) {
	doc, err := json.Marshal(wizardDocument{
		Info:      w.Info,
		Options:   w.Options,
		Result:    w.Result,
		LastError: w.LastError,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding wizard %s: %w", w.ID, err)
	}
	return doc, nil
}

func providerRef(w *Wizard) *string {
	if w.Result == nil {
		return nil
	}
	return nullStr(w.Result.ProviderRef)
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
