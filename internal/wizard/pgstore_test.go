package wizard

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edunexia/internal/charge"
	"edunexia/internal/common/database"
)

// fakeQuerier records statements and answers reads from canned row values.
type fakeQuerier struct {
	execs        [][]any
	rowsAffected int64
	execErr      error

	row    []any
	rowErr error
	rows   [][]any
}

func (f *fakeQuerier) Exec(_ context.Context, _ string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", f.rowsAffected)), nil
}

func (f *fakeQuerier) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return &fakeRows{rows: f.rows, pos: -1}, nil
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return fakeRow{values: f.row, err: f.rowErr}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { r.pos++; return r.pos < len(r.rows) }
func (r *fakeRows) Scan(dest ...any) error                       { return scanInto(r.rows[r.pos], dest) }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func scanInto(values, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scanning %d values into %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

// submittedWizard is a wizard with every document field populated.
func submittedWizard(t *testing.T) (Wizard, *charge.ChargeRequest) {
	t.Helper()
	w := atSummary(t)
	w.Options.Fine = charge.FineRule{Enabled: true, Type: charge.Fixed, Value: decimal.RequireFromString("2.5")}
	w.Options.Interest = charge.InterestRule{Enabled: true, Value: decimal.RequireFromString("1.5")}
	w.Info.ExternalReference = "matricula-2026-0042"

	w, req, err := w.BeginSubmit(charge.DefaultLimits())
	require.NoError(t, err)
	w, err = w.Fail(Failure{StatusCode: 503, Message: "Serviço indisponível"})
	require.NoError(t, err)
	w, err = w.Back()
	require.NoError(t, err)
	w, req, err = w.BeginSubmit(charge.DefaultLimits())
	require.NoError(t, err)
	w, err = w.Succeed(Result{ProviderRef: "pay_080225913252", InvoiceURL: "https://sandbox.asaas.com/i/080225913252", Status: "PENDING"})
	require.NoError(t, err)
	w.LastError = &Failure{StatusCode: 503, Message: "Serviço indisponível"}
	return w, req
}

func TestPostgresWizardRoundTrip(t *testing.T) {
	ctx := context.Background()
	w, _ := submittedWizard(t)

	q := &fakeQuerier{rowsAffected: 1}
	require.NoError(t, insertWizard(ctx, q, &w))
	require.Len(t, q.execs, 1)

	args := q.execs[0]
	require.Len(t, args, 8)
	assert.Equal(t, "pay_080225913252", *args[5].(*string))

	// id, key, state, document, attempt_count, created_at, updated_at
	q.row = []any{args[0], args[1], args[2], args[3], args[4], args[6], args[7]}
	loaded, err := getWizard(ctx, q, w.ID)
	require.NoError(t, err)

	assert.Equal(t, w, *loaded)
	assert.True(t, loaded.Options.Fine.Value.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, loaded.Options.Discount.Value.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, int64(10000), loaded.Info.Value.AmountMinor)
}

func TestPostgresAttemptRoundTrip(t *testing.T) {
	ctx := context.Background()
	w, req := submittedWizard(t)
	started := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)

	a := &Attempt{WizardID: w.ID, Number: 2, Status: AttemptPending, Request: req, StartedAt: started}
	q := &fakeQuerier{rowsAffected: 1}
	require.NoError(t, insertAttempt(ctx, q, a))

	args := q.execs[0]
	require.Len(t, args, 9)
	assert.Nil(t, args[4], "provider_ref")

	ref, code, msg := "pay_080225913252", (*string)(nil), (*string)(nil)
	q.rows = [][]any{{args[0], args[1], AttemptSucceeded, args[3], &ref, code, msg, started, &finished}}

	attempts, err := listAttempts(ctx, q, w.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	got := attempts[0]
	assert.Equal(t, AttemptSucceeded, got.Status)
	assert.Equal(t, "pay_080225913252", got.ProviderRef)
	assert.Empty(t, got.ErrorCode)
	assert.Equal(t, &finished, got.FinishedAt)
	assert.Equal(t, req, got.Request)

	require.NotNil(t, got.Request.Installment)
	assert.Equal(t, int64(3334), got.Request.Installment.Last().AmountMinor)
	require.NotNil(t, got.Request.Interest)
	assert.True(t, got.Request.Interest.Value.Equal(decimal.RequireFromString("1.5")))
}

func TestPostgresStoreMissingRows(t *testing.T) {
	ctx := context.Background()
	w := atSummary(t)

	testCases := []struct {
		name    string
		run     func(q *fakeQuerier) error
		wantErr error
	}{
		{
			name: "get_unknown_wizard",
			run: func(q *fakeQuerier) error {
				_, err := getWizard(ctx, q, "missing")
				return err
			},
			wantErr: ErrNotFound,
		},
		{
			name:    "update_unknown_wizard",
			run:     func(q *fakeQuerier) error { return updateWizard(ctx, q, &w) },
			wantErr: ErrNotFound,
		},
		{
			name: "finish_unknown_attempt",
			run: func(q *fakeQuerier) error {
				return finishAttempt(ctx, q, &Attempt{WizardID: w.ID, Number: 7, Status: AttemptFailed})
			},
			wantErr: database.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := &fakeQuerier{rowsAffected: 0, rowErr: pgx.ErrNoRows}
			assert.ErrorIs(t, tc.run(q), tc.wantErr)
		})
	}
}

func TestPostgresStoreDuplicates(t *testing.T) {
	ctx := context.Background()
	w := atSummary(t)
	q := &fakeQuerier{execErr: &pgconn.PgError{Code: "23505"}}

	assert.ErrorIs(t, insertWizard(ctx, q, &w), database.ErrAlreadyExists)
	assert.ErrorIs(t, insertAttempt(ctx, q, &Attempt{WizardID: w.ID, Number: 1}), database.ErrAlreadyExists)
}
