package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"edunexia/internal/charge"
	"edunexia/internal/common/api"
	"edunexia/internal/gateway"
	"edunexia/internal/wizard"
	"edunexia/internal/wizard/mocks"
)

type fakeDirectory struct {
	search    string
	customers []gateway.Customer
}

func (f *fakeDirectory) ListCustomers(_ context.Context, search string) ([]gateway.Customer, error) {
	f.search = search
	return f.customers, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *api.Error      `json:"error"`
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockGateway, *fakeDirectory) {
	t.Helper()
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := wizard.NewService(wizard.NewMemoryStore(), gw, wizard.Config{Limits: charge.DefaultLimits()}, logger)
	dir := &fakeDirectory{}
	return NewHandler(svc, dir, logger).Routes(), gw, dir
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, reader))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeWizard(t *testing.T, env envelope) wizard.Wizard {
	t.Helper()
	var w wizard.Wizard
	require.NoError(t, json.Unmarshal(env.Data, &w))
	return w
}

const (
	infoBody    = `{"customerId":"cus_000005219613","value":"100.00","description":"Mensalidade março","dueDate":"2026-03-10"}`
	optionsBody = `{"billingMethods":["BOLETO_PIX","CREDIT_CARD"],"installmentEnabled":true,"installmentCount":3,"discount":{"enabled":true,"type":"PERCENTAGE","value":10,"dueDateLimitDays":5}}`
)

// walkToSummary creates a wizard and fills both steps.
func walkToSummary(t *testing.T, h http.Handler) wizard.Wizard {
	t.Helper()
	status, env := call(t, h, http.MethodPost, "/wizards", "")
	require.Equal(t, http.StatusCreated, status)
	id := decodeWizard(t, env).ID

	steps := []struct{ method, path, body string }{
		{http.MethodPut, "/wizards/" + id + "/info", infoBody},
		{http.MethodPost, "/wizards/" + id + "/next", ""},
		{http.MethodPut, "/wizards/" + id + "/payment-methods", optionsBody},
		{http.MethodPost, "/wizards/" + id + "/next", ""},
	}
	for _, s := range steps {
		status, env = call(t, h, s.method, s.path, s.body)
		require.Equal(t, http.StatusOK, status, "%s %s: %+v", s.method, s.path, env.Error)
	}

	w := decodeWizard(t, env)
	require.Equal(t, wizard.StateSummary, w.State)
	return w
}

func TestWizardFlow(t *testing.T) {
	h, gw, _ := newTestRouter(t)
	w := walkToSummary(t, h)

	status, env := call(t, h, http.MethodGet, "/wizards/"+w.ID+"/summary", "")
	require.Equal(t, http.StatusOK, status)
	var sim charge.Simulation
	require.NoError(t, json.Unmarshal(env.Data, &sim))
	require.Len(t, sim.Installments, 3)
	assert.Equal(t, int64(3334), sim.Installments[2].Value.AmountMinor)
	assert.Equal(t, "Installment 3 of 3", sim.Installments[2].Label)

	gw.EXPECT().
		CreateCharge(gomock.Any(), gomock.Any(), w.IdempotencyKey).
		Return(&gateway.ChargeResult{ID: "pay_080225913252", Status: "PENDING"}, nil)

	status, env = call(t, h, http.MethodPost, "/wizards/"+w.ID+"/submit", "")
	require.Equal(t, http.StatusOK, status)
	submitted := decodeWizard(t, env)
	assert.Equal(t, wizard.StateSubmitted, submitted.State)
	assert.Equal(t, "pay_080225913252", submitted.Result.ProviderRef)

	status, env = call(t, h, http.MethodGet, "/wizards/"+w.ID+"/attempts", "")
	require.Equal(t, http.StatusOK, status)
	var attempts []wizard.Attempt
	require.NoError(t, json.Unmarshal(env.Data, &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, wizard.AttemptSucceeded, attempts[0].Status)
}

func TestSubmitGatewayFailure(t *testing.T) {
	h, gw, _ := newTestRouter(t)
	w := walkToSummary(t, h)

	gw.EXPECT().
		CreateCharge(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &gateway.Error{StatusCode: 400, Code: "invalid_dueDate", Message: "A data de vencimento é inválida."})

	status, env := call(t, h, http.MethodPost, "/wizards/"+w.ID+"/submit", "")
	assert.Equal(t, http.StatusBadGateway, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, api.ErrCodeGateway, env.Error.Code)
	assert.Equal(t, "A data de vencimento é inválida.", env.Error.Message)
	assert.Equal(t, wizard.StateFailed, decodeWizard(t, env).State)

	status, env = call(t, h, http.MethodPost, "/wizards/"+w.ID+"/back", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, wizard.StateSummary, decodeWizard(t, env).State)
}

func TestWizardErrors(t *testing.T) {
	h, _, _ := newTestRouter(t)
	_, env := call(t, h, http.MethodPost, "/wizards", "")
	id := decodeWizard(t, env).ID

	testCases := []struct {
		name        string
		method      string
		path        string
		body        string
		wantStatus  int
		wantCode    string
		wantDetails map[string]string
	}{
		{
			name:       "malformed_body",
			method:     http.MethodPut,
			path:       "/wizards/" + id + "/info",
			body:       `{"customerId":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeBadRequest,
		},
		{
			name:       "unknown_field",
			method:     http.MethodPut,
			path:       "/wizards/" + id + "/info",
			body:       `{"amount":"10.00"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   api.ErrCodeBadRequest,
		},
		{
			name:        "too_precise_value",
			method:      http.MethodPut,
			path:        "/wizards/" + id + "/info",
			body:        `{"value":"10.001"}`,
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    api.ErrCodeValidation,
			wantDetails: map[string]string{"value": "must have at most 2 decimal places"},
		},
		{
			name:        "value_beyond_int64",
			method:      http.MethodPut,
			path:        "/wizards/" + id + "/info",
			body:        `{"value":"184467440737095616.16"}`,
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    api.ErrCodeValidation,
			wantDetails: map[string]string{"value": "must not exceed R$ 1.000.000.000,00"},
		},
		{
			name:        "bad_due_date",
			method:      http.MethodPut,
			path:        "/wizards/" + id + "/info",
			body:        `{"dueDate":"10/03/2026"}`,
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    api.ErrCodeValidation,
			wantDetails: map[string]string{"dueDate": "Must be a date formatted as 2006-01-02"},
		},
		{
			name:        "next_with_empty_info",
			method:      http.MethodPost,
			path:        "/wizards/" + id + "/next",
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    api.ErrCodeValidation,
			wantDetails: map[string]string{"customerId": "is required"},
		},
		{
			name:       "back_from_first_step",
			method:     http.MethodPost,
			path:       "/wizards/" + id + "/back",
			wantStatus: http.StatusConflict,
			wantCode:   api.ErrCodeConflict,
		},
		{
			name:       "options_on_info_step",
			method:     http.MethodPut,
			path:       "/wizards/" + id + "/payment-methods",
			body:       optionsBody,
			wantStatus: http.StatusConflict,
			wantCode:   api.ErrCodeConflict,
		},
		{
			name:       "unknown_wizard",
			method:     http.MethodGet,
			path:       "/wizards/01HZZZZZZZZZZZZZZZZZZZZZZZ",
			wantStatus: http.StatusNotFound,
			wantCode:   api.ErrCodeNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := call(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.wantCode, env.Error.Code)
			if tc.wantDetails != nil {
				assert.Equal(t, tc.wantDetails, env.Error.Details)
			}
		})
	}
}

func TestBlankInfoIsRejected(t *testing.T) {
	h, _, _ := newTestRouter(t)
	_, env := call(t, h, http.MethodPost, "/wizards", "")
	id := decodeWizard(t, env).ID

	body := `{"customerId":"   ","value":"100.00","description":"  Mensalidade março  ","dueDate":"2026-03-10"}`
	status, env := call(t, h, http.MethodPut, "/wizards/"+id+"/info", body)
	require.Equal(t, http.StatusOK, status)
	w := decodeWizard(t, env)
	assert.Empty(t, w.Info.CustomerID)
	assert.Equal(t, "Mensalidade março", w.Info.Description)

	status, env = call(t, h, http.MethodPost, "/wizards/"+id+"/next", "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, map[string]string{"customerId": "is required"}, env.Error.Details)
}

func TestSimulate(t *testing.T) {
	h, _, _ := newTestRouter(t)

	body := `{"info":{"value":"50.00"},"options":{"billingMethods":["CREDIT_CARD"],"discount":{"enabled":true,"type":"PERCENTAGE","value":150}}}`
	status, env := call(t, h, http.MethodPost, "/charges/simulate", body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, map[string]string{"discount.value": "percentage discount must not exceed 100"}, env.Error.Details)

	body = `{"info":{"value":"100.00"},"options":{"billingMethods":["BOLETO_PIX","CREDIT_CARD"]}}`
	status, env = call(t, h, http.MethodPost, "/charges/simulate", body)
	require.Equal(t, http.StatusOK, status)

	var sim charge.Simulation
	require.NoError(t, json.Unmarshal(env.Data, &sim))
	require.Len(t, sim.Installments, 1)
	require.Len(t, sim.Installments[0].NetValues, 2)
	assert.Equal(t, int64(9600), sim.Installments[0].NetValues[0].Value.AmountMinor)
	assert.Equal(t, int64(9500), sim.Installments[0].NetValues[1].Value.AmountMinor)

	body = `{"info":{"value":"100.00"},"options":{}}`
	status, env = call(t, h, http.MethodPost, "/charges/simulate", body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, env.Error.Details, "billingMethods")
}

func TestListCustomers(t *testing.T) {
	h, _, dir := newTestRouter(t)
	dir.customers = []gateway.Customer{{ID: "cus_1", Name: "Maria Souza", CPFCNPJ: "24971563792"}}

	status, env := call(t, h, http.MethodGet, "/customers?search=Maria", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Maria", dir.search)

	var customers []gateway.Customer
	require.NoError(t, json.Unmarshal(env.Data, &customers))
	assert.Equal(t, dir.customers, customers)
}
