package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"edunexia/internal/charge"
	"edunexia/internal/common/api"
	"edunexia/internal/common/money"
	"edunexia/internal/gateway"
	"edunexia/internal/wizard"
)

// dateLayout is the wire format of due dates.
const dateLayout = "2006-01-02"

// CustomerDirectory looks up the payer of a charge.
type CustomerDirectory interface {
	ListCustomers(ctx context.Context, search string) ([]gateway.Customer, error)
}

// Handler handles charge wizard HTTP requests
type Handler struct {
	service   *wizard.Service
	customers CustomerDirectory
	logger    *slog.Logger
}

// NewHandler creates a new wizard handler
func NewHandler(service *wizard.Service, customers CustomerDirectory, logger *slog.Logger) *Handler {
	return &Handler{service: service, customers: customers, logger: logger}
}

// Routes returns the wizard routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/wizards", h.CreateWizard)
	r.Route("/wizards/{id}", func(r chi.Router) {
		r.Get("/", h.GetWizard)
		r.Put("/info", h.UpdateInfo)
		r.Put("/payment-methods", h.UpdatePaymentMethods)
		r.Post("/next", h.Next)
		r.Post("/back", h.Back)
		r.Get("/summary", h.Summary)
		r.Post("/submit", h.Submit)
		r.Get("/attempts", h.ListAttempts)
	})

	r.Post("/charges/simulate", h.Simulate)
	r.Get("/customers", h.ListCustomers)

	return r
}

// LinkInfoRequest is the body of the link info step
type LinkInfoRequest struct {
	CustomerID        string          `json:"customerId"`
	Value             decimal.Decimal `json:"value"`
	FreeValue         bool            `json:"freeValue"`
	Description       string          `json:"description"`
	DueDate           string          `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
	ExternalReference string          `json:"externalReference"`
}

func (req LinkInfoRequest) toLinkInfo() (charge.LinkInfo, error) {
	value, err := money.FromDecimal(req.Value, money.BRL)
	switch {
	case errors.Is(err, money.ErrTooPrecise):
		return charge.LinkInfo{}, &charge.ValidationError{Field: "value", Message: "must have at most 2 decimal places"}
	case err != nil:
		return charge.LinkInfo{}, &charge.ValidationError{
			Field:   "value",
			Message: "must not exceed " + money.New(charge.MaxValueMinor, money.BRL).String(),
		}
	}

	var due time.Time
	if req.DueDate != "" {
		if due, err = time.Parse(dateLayout, req.DueDate); err != nil {
			return charge.LinkInfo{}, &charge.ValidationError{Field: "dueDate", Message: "must be a date formatted as " + dateLayout}
		}
	}

	return charge.LinkInfo{
		CustomerID:        strings.TrimSpace(req.CustomerID),
		Value:             value,
		FreeValue:         req.FreeValue,
		Description:       strings.TrimSpace(req.Description),
		DueDate:           due,
		ExternalReference: strings.TrimSpace(req.ExternalReference),
	}, nil
}

// SimulateRequest is the body of a stateless simulation
type SimulateRequest struct {
	Info    LinkInfoRequest       `json:"info"`
	Options charge.PaymentOptions `json:"options"`
}

// CreateWizard handles POST /wizards
func (h *Handler) CreateWizard(w http.ResponseWriter, r *http.Request) {
	wiz, err := h.service.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusCreated, wiz)
}

// GetWizard handles GET /wizards/{id}
func (h *Handler) GetWizard(w http.ResponseWriter, r *http.Request) {
	wiz, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, wiz)
}

// UpdateInfo handles PUT /wizards/{id}/info
func (h *Handler) UpdateInfo(w http.ResponseWriter, r *http.Request) {
	var req LinkInfoRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.DecodeError(w, err)
		return
	}

	info, err := req.toLinkInfo()
	if err != nil {
		h.writeError(w, err)
		return
	}

	wiz, err := h.service.UpdateInfo(r.Context(), chi.URLParam(r, "id"), info)
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, wiz)
}

// UpdatePaymentMethods handles PUT /wizards/{id}/payment-methods
func (h *Handler) UpdatePaymentMethods(w http.ResponseWriter, r *http.Request) {
	var opts charge.PaymentOptions
	if err := api.Decode(r, &opts); err != nil {
		api.DecodeError(w, err)
		return
	}

	wiz, err := h.service.UpdateOptions(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, wiz)
}

// Next handles POST /wizards/{id}/next
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	wiz, err := h.service.Next(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, wiz)
}

// Back handles POST /wizards/{id}/back
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	wiz, err := h.service.Back(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, wiz)
}

// Summary handles GET /wizards/{id}/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sim, err := h.service.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, sim)
}

// Submit handles POST /wizards/{id}/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	wiz, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var gerr *gateway.Error
		if errors.As(err, &gerr) && wiz != nil {
			api.GatewayError(w, gerr.Message, wiz)
			return
		}
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, wiz)
}

// ListAttempts handles GET /wizards/{id}/attempts
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.Attempts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, attempts)
}

// Simulate handles POST /charges/simulate
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := api.Decode(r, &req); err != nil {
		api.DecodeError(w, err)
		return
	}
	// Options are checked by the simulation itself, field by field.
	if err := api.Validate.Struct(req.Info); err != nil {
		api.ValidationError(w, err)
		return
	}

	info, err := req.Info.toLinkInfo()
	if err != nil {
		h.writeError(w, err)
		return
	}

	sim, err := h.service.Simulate(charge.Draft{Info: info, Options: req.Options})
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, sim)
}

// ListCustomers handles GET /customers?search=
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.ListCustomers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, customers)
}

// writeError maps domain errors to HTTP responses
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *charge.ValidationError
	var gerr *gateway.Error
	switch {
	case errors.As(err, &verr):
		api.FieldError(w, verr.Field, verr.Message)
	case errors.Is(err, wizard.ErrNotFound):
		api.NotFound(w, "wizard not found")
	case errors.Is(err, wizard.ErrInvalidTransition), errors.Is(err, wizard.ErrSubmissionInFlight):
		api.Conflict(w, err.Error())
	case errors.As(err, &gerr):
		api.GatewayError[any](w, gerr.Message, nil)
	default:
		h.logger.Error("request failed", "error", err)
		api.InternalError(w, "internal error")
	}
}
