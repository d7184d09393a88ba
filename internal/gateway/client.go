// Package gateway submits charges to the payment gateway (Asaas) and reads
// its customer directory.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edunexia/internal/charge"
)

// Config holds gateway client configuration.
type Config struct {
	BaseURL string        `envconfig:"GATEWAY_BASE_URL" default:"https://sandbox.asaas.com/api/v3"`
	APIKey  string        `envconfig:"GATEWAY_API_KEY"`
	Timeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
}

// Error is a failed gateway call. StatusCode is 0 when the request never got
// an HTTP response.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gateway unreachable: %s", e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// IsGatewayError reports whether err came from the gateway or the network to it.
func IsGatewayError(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr)
}

// ChargeResult is the gateway's acknowledgement of a created charge.
type ChargeResult struct {
	ID         string `json:"id"`
	InvoiceURL string `json:"invoiceUrl,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Customer is an entry of the gateway's customer directory.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	CPFCNPJ string `json:"cpfCnpj"`
}

// Client talks to the gateway's REST API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new gateway client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// CreateCharge submits req. The idempotency key is sent on every attempt so
// the gateway can collapse retries of the same wizard.
func (c *Client) CreateCharge(ctx context.Context, req *charge.ChargeRequest, idempotencyKey string) (*ChargeResult, error) {
	body, err := json.Marshal(NewChargePayload(req))
	if err != nil {
		return nil, fmt.Errorf("marshal charge payload: %w", err)
	}

	c.logger.Info("submitting charge",
		"customer_id", req.CustomerID,
		"value_minor", req.Value.AmountMinor,
		"installments", req.InstallmentCount(),
		"idempotency_key", idempotencyKey,
	)

	var resp struct {
		Success    *bool  `json:"success"`
		ID         string `json:"id"`
		InvoiceURL string `json:"invoiceUrl"`
		Status     string `json:"status"`
		Message    string `json:"message"`
	}
	status, err := c.do(ctx, http.MethodPost, "/payments", body, idempotencyKey, &resp)
	if err != nil {
		return nil, err
	}

	if (resp.Success != nil && !*resp.Success) || resp.ID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "gateway did not return a charge identifier"
		}
		return nil, &Error{StatusCode: status, Message: msg}
	}

	c.logger.Info("charge accepted by gateway",
		"provider_ref", resp.ID,
		"idempotency_key", idempotencyKey,
	)

	return &ChargeResult{ID: resp.ID, InvoiceURL: resp.InvoiceURL, Status: resp.Status}, nil
}

// ListCustomers searches the customer directory by name.
func (c *Client) ListCustomers(ctx context.Context, search string) ([]Customer, error) {
	path := "/customers"
	if search = strings.TrimSpace(search); search != "" {
		path += "?" + url.Values{"name": {search}}.Encode()
	}

	var resp struct {
		Data []Customer `json:"data"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []Customer{}
	}
	return resp.Data, nil
}

// do performs one request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("access_token", c.config.APIKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, &Error{Message: err.Error(), cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, &Error{StatusCode: httpResp.StatusCode, Message: "reading response: " + err.Error(), cause: err}
	}

	if httpResp.StatusCode >= 400 {
		gerr := decodeError(httpResp.StatusCode, respBody)
		c.logger.Warn("gateway rejected request",
			"method", method,
			"path", path,
			"status", httpResp.StatusCode,
			"code", gerr.Code,
			"message", gerr.Message,
		)
		return httpResp.StatusCode, gerr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return httpResp.StatusCode, &Error{StatusCode: httpResp.StatusCode, Message: "invalid response body", cause: err}
	}
	return httpResp.StatusCode, nil
}

// decodeError understands both {"errors":[{"code","description"}]} and {"message"}.
func decodeError(status int, body []byte) *Error {
	var payload struct {
		Errors []struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	gerr := &Error{StatusCode: status}
	if err := json.Unmarshal(body, &payload); err != nil {
		gerr.Message = strings.TrimSpace(string(body))
		if gerr.Message == "" {
			gerr.Message = http.StatusText(status)
		}
		return gerr
	}

	switch {
	case len(payload.Errors) > 0:
		gerr.Code = payload.Errors[0].Code
		descs := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			descs = append(descs, e.Description)
		}
		gerr.Message = strings.Join(descs, "; ")
	case payload.Message != "":
		gerr.Message = payload.Message
	default:
		gerr.Message = http.StatusText(status)
	}
	return gerr
}
