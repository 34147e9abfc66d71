package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPGate talks JSON over HTTP to the payment service.
type HTTPGate struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGate creates a new HTTPGate. timeout caps every request even when
// the caller's context has no deadline.
func NewHTTPGate(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPGate {
	return &HTTPGate{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type authorizeRequest struct {
	BookingID   string `json:"booking_id"`
	PassengerID string `json:"passenger_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type authorizeResponse struct {
	Reference string `json:"reference"`
}

type amountRequest struct {
	AmountCents int64 `json:"amount_cents,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// refusal is a non-2xx answer from the payment service.
type refusal struct {
	status  int
	message string
}

func (r *refusal) Error() string {
	if r.message != "" {
		return fmt.Sprintf("%s: %s (status %d)", ErrDeclined, r.message, r.status)
	}
	return fmt.Sprintf("%s: status %d", ErrDeclined, r.status)
}

func (r *refusal) Unwrap() error { return ErrDeclined }

func (g *HTTPGate) Authorize(ctx context.Context, charge Charge) (Authorization, error) {
	req := authorizeRequest{
		BookingID:   charge.BookingID.String(),
		PassengerID: charge.PassengerID.String(),
		AmountCents: charge.AmountCents,
		Currency:    charge.Currency,
	}
	var resp authorizeResponse
	if err := g.do(ctx, "/v1/authorizations", "", req, &resp); err != nil {
		return Authorization{}, err
	}
	if resp.Reference == "" {
		return Authorization{}, fmt.Errorf("%w: empty authorization reference", ErrDeclined)
	}
	return Authorization{Reference: resp.Reference}, nil
}

// Capture settles an authorization. The request carries an idempotency key
// derived from the reference, and a 409 from the service means an earlier
// capture of the same authorization already went through.
func (g *HTTPGate) Capture(ctx context.Context, reference string, amountCents int64) error {
	err := g.do(ctx, "/v1/authorizations/"+reference+"/capture", "capture-"+reference, amountRequest{AmountCents: amountCents}, nil)
	var r *refusal
	if errors.As(err, &r) && r.status == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrAlreadyCaptured, reference)
	}
	return err
}

func (g *HTTPGate) Release(ctx context.Context, reference string) error {
	return g.do(ctx, "/v1/authorizations/"+reference+"/release", "", amountRequest{}, nil)
}

func (g *HTTPGate) Refund(ctx context.Context, reference string, amountCents int64) error {
	return g.do(ctx, "/v1/authorizations/"+reference+"/refunds", "", amountRequest{AmountCents: amountCents}, nil)
}

func (g *HTTPGate) do(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read payment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		g.logger.Warn("payment service refused request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", e.Message),
		)
		return &refusal{status: resp.StatusCode, message: e.Message}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode payment response: %w", err)
		}
	}
	return nil
}
