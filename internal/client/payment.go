package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/prizeloop/backend/config"
)

// ErrAmbiguousOutcome marks a call whose effect on the processor side is
// unknown (timeout, connection reset, 5xx). Callers must NOT treat it as
// failure: the webhook inbox resolves the real outcome later.
var ErrAmbiguousOutcome = errors.New("ambiguous processor outcome")

// RejectionError is a definitive synchronous denial from the processor.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("processor rejected request: %s (%s)", e.Message, e.Code)
}

type TransferRequest struct {
	IdempotencyKey string `json:"-"`
	Destination    string `json:"destination"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description"`
}

type RefundRequest struct {
	IdempotencyKey   string `json:"-"`
	PaymentReference string `json:"payment_reference"`
	Amount           int64  `json:"amount"`
	Reason           string `json:"reason"`
}

type TransferResult struct {
	Reference string `json:"id"`
	Pending   bool   `json:"pending"`
}

type Account struct {
	ID             string `json:"id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// PaymentCaller is the capability set this core needs from the external
// payment processor. The production implementation talks to a Stripe-like
// HTTP API; tests inject a double.
type PaymentCaller interface {
	CreateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error)
	CreateRefund(ctx context.Context, req *RefundRequest) (*TransferResult, error)
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
}

type paymentCaller struct {
	cfg    config.PaymentConfigs
	client *http.Client
}

func NewPaymentCaller(cfg config.PaymentConfigs) *paymentCaller {
	return &paymentCaller{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *paymentCaller) CreateTransfer(
	ctx context.Context, req *TransferRequest,
) (*TransferResult, error) {
	var result TransferResult
	if err := c.post(ctx, "/v1/transfers", req.IdempotencyKey, req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *paymentCaller) CreateRefund(
	ctx context.Context, req *RefundRequest,
) (*TransferResult, error) {
	var result TransferResult
	if err := c.post(ctx, "/v1/refunds", req.IdempotencyKey, req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *paymentCaller) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.cfg.BaseURL+"/v1/accounts/"+accountID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	var account Account
	if err := c.decode(resp, &account); err != nil {
		return nil, err
	}

	return &account, nil
}

func (c *paymentCaller) post(
	ctx context.Context, path, idempotencyKey string, body, result any,
) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	return c.decode(resp, result)
}

func (c *paymentCaller) decode(resp *http.Response, result any) error {
	// A 5xx means the processor may or may not have executed the request.
	if resp.StatusCode >= 500 {
		return ErrAmbiguousOutcome
	}

	if resp.StatusCode >= 400 {
		var rejection struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&rejection); err != nil {
			return &RejectionError{Code: "unknown", Message: resp.Status}
		}

		return &RejectionError{Code: rejection.Error.Code, Message: rejection.Error.Message}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrAmbiguousOutcome
	}

	return json.Unmarshal(b, result)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrAmbiguousOutcome
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrAmbiguousOutcome
	}

	return err
}
