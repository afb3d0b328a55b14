package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prizeloop/backend/config"
	"github.com/stretchr/testify/require"
)

func newTestCaller(serverURL string) *paymentCaller {
	return NewPaymentCaller(config.PaymentConfigs{
		BaseURL:   serverURL,
		SecretKey: "sk_test",
		Timeout:   time.Second,
	})
}

func Test_paymentCaller_CreateTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transfers", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.Equal(t, "key_1", r.Header.Get("Idempotency-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "tr_123", "pending": true}`))
	}))
	defer server.Close()

	result, err := newTestCaller(server.URL).CreateTransfer(context.Background(), &TransferRequest{
		IdempotencyKey: "key_1",
		Destination:    "acct_1",
		Amount:         5000,
		Currency:       "usd",
	})
	require.NoError(t, err)
	require.Equal(t, "tr_123", result.Reference)
	require.True(t, result.Pending)
}

func Test_paymentCaller_Rejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error": {"code": "insufficient_funds", "message": "balance too low"}}`))
	}))
	defer server.Close()

	_, err := newTestCaller(server.URL).CreateTransfer(context.Background(), &TransferRequest{
		IdempotencyKey: "key_1",
	})

	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	require.Equal(t, "insufficient_funds", rejection.Code)
	require.Equal(t, "balance too low", rejection.Message)
}

func Test_paymentCaller_AmbiguousOutcome(t *testing.T) {
	// A 5xx means the processor may have executed the transfer anyway.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestCaller(server.URL).CreateTransfer(context.Background(), &TransferRequest{
		IdempotencyKey: "key_1",
	})
	require.ErrorIs(t, err, ErrAmbiguousOutcome)
}

func Test_paymentCaller_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	caller := NewPaymentCaller(config.PaymentConfigs{
		BaseURL:   server.URL,
		SecretKey: "sk_test",
		Timeout:   10 * time.Millisecond,
	})

	_, err := caller.CreateTransfer(context.Background(), &TransferRequest{IdempotencyKey: "key_1"})
	require.ErrorIs(t, err, ErrAmbiguousOutcome)
}
