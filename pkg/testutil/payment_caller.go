package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prizeloop/backend/internal/client"
)

// MockPaymentCaller stands in for the external processor. Each call is
// recorded; behavior is overridden per test through the Func fields. The
// default behavior accepts everything and returns a fresh reference.
type MockPaymentCaller struct {
	CreateTransferFunc  func(context.Context, *client.TransferRequest) (*client.TransferResult, error)
	CreateRefundFunc    func(context.Context, *client.RefundRequest) (*client.TransferResult, error)
	RetrieveAccountFunc func(context.Context, string) (*client.Account, error)

	mutex     sync.Mutex
	Transfers []*client.TransferRequest
	Refunds   []*client.RefundRequest
}

func (m *MockPaymentCaller) CreateTransfer(
	ctx context.Context, req *client.TransferRequest,
) (*client.TransferResult, error) {
	m.mutex.Lock()
	m.Transfers = append(m.Transfers, req)
	m.mutex.Unlock()

	if m.CreateTransferFunc != nil {
		return m.CreateTransferFunc(ctx, req)
	}

	return &client.TransferResult{Reference: "tr_" + uuid.NewString(), Pending: true}, nil
}

func (m *MockPaymentCaller) CreateRefund(
	ctx context.Context, req *client.RefundRequest,
) (*client.TransferResult, error) {
	m.mutex.Lock()
	m.Refunds = append(m.Refunds, req)
	m.mutex.Unlock()

	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, req)
	}

	return &client.TransferResult{Reference: "re_" + uuid.NewString(), Pending: true}, nil
}

func (m *MockPaymentCaller) RetrieveAccount(
	ctx context.Context, accountID string,
) (*client.Account, error) {
	if m.RetrieveAccountFunc != nil {
		return m.RetrieveAccountFunc(ctx, accountID)
	}

	return &client.Account{ID: accountID, PayoutsEnabled: true}, nil
}
