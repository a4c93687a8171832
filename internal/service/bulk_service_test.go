package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"parel-ledger/internal/core/domain"
	"parel-ledger/internal/core/ports"
	"parel-ledger/internal/core/ports/mocks"
	"parel-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBulkService_BulkApply_AllSucceed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	txSvc := mocks.NewMockTransactionService(ctrl)
	svc := NewBulkService(txSvc, 4, zerolog.Nop())

	updates := []ports.DeltaRequest{
		{UserID: "a", TenantID: "t", Funds: decimal.NewFromInt(10), RefType: "payout"},
		{UserID: "b", TenantID: "t", Funds: decimal.NewFromInt(20), RefType: "payout"},
		{UserID: "c", TenantID: "t", Funds: decimal.NewFromInt(30), RefType: "payout"},
	}

	txSvc.EXPECT().ApplyDelta(gomock.Any(), gomock.Any()).
		Return(&domain.Balance{}, nil).Times(3)

	res := svc.BulkApply(context.Background(), updates)
	require.Len(t, res.Items, 3)
	assert.True(t, res.OK)
	for i := range res.Items {
		assert.True(t, res.Items[i].OK)
		assert.NoError(t, res.Items[i].Err)
	}
}

func TestBulkService_BulkApply_PartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	txSvc := mocks.NewMockTransactionService(ctrl)
	svc := NewBulkService(txSvc, 4, zerolog.Nop())

	updates := []ports.DeltaRequest{
		{UserID: "a", TenantID: "t", Funds: decimal.NewFromInt(10), RefType: "payout"},
		{UserID: "ghost", TenantID: "t", Funds: decimal.NewFromInt(10), RefType: "payout"},
		{UserID: "c", TenantID: "t", Funds: decimal.NewFromInt(10), RefType: "payout"},
	}

	txSvc.EXPECT().ApplyDelta(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.DeltaRequest) (*domain.Balance, error) {
			if req.UserID == "ghost" {
				return nil, apperror.ErrWalletNotFound()
			}
			return &domain.Balance{}, nil
		}).Times(3)

	res := svc.BulkApply(context.Background(), updates)
	require.Len(t, res.Items, 3)

	// One missing wallet fails its own item but never blocks siblings.
	assert.False(t, res.OK)
	assert.True(t, res.Items[0].OK)
	assert.False(t, res.Items[1].OK)
	assertAppError(t, res.Items[1].Err, "WAL_001")
	assert.True(t, res.Items[2].OK)
}

func TestBulkService_BulkApply_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	txSvc := mocks.NewMockTransactionService(ctrl)
	svc := NewBulkService(txSvc, 4, zerolog.Nop())

	res := svc.BulkApply(context.Background(), nil)
	assert.True(t, res.OK)
	assert.Empty(t, res.Items)
}

func TestBulkService_BulkApply_BoundsConcurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	txSvc := mocks.NewMockTransactionService(ctrl)
	svc := NewBulkService(txSvc, 2, zerolog.Nop())

	var inFlight, peak int64
	var mu sync.Mutex
	txSvc.EXPECT().ApplyDelta(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ ports.DeltaRequest) (*domain.Balance, error) {
			n := atomic.AddInt64(&inFlight, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			defer atomic.AddInt64(&inFlight, -1)
			return &domain.Balance{}, nil
		}).Times(10)

	updates := make([]ports.DeltaRequest, 10)
	for i := range updates {
		updates[i] = ports.DeltaRequest{UserID: "u", TenantID: "t", Funds: decimal.NewFromInt(1), RefType: "payout"}
	}

	res := svc.BulkApply(context.Background(), updates)
	assert.True(t, res.OK)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(2))
}
