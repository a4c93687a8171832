package service

import (
	"context"
	"testing"

	"parel-ledger/internal/core/domain"
	"parel-ledger/internal/core/ports"
	"parel-ledger/internal/core/ports/mocks"
	"parel-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type txTestDeps struct {
	svc        *TransactionServiceImpl
	walletRepo *mocks.MockWalletRepository
	ledgerRepo *mocks.MockLedgerRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupTransactionService(t *testing.T) *txTestDeps {
	ctrl := gomock.NewController(t)
	d := &txTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewTransactionService(d.walletRepo, d.ledgerRepo, d.transactor, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

func testWallet(userID string, funds int64, diamonds int64) *domain.Wallet {
	return &domain.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		TenantID: "tenant-1",
		Funds:    decimal.NewFromInt(funds),
		Diamonds: diamonds,
	}
}

func TestTransactionService_ApplyDelta_Success(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet("user-1", 100, 5)
	refID := "quest-99"

	req := ports.DeltaRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Funds:    decimal.NewFromInt(-30),
		Diamonds: 2,
		RefType:  "quest_reward",
		RefID:    &refID,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, decimal.NewFromInt(70), int64(7)).Return(nil)
	d.ledgerRepo.EXPECT().CreateBatch(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, entries []domain.LedgerEntry) error {
			require.Len(t, entries, 2)
			assert.Equal(t, domain.LedgerKindDebit, entries[0].Kind)
			assert.Equal(t, domain.CurrencyFunds, entries[0].Currency)
			assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(30)))
			assert.Equal(t, "quest_reward", entries[0].RefType)
			require.NotNil(t, entries[0].RefID)
			assert.Equal(t, refID, *entries[0].RefID)
			assert.Equal(t, domain.LedgerKindCredit, entries[1].Kind)
			assert.Equal(t, domain.CurrencyDiamonds, entries[1].Currency)
			return nil
		})

	balance, err := d.svc.ApplyDelta(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.True(t, balance.Funds.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, int64(7), balance.Diamonds)
}

func TestTransactionService_ApplyDelta_InsufficientFunds(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet("user-1", 100, 0)

	req := ports.DeltaRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Funds:    decimal.NewFromInt(-150),
		RefType:  "purchase",
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").Return(wallet, nil)
	// No UpdateBalances, no CreateBatch: the mutation aborts with no side effects.

	balance, err := d.svc.ApplyDelta(ctx, req)
	assert.Nil(t, balance)
	assertAppError(t, err, "WAL_002")
	assert.Contains(t, err.Error(), "required 150")
	assert.Contains(t, err.Error(), "available 100")
}

func TestTransactionService_ApplyDelta_InsufficientDiamonds(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet("user-1", 500, 1)

	req := ports.DeltaRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Diamonds: -2,
		RefType:  "crafting",
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").Return(wallet, nil)

	balance, err := d.svc.ApplyDelta(ctx, req)
	assert.Nil(t, balance)
	assertAppError(t, err, "WAL_002")
	assert.Contains(t, err.Error(), "DIAMONDS")
}

func TestTransactionService_ApplyDelta_WalletNotFound(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	req := ports.DeltaRequest{
		UserID:   "ghost",
		TenantID: "tenant-1",
		Funds:    decimal.NewFromInt(10),
		RefType:  "reward",
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "ghost", "tenant-1").Return(nil, nil)

	balance, err := d.svc.ApplyDelta(ctx, req)
	assert.Nil(t, balance)
	assertAppError(t, err, "WAL_001")
}

func TestTransactionService_ApplyDelta_Validation(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	cases := []struct {
		name string
		req  ports.DeltaRequest
	}{
		{"missing user", ports.DeltaRequest{TenantID: "tenant-1", RefType: "reward"}},
		{"missing tenant", ports.DeltaRequest{UserID: "user-1", RefType: "reward"}},
		{"missing ref type", ports.DeltaRequest{UserID: "user-1", TenantID: "tenant-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			balance, err := d.svc.ApplyDelta(context.Background(), tc.req)
			assert.Nil(t, balance)
			assertAppError(t, err, "WAL_003")
		})
	}
}

func TestTransactionService_ApplyDelta_ZeroDeltaWritesNothing(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet("user-1", 42, 3)

	req := ports.DeltaRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		RefType:  "noop",
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").Return(wallet, nil)

	balance, err := d.svc.ApplyDelta(ctx, req)
	require.NoError(t, err)
	assert.True(t, balance.Funds.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, int64(3), balance.Diamonds)
}

func TestTransactionService_ApplyDelta_NotIdempotent(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	refID := "reward-1"

	req := ports.DeltaRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Funds:    decimal.NewFromInt(10),
		RefType:  "reward",
		RefID:    &refID,
	}

	// Two identical calls both apply: two balance updates, two journal writes.
	first := testWallet("user-1", 0, 0)
	second := testWallet("user-1", 10, 0)
	second.ID = first.ID

	gomock.InOrder(
		d.transactor.EXPECT().Begin(ctx).Return(tx, nil),
		d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").Return(first, nil),
		d.walletRepo.EXPECT().UpdateBalances(ctx, tx, first.ID, decimal.NewFromInt(10), int64(0)).Return(nil),
		d.ledgerRepo.EXPECT().CreateBatch(ctx, tx, gomock.Any()).Return(nil),
		d.transactor.EXPECT().Begin(ctx).Return(tx, nil),
		d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").Return(second, nil),
		d.walletRepo.EXPECT().UpdateBalances(ctx, tx, first.ID, decimal.NewFromInt(20), int64(0)).Return(nil),
		d.ledgerRepo.EXPECT().CreateBatch(ctx, tx, gomock.Any()).Return(nil),
	)

	b1, err := d.svc.ApplyDelta(ctx, req)
	require.NoError(t, err)
	b2, err := d.svc.ApplyDelta(ctx, req)
	require.NoError(t, err)

	assert.True(t, b1.Funds.Equal(decimal.NewFromInt(10)))
	assert.True(t, b2.Funds.Equal(decimal.NewFromInt(20)))
}

func TestTransactionService_ClaimBadgeReward(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	wallet := testWallet("user-1", 10, 0)

	req := ports.BadgeClaimRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		BadgeID:  "badge-streak-7",
		Funds:    decimal.NewFromInt(25),
		Diamonds: 1,
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalances(ctx, tx, wallet.ID, decimal.NewFromInt(35), int64(1)).Return(nil)
	d.ledgerRepo.EXPECT().CreateBatch(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, entries []domain.LedgerEntry) error {
			require.Len(t, entries, 2)
			assert.Equal(t, "badge_claim", entries[0].RefType)
			require.NotNil(t, entries[0].RefID)
			assert.Equal(t, "badge-streak-7", *entries[0].RefID)
			return nil
		})
	d.walletRepo.EXPECT().IncrementBadgeClaims(ctx, tx, wallet.ID).Return(nil)

	balance, err := d.svc.ClaimBadgeReward(ctx, req)
	require.NoError(t, err)
	assert.True(t, balance.Funds.Equal(decimal.NewFromInt(35)))
	assert.Equal(t, int64(1), balance.Diamonds)
}

func TestTransactionService_ClaimBadgeReward_RejectsNegativeReward(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	req := ports.BadgeClaimRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		BadgeID:  "badge-1",
		Funds:    decimal.NewFromInt(-5),
	}

	balance, err := d.svc.ClaimBadgeReward(context.Background(), req)
	assert.Nil(t, balance)
	assertAppError(t, err, "WAL_003")
}

func TestTransactionService_ApplyDelta_ContentionTimeoutPassthrough(t *testing.T) {
	d := setupTransactionService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	req := ports.DeltaRequest{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Funds:    decimal.NewFromInt(-1),
		RefType:  "purchase",
	}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByOwnerForUpdate(ctx, tx, "user-1", "tenant-1").
		Return(nil, apperror.ErrContentionTimeout(context.DeadlineExceeded))

	balance, err := d.svc.ApplyDelta(ctx, req)
	assert.Nil(t, balance)
	assertAppError(t, err, "SYS_002")
}
