package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"

	"parel-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletService exposes balance reads and lazy wallet provisioning.
type WalletService interface {
	// GetBalance returns a consistent snapshot, never a partial update.
	GetBalance(ctx context.Context, userID, tenantID string) (*domain.Balance, error)
	// EnsureWallet provisions the identity's wallet with zero balances if
	// it does not exist yet. Idempotent.
	EnsureWallet(ctx context.Context, userID, tenantID string) (*domain.Wallet, error)
	// ListLedger returns the wallet's audit trail, newest first.
	ListLedger(ctx context.Context, userID, tenantID string, limit, offset int) ([]domain.LedgerEntry, error)
}

// TransactionService is the coordinator: it atomically validates and applies
// one wallet's balance delta and writes the matching journal entries.
// Deliberately non-idempotent: two identical requests produce two entries
// and two balance changes.
type TransactionService interface {
	ApplyDelta(ctx context.Context, req DeltaRequest) (*domain.Balance, error)
	// ClaimBadgeReward applies a badge reward and bumps the wallet's
	// claimed-badges counter in the same unit of work.
	ClaimBadgeReward(ctx context.Context, req BadgeClaimRequest) (*domain.Balance, error)
}

// DeltaRequest holds validated input for one balance mutation.
type DeltaRequest struct {
	UserID   string
	TenantID string
	Funds    decimal.Decimal // signed
	Diamonds int64           // signed
	RefType  string
	RefID    *string
	Note     *string
}

// Delta returns the request's per-currency change.
func (r DeltaRequest) Delta() domain.Delta {
	return domain.Delta{Funds: r.Funds, Diamonds: r.Diamonds}
}

// BadgeClaimRequest holds input for a badge reward payout.
type BadgeClaimRequest struct {
	UserID   string
	TenantID string
	BadgeID  string
	Funds    decimal.Decimal // non-negative reward
	Diamonds int64           // non-negative reward
}

// TransferService moves currency between two wallets of one tenant as a
// single atomic unit: either both balances move or neither does.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) error
}

// TransferRequest holds validated input for a two-party transfer.
// Amounts are positive magnitudes taken from the sender.
type TransferRequest struct {
	FromUserID string
	ToUserID   string
	TenantID   string
	Funds      decimal.Decimal
	Diamonds   int64
	RefType    string
	Note       *string
}

// BulkService fans independent deltas out to the coordinator. One item's
// failure never blocks or rolls back siblings.
type BulkService interface {
	BulkApply(ctx context.Context, updates []DeltaRequest) *BulkResult
}

// BulkResult summarizes a bulk run. OK is the logical AND of the items,
// not a transactional guarantee.
type BulkResult struct {
	OK    bool
	Items []BulkItemResult
}

// BulkItemResult is one update's outcome, at the same index as its input.
type BulkItemResult struct {
	OK  bool
	Err error
}

// ReconcileService checks the reconciliation invariant: replaying a
// wallet's ledger from zero reproduces its stored balance.
type ReconcileService interface {
	ReconcileWallet(ctx context.Context, walletID uuid.UUID) (*ReconcileReport, error)
	// Sweep reconciles all wallets in pages. Intended to run on a schedule
	// under the cross-replica sweep lock.
	Sweep(ctx context.Context) (*SweepReport, error)
}

// ReconcileReport describes one wallet's replay outcome.
type ReconcileReport struct {
	WalletID       uuid.UUID
	Balanced       bool
	WalletFunds    decimal.Decimal
	LedgerFunds    decimal.Decimal
	WalletDiamonds int64
	LedgerDiamonds int64
}

// SweepReport aggregates a full sweep. Skipped is true when another replica
// held the sweep lock and this run did nothing.
type SweepReport struct {
	Skipped        bool
	WalletsChecked int
	Drifted        []ReconcileReport
}
