package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"parel-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for
// pessimistic locking; only those methods may write balances.
type WalletRepository interface {
	// Create inserts a wallet row, ignoring the insert if the
	// (user, tenant) pair already owns one.
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByOwner(ctx context.Context, userID, tenantID string) (*domain.Wallet, error)
	// GetByOwnerForUpdate locks the wallet row until the transaction ends.
	GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, userID, tenantID string) (*domain.Wallet, error)
	// LockPairForUpdate locks both parties' wallet rows in ascending
	// wallet-id order, in a single statement, so opposite-direction
	// transfers cannot deadlock. Returns only the rows that exist.
	LockPairForUpdate(ctx context.Context, tx pgx.Tx, tenantID string, userIDs []string) ([]domain.Wallet, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, funds decimal.Decimal, diamonds int64) error
	IncrementBadgeClaims(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) error
	// ListIDs pages through wallet ids for the reconciliation sweep.
	ListIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
}

// LedgerRepository defines persistence for the append-only ledger journal.
// Entries are inserted inside the mutating transaction and never updated.
type LedgerRepository interface {
	CreateBatch(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	// NetByWallet replays a wallet's full history server-side:
	// per-currency sum of credits minus debits.
	NetByWallet(ctx context.Context, walletID uuid.UUID) (*LedgerNet, error)
}

// LedgerNet is the per-currency net of a wallet's full entry history.
type LedgerNet struct {
	Funds    decimal.Decimal
	Diamonds decimal.Decimal
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SweepLock serializes the reconciliation sweep across replicas.
type SweepLock interface {
	// Acquire returns true if this process now holds the sweep lock.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}
