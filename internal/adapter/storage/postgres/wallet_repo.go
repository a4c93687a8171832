package postgres

import (
	"context"
	"errors"
	"fmt"

	"parel-ledger/internal/core/domain"
	"parel-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, tenant_id, funds, diamonds, badges_claimed_count, created_at, updated_at`

// Create inserts a new wallet. If the (user, tenant) pair already owns one
// the insert is a no-op, which makes lazy provisioning race-safe.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, user_id, tenant_id, funds, diamonds, badges_claimed_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, tenant_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.UserID, w.TenantID, w.Funds, w.Diamonds,
		w.BadgesClaimedCount, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.UserID, &w.TenantID, &w.Funds, &w.Diamonds,
		&w.BadgesClaimedCount, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByOwner fetches a wallet by identity (non-locking read).
func (r *WalletRepo) GetByOwner(ctx context.Context, userID, tenantID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 AND tenant_id = $2`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, userID, tenantID).Scan(
		&w.ID, &w.UserID, &w.TenantID, &w.Funds, &w.Diamonds,
		&w.BadgesClaimedCount, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by owner: %w", err)
	}
	return w, nil
}

// GetByOwnerForUpdate fetches a wallet by identity with pessimistic locking.
// This MUST be called within a transaction; the row stays locked until the
// transaction ends.
func (r *WalletRepo) GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, userID, tenantID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 AND tenant_id = $2 FOR UPDATE`

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query, userID, tenantID).Scan(
		&w.ID, &w.UserID, &w.TenantID, &w.Funds, &w.Diamonds,
		&w.BadgesClaimedCount, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if IsLockTimeout(err) {
			return nil, apperror.ErrContentionTimeout(fmt.Errorf("get wallet for update: %w", err))
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// LockPairForUpdate locks both transfer parties' wallets in one statement.
// ORDER BY id makes the lock order deterministic regardless of transfer
// direction. Missing wallets are simply absent from the result.
func (r *WalletRepo) LockPairForUpdate(ctx context.Context, tx pgx.Tx, tenantID string, userIDs []string) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE tenant_id = $1 AND user_id = ANY($2)
		ORDER BY id FOR UPDATE`

	rows, err := tx.Query(ctx, query, tenantID, userIDs)
	if err != nil {
		if IsLockTimeout(err) {
			return nil, apperror.ErrContentionTimeout(fmt.Errorf("lock wallet pair: %w", err))
		}
		return nil, fmt.Errorf("lock wallet pair: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(
			&w.ID, &w.UserID, &w.TenantID, &w.Funds, &w.Diamonds,
			&w.BadgesClaimedCount, &w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan locked wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock wallet pair rows: %w", err)
	}
	return wallets, nil
}

// UpdateBalances writes both balances within a transaction. The caller must
// hold the row lock.
func (r *WalletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, funds decimal.Decimal, diamonds int64) error {
	query := `UPDATE wallets SET funds = $1, diamonds = $2, updated_at = NOW() WHERE id = $3`

	tag, err := tx.Exec(ctx, query, funds, diamonds, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// IncrementBadgeClaims bumps the claimed-badges counter within a transaction.
func (r *WalletRepo) IncrementBadgeClaims(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) error {
	query := `UPDATE wallets SET badges_claimed_count = badges_claimed_count + 1, updated_at = NOW() WHERE id = $1`

	tag, err := tx.Exec(ctx, query, walletID)
	if err != nil {
		return fmt.Errorf("increment badge claims: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// ListIDs returns up to limit wallet ids greater than afterID, ascending.
// Keyset pagination keeps the reconciliation sweep stable while wallets are
// created concurrently.
func (r *WalletRepo) ListIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM wallets WHERE id > $1 ORDER BY id LIMIT $2`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wallet ids rows: %w", err)
	}
	return ids, nil
}
