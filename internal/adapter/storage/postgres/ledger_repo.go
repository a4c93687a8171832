package postgres

import (
	"context"
	"fmt"

	"parel-ledger/internal/core/domain"
	"parel-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository. The ledger_entries table is
// append-only: this repo exposes no update or delete path.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, wallet_id, tenant_id, kind, amount, currency, ref_type, ref_id, note, created_at`

// CreateBatch inserts entries within the caller's transaction, so the audit
// trail commits or rolls back together with the balance change it records.
func (r *LedgerRepo) CreateBatch(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, wallet_id, tenant_id, kind, amount, currency, ref_type, ref_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i := range entries {
		e := &entries[i]
		if _, err := tx.Exec(ctx, query,
			e.ID, e.WalletID, e.TenantID, e.Kind, e.Amount, e.Currency,
			e.RefType, e.RefID, e.Note, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return nil
}

// ListByWallet returns a wallet's entries, newest first.
func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.WalletID, &e.TenantID, &e.Kind, &e.Amount, &e.Currency,
			&e.RefType, &e.RefID, &e.Note, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ledger entries rows: %w", err)
	}
	return entries, nil
}

// NetByWallet replays the wallet's full history server-side: credits minus
// debits, per currency. Used by the reconciliation sweep.
func (r *LedgerRepo) NetByWallet(ctx context.Context, walletID uuid.UUID) (*ports.LedgerNet, error) {
	query := `SELECT
		COALESCE(SUM(CASE WHEN currency = 'FUNDS' THEN
			CASE WHEN kind = 'CREDIT' THEN amount ELSE -amount END ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN currency = 'DIAMONDS' THEN
			CASE WHEN kind = 'CREDIT' THEN amount ELSE -amount END ELSE 0 END), 0)
		FROM ledger_entries WHERE wallet_id = $1`

	net := &ports.LedgerNet{}
	if err := r.pool.QueryRow(ctx, query, walletID).Scan(&net.Funds, &net.Diamonds); err != nil {
		return nil, fmt.Errorf("net ledger by wallet: %w", err)
	}
	return net, nil
}
