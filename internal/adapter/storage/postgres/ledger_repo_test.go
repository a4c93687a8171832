package postgres

import (
	"context"
	"testing"
	"time"

	"parel-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(walletID uuid.UUID, kind domain.LedgerKind, amount int64) domain.LedgerEntry {
	refID := "purchase-1"
	return domain.LedgerEntry{
		ID:        uuid.New(),
		WalletID:  walletID,
		TenantID:  "tenant-1",
		Kind:      kind,
		Amount:    decimal.NewFromInt(amount),
		Currency:  domain.CurrencyFunds,
		RefType:   "purchase",
		RefID:     &refID,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestLedgerRepo_CreateBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	walletID := uuid.New()
	entries := []domain.LedgerEntry{
		newTestEntry(walletID, domain.LedgerKindDebit, 30),
		newTestEntry(walletID, domain.LedgerKindCredit, 5),
	}

	mock.ExpectBegin()
	for _, e := range entries {
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(e.ID, e.WalletID, e.TenantID, e.Kind, e.Amount, e.Currency,
				e.RefType, e.RefID, e.Note, e.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.CreateBatch(context.Background(), tx, entries)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_CreateBatch_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.CreateBatch(context.Background(), tx, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	walletID := uuid.New()
	e := newTestEntry(walletID, domain.LedgerKindCredit, 50)

	rows := pgxmock.NewRows([]string{"id", "wallet_id", "tenant_id", "kind", "amount", "currency", "ref_type", "ref_id", "note", "created_at"}).
		AddRow(e.ID, e.WalletID, e.TenantID, e.Kind, e.Amount, e.Currency, e.RefType, e.RefID, e.Note, e.CreatedAt)

	mock.ExpectQuery("SELECT .+ FROM ledger_entries").
		WithArgs(walletID, 20, 0).
		WillReturnRows(rows)

	entries, err := repo.ListByWallet(context.Background(), walletID, 20, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.ID, entries[0].ID)
	assert.Equal(t, domain.LedgerKindCredit, entries[0].Kind)
	assert.True(t, e.Amount.Equal(entries[0].Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_NetByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	walletID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM ledger_entries WHERE wallet_id").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"funds", "diamonds"}).
			AddRow(decimal.NewFromFloat(70.25), decimal.NewFromInt(12)))

	net, err := repo.NetByWallet(context.Background(), walletID)
	require.NoError(t, err)
	assert.True(t, net.Funds.Equal(decimal.NewFromFloat(70.25)))
	assert.True(t, net.Diamonds.Equal(decimal.NewFromInt(12)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
