package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerKind marks the direction of a balance change.
type LedgerKind string

const (
	LedgerKindCredit LedgerKind = "CREDIT"
	LedgerKindDebit  LedgerKind = "DEBIT"
)

// Currency discriminates which wallet balance an entry touched.
type Currency string

const (
	CurrencyFunds    Currency = "FUNDS"
	CurrencyDiamonds Currency = "DIAMONDS"
)

// LedgerEntry is one immutable record of a balance change. Entries are
// write-once: they are inserted in the same transaction as the balance
// mutation they describe and never updated or deleted afterwards. Replaying
// a wallet's entries from zero must reproduce its current balance.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	WalletID  uuid.UUID       `json:"wallet_id"`
	TenantID  string          `json:"tenant_id"`
	Kind      LedgerKind      `json:"kind"`
	Amount    decimal.Decimal `json:"amount"` // positive magnitude
	Currency  Currency        `json:"currency"`
	RefType   string          `json:"ref_type"`
	RefID     *string         `json:"ref_id,omitempty"`
	Note      *string         `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Signed returns the entry's amount with its direction applied.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Kind == LedgerKindDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// EntriesForDelta builds the ledger entries recording one applied delta:
// one entry per non-zero currency change, carrying the caller's business
// reference. A fully zero delta yields no entries.
func EntriesForDelta(walletID uuid.UUID, tenantID string, delta Delta, refType string, refID, note *string) []LedgerEntry {
	now := time.Now().UTC()
	entries := make([]LedgerEntry, 0, 2)

	if !delta.Funds.IsZero() {
		entries = append(entries, LedgerEntry{
			ID:        uuid.New(),
			WalletID:  walletID,
			TenantID:  tenantID,
			Kind:      kindFor(delta.Funds.Sign()),
			Amount:    delta.Funds.Abs(),
			Currency:  CurrencyFunds,
			RefType:   refType,
			RefID:     refID,
			Note:      note,
			CreatedAt: now,
		})
	}
	if delta.Diamonds != 0 {
		entries = append(entries, LedgerEntry{
			ID:        uuid.New(),
			WalletID:  walletID,
			TenantID:  tenantID,
			Kind:      kindFor(sign64(delta.Diamonds)),
			Amount:    decimal.NewFromInt(delta.Diamonds).Abs(),
			Currency:  CurrencyDiamonds,
			RefType:   refType,
			RefID:     refID,
			Note:      note,
			CreatedAt: now,
		})
	}
	return entries
}

func kindFor(sign int) LedgerKind {
	if sign < 0 {
		return LedgerKindDebit
	}
	return LedgerKindCredit
}

func sign64(v int64) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
