package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds the spendable balances for one (user, tenant) identity.
// Funds is a fractional soft currency, Diamonds an integer premium currency.
// Balances are mutated only through the transaction coordinator, never
// written directly.
type Wallet struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             string          `json:"user_id"`
	TenantID           string          `json:"tenant_id"`
	Funds              decimal.Decimal `json:"funds"`
	Diamonds           int64           `json:"diamonds"`
	BadgesClaimedCount int64           `json:"badges_claimed_count"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Balance is a point-in-time snapshot of a wallet's currencies.
type Balance struct {
	Funds    decimal.Decimal `json:"funds"`
	Diamonds int64           `json:"diamonds"`
}

// Balance returns the wallet's current balance snapshot.
func (w *Wallet) Balance() Balance {
	return Balance{Funds: w.Funds, Diamonds: w.Diamonds}
}

// Delta is a signed per-currency balance change. A zero-valued field means
// that currency is left untouched.
type Delta struct {
	Funds    decimal.Decimal `json:"funds"`
	Diamonds int64           `json:"diamonds"`
}

// IsZero returns true if the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Funds.IsZero() && d.Diamonds == 0
}

// Apply returns the candidate balance after adding the delta.
func (d Delta) Apply(b Balance) Balance {
	return Balance{
		Funds:    b.Funds.Add(d.Funds),
		Diamonds: b.Diamonds + d.Diamonds,
	}
}

// NewWallet creates an empty wallet for an identity. Wallets are provisioned
// lazily on the first currency-affecting action and never deleted.
func NewWallet(userID, tenantID string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenantID,
		Funds:     decimal.Zero,
		Diamonds:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
