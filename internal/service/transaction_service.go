package service

import (
	"context"

	"parel-ledger/internal/core/domain"
	"parel-ledger/internal/core/ports"
	"parel-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionServiceImpl implements ports.TransactionService: the single
// writer path for wallet balances. Every mutation locks the wallet row for
// the duration of one transaction, so concurrent debits against the same
// wallet re-evaluate against the committed balance instead of a stale read.
type TransactionServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewTransactionService creates a new TransactionServiceImpl.
func NewTransactionService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TransactionServiceImpl {
	return &TransactionServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		log:        log,
	}
}

// ApplyDelta atomically applies a signed balance change to one wallet and
// appends the matching journal entries. Not idempotent: replaying the same
// refID applies the delta again.
func (s *TransactionServiceImpl) ApplyDelta(ctx context.Context, req ports.DeltaRequest) (*domain.Balance, error) {
	if err := validateDeltaRequest(req); err != nil {
		return nil, err
	}
	return s.apply(ctx, req, false)
}

// ClaimBadgeReward pays out a badge reward and bumps the wallet's
// claimed-badges counter in the same unit of work.
func (s *TransactionServiceImpl) ClaimBadgeReward(ctx context.Context, req ports.BadgeClaimRequest) (*domain.Balance, error) {
	if req.UserID == "" || req.TenantID == "" {
		return nil, apperror.ErrInvalidDelta("user id and tenant id are required")
	}
	if req.BadgeID == "" {
		return nil, apperror.ErrInvalidDelta("badge id is required")
	}
	if req.Funds.IsNegative() || req.Diamonds < 0 {
		return nil, apperror.ErrInvalidDelta("badge rewards cannot be negative")
	}

	badgeID := req.BadgeID
	return s.apply(ctx, ports.DeltaRequest{
		UserID:   req.UserID,
		TenantID: req.TenantID,
		Funds:    req.Funds,
		Diamonds: req.Diamonds,
		RefType:  "badge_claim",
		RefID:    &badgeID,
	}, true)
}

// apply runs the coordinator protocol: begin, lock, validate, persist,
// journal, commit. claimBadge additionally increments the badge counter
// under the same lock.
func (s *TransactionServiceImpl) apply(ctx context.Context, req ports.DeltaRequest, claimBadge bool) (*domain.Balance, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, asAppError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByOwnerForUpdate(ctx, dbTx, req.UserID, req.TenantID)
	if err != nil {
		return nil, asAppError("lock wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	delta := req.Delta()
	candidate := delta.Apply(wallet.Balance())

	// Non-negativity invariant, checked under the row lock.
	if candidate.Funds.IsNegative() {
		return nil, apperror.ErrInsufficientFunds(
			string(domain.CurrencyFunds), delta.Funds.Abs(), wallet.Funds)
	}
	if candidate.Diamonds < 0 {
		return nil, apperror.ErrInsufficientFunds(
			string(domain.CurrencyDiamonds),
			decimal.NewFromInt(-delta.Diamonds), decimal.NewFromInt(wallet.Diamonds))
	}

	if !delta.IsZero() {
		if err := s.walletRepo.UpdateBalances(ctx, dbTx, wallet.ID, candidate.Funds, candidate.Diamonds); err != nil {
			return nil, asAppError("update balances", err)
		}

		entries := domain.EntriesForDelta(wallet.ID, wallet.TenantID, delta, req.RefType, req.RefID, req.Note)
		if err := s.ledgerRepo.CreateBatch(ctx, dbTx, entries); err != nil {
			return nil, asAppError("append ledger entries", err)
		}
	}

	if claimBadge {
		if err := s.walletRepo.IncrementBadgeClaims(ctx, dbTx, wallet.ID); err != nil {
			return nil, asAppError("increment badge claims", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, asAppError("commit tx", err)
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("user_id", req.UserID).
		Str("tenant_id", req.TenantID).
		Str("ref_type", req.RefType).
		Str("funds_delta", delta.Funds.String()).
		Int64("diamonds_delta", delta.Diamonds).
		Msg("wallet delta applied")

	return &candidate, nil
}

func validateDeltaRequest(req ports.DeltaRequest) error {
	if req.UserID == "" || req.TenantID == "" {
		return apperror.ErrInvalidDelta("user id and tenant id are required")
	}
	if req.RefType == "" {
		return apperror.ErrInvalidDelta("ref type is required")
	}
	return nil
}
