package service

import (
	"context"

	"parel-ledger/internal/core/domain"
	"parel-ledger/internal/core/ports"
	"parel-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	defaultLedgerPageSize = 50
	maxLedgerPageSize     = 200
)

// WalletServiceImpl implements ports.WalletService: non-mutating balance
// reads, lazy wallet provisioning and ledger history.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(walletRepo ports.WalletRepository, ledgerRepo ports.LedgerRepository, log zerolog.Logger) *WalletServiceImpl {
	return &WalletServiceImpl{walletRepo: walletRepo, ledgerRepo: ledgerRepo, log: log}
}

// GetBalance returns the wallet's balance snapshot. The single-row read is
// atomic, so the snapshot never reflects a partially applied update.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID, tenantID string) (*domain.Balance, error) {
	if userID == "" || tenantID == "" {
		return nil, apperror.ErrInvalidDelta("user id and tenant id are required")
	}

	wallet, err := s.walletRepo.GetByOwner(ctx, userID, tenantID)
	if err != nil {
		return nil, asAppError("get wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	balance := wallet.Balance()
	return &balance, nil
}

// EnsureWallet provisions the identity's wallet on first use. Concurrent
// callers race safely: the insert ignores conflicts and both end up reading
// the same row.
func (s *WalletServiceImpl) EnsureWallet(ctx context.Context, userID, tenantID string) (*domain.Wallet, error) {
	if userID == "" || tenantID == "" {
		return nil, apperror.ErrInvalidDelta("user id and tenant id are required")
	}

	wallet, err := s.walletRepo.GetByOwner(ctx, userID, tenantID)
	if err != nil {
		return nil, asAppError("get wallet", err)
	}
	if wallet != nil {
		return wallet, nil
	}

	if err := s.walletRepo.Create(ctx, domain.NewWallet(userID, tenantID)); err != nil {
		return nil, asAppError("create wallet", err)
	}

	wallet, err = s.walletRepo.GetByOwner(ctx, userID, tenantID)
	if err != nil {
		return nil, asAppError("reread wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	s.log.Debug().
		Str("user_id", userID).
		Str("tenant_id", tenantID).
		Str("wallet_id", wallet.ID.String()).
		Msg("wallet ensured")

	return wallet, nil
}

// ListLedger returns the wallet's audit trail, newest first.
func (s *WalletServiceImpl) ListLedger(ctx context.Context, userID, tenantID string, limit, offset int) ([]domain.LedgerEntry, error) {
	if userID == "" || tenantID == "" {
		return nil, apperror.ErrInvalidDelta("user id and tenant id are required")
	}
	if limit <= 0 {
		limit = defaultLedgerPageSize
	}
	if limit > maxLedgerPageSize {
		limit = maxLedgerPageSize
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := s.walletRepo.GetByOwner(ctx, userID, tenantID)
	if err != nil {
		return nil, asAppError("get wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	entries, err := s.ledgerRepo.ListByWallet(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, asAppError("list ledger", err)
	}
	return entries, nil
}
