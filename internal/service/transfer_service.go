package service

import (
	"context"
	"fmt"

	"parel-ledger/internal/core/domain"
	"parel-ledger/internal/core/ports"
	"parel-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransferServiceImpl implements ports.TransferService. A transfer debits
// the sender and credits the receiver inside one transaction, with both
// wallet rows locked in ascending id order so two opposite-direction
// transfers cannot deadlock each other.
type TransferServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		log:        log,
	}
}

// Transfer moves currency between two wallets of one tenant. All four
// possible ledger entries share one synthetic transfer reference so both
// legs are correlated in the audit trail.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) error {
	if err := validateTransferRequest(req); err != nil {
		return err
	}

	refType := req.RefType
	if refType == "" {
		refType = "transfer"
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return asAppError("begin tx", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallets, err := s.walletRepo.LockPairForUpdate(ctx, dbTx, req.TenantID, []string{req.FromUserID, req.ToUserID})
	if err != nil {
		return asAppError("lock wallets", err)
	}

	var from, to *domain.Wallet
	for i := range wallets {
		switch wallets[i].UserID {
		case req.FromUserID:
			from = &wallets[i]
		case req.ToUserID:
			to = &wallets[i]
		}
	}
	if from == nil || to == nil {
		return apperror.ErrWalletNotFound()
	}

	// Sender must cover both currencies before either balance moves.
	if from.Funds.LessThan(req.Funds) {
		return apperror.ErrInsufficientFunds(string(domain.CurrencyFunds), req.Funds, from.Funds)
	}
	if from.Diamonds < req.Diamonds {
		return apperror.ErrInsufficientFunds(
			string(domain.CurrencyDiamonds),
			decimal.NewFromInt(req.Diamonds), decimal.NewFromInt(from.Diamonds))
	}

	if err := s.walletRepo.UpdateBalances(ctx, dbTx, from.ID,
		from.Funds.Sub(req.Funds), from.Diamonds-req.Diamonds); err != nil {
		return asAppError("debit sender", err)
	}
	if err := s.walletRepo.UpdateBalances(ctx, dbTx, to.ID,
		to.Funds.Add(req.Funds), to.Diamonds+req.Diamonds); err != nil {
		return asAppError("credit receiver", err)
	}

	transferID := "transfer_" + uuid.NewString()
	debitNote := noteOrDefault(req.Note, fmt.Sprintf("Transfer to %s", req.ToUserID))
	creditNote := noteOrDefault(req.Note, fmt.Sprintf("Transfer from %s", req.FromUserID))

	entries := domain.EntriesForDelta(from.ID, req.TenantID,
		domain.Delta{Funds: req.Funds.Neg(), Diamonds: -req.Diamonds},
		refType, &transferID, &debitNote)
	entries = append(entries, domain.EntriesForDelta(to.ID, req.TenantID,
		domain.Delta{Funds: req.Funds, Diamonds: req.Diamonds},
		refType, &transferID, &creditNote)...)

	if err := s.ledgerRepo.CreateBatch(ctx, dbTx, entries); err != nil {
		return asAppError("append ledger entries", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return asAppError("commit tx", err)
	}

	s.log.Info().
		Str("transfer_id", transferID).
		Str("from_user", req.FromUserID).
		Str("to_user", req.ToUserID).
		Str("tenant_id", req.TenantID).
		Str("funds", req.Funds.String()).
		Int64("diamonds", req.Diamonds).
		Msg("transfer completed")

	return nil
}

func validateTransferRequest(req ports.TransferRequest) error {
	if req.FromUserID == "" || req.ToUserID == "" || req.TenantID == "" {
		return apperror.ErrInvalidTransfer("sender, receiver and tenant ids are required")
	}
	if req.FromUserID == req.ToUserID {
		return apperror.ErrInvalidTransfer("cannot transfer to the same wallet")
	}
	if req.Funds.IsNegative() || req.Diamonds < 0 {
		return apperror.ErrInvalidTransfer("transfer amounts must be non-negative")
	}
	if req.Funds.IsZero() && req.Diamonds == 0 {
		return apperror.ErrInvalidTransfer("transfer must move at least one currency")
	}
	return nil
}

func noteOrDefault(note *string, fallback string) string {
	if note != nil && *note != "" {
		return *note
	}
	return fallback
}
