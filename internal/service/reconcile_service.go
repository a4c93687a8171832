package service

import (
	"context"
	"time"

	"parel-ledger/internal/core/ports"
	"parel-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReconcileServiceImpl implements ports.ReconcileService. It verifies the
// journal invariant out of band: replaying a wallet's ledger entries from
// zero must reproduce its stored balance. Drift means a balance was written
// outside the coordinator and is reported, never silently repaired.
type ReconcileServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	sweepLock  ports.SweepLock
	pageSize   int
	lockTTL    time.Duration
	log        zerolog.Logger
}

// NewReconcileService creates a new ReconcileServiceImpl.
func NewReconcileService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	sweepLock ports.SweepLock,
	pageSize int,
	lockTTL time.Duration,
	log zerolog.Logger,
) *ReconcileServiceImpl {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &ReconcileServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		sweepLock:  sweepLock,
		pageSize:   pageSize,
		lockTTL:    lockTTL,
		log:        log,
	}
}

// ReconcileWallet replays one wallet's ledger against its stored balance.
func (s *ReconcileServiceImpl) ReconcileWallet(ctx context.Context, walletID uuid.UUID) (*ports.ReconcileReport, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, asAppError("get wallet", err)
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	net, err := s.ledgerRepo.NetByWallet(ctx, walletID)
	if err != nil {
		return nil, asAppError("replay ledger", err)
	}

	walletDiamonds := decimal.NewFromInt(wallet.Diamonds)
	report := &ports.ReconcileReport{
		WalletID:       walletID,
		Balanced:       net.Funds.Equal(wallet.Funds) && net.Diamonds.Equal(walletDiamonds),
		WalletFunds:    wallet.Funds,
		LedgerFunds:    net.Funds,
		WalletDiamonds: wallet.Diamonds,
		LedgerDiamonds: net.Diamonds.IntPart(),
	}

	if !report.Balanced {
		s.log.Warn().
			Str("wallet_id", walletID.String()).
			Str("wallet_funds", wallet.Funds.String()).
			Str("ledger_funds", net.Funds.String()).
			Int64("wallet_diamonds", wallet.Diamonds).
			Str("ledger_diamonds", net.Diamonds.String()).
			Msg("ledger replay does not match wallet balance")
	}

	return report, nil
}

// Sweep reconciles every wallet in id order, one page at a time. Only one
// replica sweeps at a time: whoever holds the redis lock runs, the rest
// skip the tick.
func (s *ReconcileServiceImpl) Sweep(ctx context.Context) (*ports.SweepReport, error) {
	acquired, err := s.sweepLock.Acquire(ctx, s.lockTTL)
	if err != nil {
		return nil, asAppError("acquire sweep lock", err)
	}
	if !acquired {
		s.log.Debug().Msg("sweep lock held by another replica, skipping")
		return &ports.SweepReport{Skipped: true}, nil
	}
	defer func() {
		if err := s.sweepLock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("failed to release sweep lock")
		}
	}()

	report := &ports.SweepReport{}
	afterID := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return nil, asAppError("sweep canceled", err)
		}

		ids, err := s.walletRepo.ListIDs(ctx, afterID, s.pageSize)
		if err != nil {
			return nil, asAppError("list wallets", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			wr, err := s.ReconcileWallet(ctx, id)
			if err != nil {
				return nil, err
			}
			report.WalletsChecked++
			if !wr.Balanced {
				report.Drifted = append(report.Drifted, *wr)
			}
		}

		afterID = ids[len(ids)-1]
		if len(ids) < s.pageSize {
			break
		}
	}

	s.log.Info().
		Int("wallets_checked", report.WalletsChecked).
		Int("drifted", len(report.Drifted)).
		Msg("reconciliation sweep finished")

	return report, nil
}
