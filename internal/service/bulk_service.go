package service

import (
	"context"
	"sync"

	"parel-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const defaultBulkWorkers = 8

// BulkServiceImpl implements ports.BulkService. Each update runs as an
// independent coordinator call; there is deliberately no cross-wallet lock
// and no rollback of siblings, so bulk payout jobs never abandon valid
// recipients because one target is invalid.
type BulkServiceImpl struct {
	txSvc   ports.TransactionService
	workers int
	log     zerolog.Logger
}

// NewBulkService creates a new BulkServiceImpl. workers bounds how many
// coordinator calls run at once; <= 0 uses the default.
func NewBulkService(txSvc ports.TransactionService, workers int, log zerolog.Logger) *BulkServiceImpl {
	if workers <= 0 {
		workers = defaultBulkWorkers
	}
	return &BulkServiceImpl{txSvc: txSvc, workers: workers, log: log}
}

// BulkApply fans the updates out concurrently and collects per-item results
// in input order. OK is the AND of the items, purely a summary.
func (s *BulkServiceImpl) BulkApply(ctx context.Context, updates []ports.DeltaRequest) *ports.BulkResult {
	results := make([]ports.BulkItemResult, len(updates))

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i := range updates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if _, err := s.txSvc.ApplyDelta(ctx, updates[i]); err != nil {
				results[i] = ports.BulkItemResult{Err: err}
				return
			}
			results[i] = ports.BulkItemResult{OK: true}
		}(i)
	}
	wg.Wait()

	ok := true
	failed := 0
	for i := range results {
		if !results[i].OK {
			ok = false
			failed++
		}
	}

	s.log.Info().
		Int("total", len(updates)).
		Int("failed", failed).
		Bool("ok", ok).
		Msg("bulk apply finished")

	return &ports.BulkResult{OK: ok, Items: results}
}
