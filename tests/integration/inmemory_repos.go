package integration

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"parel-ledger/internal/core/domain"
	"parel-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// memStore is a shared in-memory backing store for the wallet and ledger
// repos. Row-level locking is emulated with one mutex per wallet, held for
// the lifetime of a memTx, so the coordinator's lock-validate-write protocol
// behaves like it does against PostgreSQL: concurrent mutations of one
// wallet serialize and each re-reads the committed balance.
type memStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet
	byOwner map[string]uuid.UUID
	entries []domain.LedgerEntry
	locks   map[uuid.UUID]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		wallets: make(map[uuid.UUID]*domain.Wallet),
		byOwner: make(map[string]uuid.UUID),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func ownerKey(userID, tenantID string) string {
	return tenantID + "/" + userID
}

// seedWallet inserts a wallet with the given balances, bypassing services.
func (s *memStore) seedWallet(userID, tenantID string, funds int64, diamonds int64) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := domain.NewWallet(userID, tenantID)
	w.Funds = decimal.NewFromInt(funds)
	w.Diamonds = diamonds
	s.wallets[w.ID] = w
	s.byOwner[ownerKey(userID, tenantID)] = w.ID
	s.locks[w.ID] = &sync.Mutex{}
	return w
}

func (s *memStore) snapshot(id uuid.UUID) *domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// --- In-memory transactor ---

type balanceWrite struct {
	funds    decimal.Decimal
	diamonds int64
}

// memTx implements pgx.Tx. Writes are staged and applied on Commit, and the
// wallet locks taken through the repos are released when the tx ends, so an
// aborted unit of work leaves no trace.
type memTx struct {
	store      *memStore
	locked     []*sync.Mutex
	balances   map[uuid.UUID]balanceWrite
	badgeBumps map[uuid.UUID]int64
	entries    []domain.LedgerEntry
	done       bool
	mu         sync.Mutex
}

type memTransactor struct {
	store *memStore
}

func newMemTransactor(store *memStore) *memTransactor {
	return &memTransactor{store: store}
}

func (t *memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{
		store:      t.store,
		balances:   make(map[uuid.UUID]balanceWrite),
		badgeBumps: make(map[uuid.UUID]int64),
	}, nil
}

func (t *memTx) lockWallet(id uuid.UUID) {
	t.store.mu.Lock()
	lock, ok := t.store.locks[id]
	t.store.mu.Unlock()
	if !ok {
		return
	}
	lock.Lock()
	t.mu.Lock()
	t.locked = append(t.locked, lock)
	t.mu.Unlock()
}

func (t *memTx) release() {
	for _, l := range t.locked {
		l.Unlock()
	}
	t.locked = nil
}

func (t *memTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true

	t.store.mu.Lock()
	for id, bw := range t.balances {
		if w, ok := t.store.wallets[id]; ok {
			w.Funds = bw.funds
			w.Diamonds = bw.diamonds
			w.UpdatedAt = time.Now().UTC()
		}
	}
	for id, n := range t.badgeBumps {
		if w, ok := t.store.wallets[id]; ok {
			w.BadgesClaimedCount += n
		}
	}
	t.store.entries = append(t.store.entries, t.entries...)
	t.store.mu.Unlock()

	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.release()
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                               { return nil }

// --- In-memory wallet repo ---

type memWalletRepo struct {
	store *memStore
}

func newMemWalletRepo(store *memStore) *memWalletRepo {
	return &memWalletRepo{store: store}
}

func (r *memWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := ownerKey(w.UserID, w.TenantID)
	if _, exists := r.store.byOwner[key]; exists {
		return nil
	}
	cp := *w
	r.store.wallets[cp.ID] = &cp
	r.store.byOwner[key] = cp.ID
	r.store.locks[cp.ID] = &sync.Mutex{}
	return nil
}

func (r *memWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	return r.store.snapshot(id), nil
}

func (r *memWalletRepo) GetByOwner(ctx context.Context, userID, tenantID string) (*domain.Wallet, error) {
	r.store.mu.Lock()
	id, ok := r.store.byOwner[ownerKey(userID, tenantID)]
	r.store.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.store.snapshot(id), nil
}

func (r *memWalletRepo) GetByOwnerForUpdate(ctx context.Context, tx pgx.Tx, userID, tenantID string) (*domain.Wallet, error) {
	mtx, ok := tx.(*memTx)
	if !ok {
		return nil, fmt.Errorf("unexpected tx type %T", tx)
	}
	r.store.mu.Lock()
	id, found := r.store.byOwner[ownerKey(userID, tenantID)]
	r.store.mu.Unlock()
	if !found {
		return nil, nil
	}
	// Block until any in-flight mutation of this wallet commits, then read
	// the committed state.
	mtx.lockWallet(id)
	return r.store.snapshot(id), nil
}

func (r *memWalletRepo) LockPairForUpdate(ctx context.Context, tx pgx.Tx, tenantID string, userIDs []string) ([]domain.Wallet, error) {
	mtx, ok := tx.(*memTx)
	if !ok {
		return nil, fmt.Errorf("unexpected tx type %T", tx)
	}
	r.store.mu.Lock()
	var ids []uuid.UUID
	for _, userID := range userIDs {
		if id, found := r.store.byOwner[ownerKey(userID, tenantID)]; found {
			ids = append(ids, id)
		}
	}
	r.store.mu.Unlock()

	// Ascending id order, same as the single locking statement in postgres.
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	wallets := make([]domain.Wallet, 0, len(ids))
	for _, id := range ids {
		mtx.lockWallet(id)
		if w := r.store.snapshot(id); w != nil {
			wallets = append(wallets, *w)
		}
	}
	return wallets, nil
}

func (r *memWalletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, funds decimal.Decimal, diamonds int64) error {
	mtx, ok := tx.(*memTx)
	if !ok {
		return fmt.Errorf("unexpected tx type %T", tx)
	}
	if r.store.snapshot(walletID) == nil {
		return fmt.Errorf("wallet %s not found", walletID)
	}
	mtx.mu.Lock()
	mtx.balances[walletID] = balanceWrite{funds: funds, diamonds: diamonds}
	mtx.mu.Unlock()
	return nil
}

func (r *memWalletRepo) IncrementBadgeClaims(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) error {
	mtx, ok := tx.(*memTx)
	if !ok {
		return fmt.Errorf("unexpected tx type %T", tx)
	}
	mtx.mu.Lock()
	mtx.badgeBumps[walletID]++
	mtx.mu.Unlock()
	return nil
}

func (r *memWalletRepo) ListIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.store.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.store.wallets))
	for id := range r.store.wallets {
		ids = append(ids, id)
	}
	r.store.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	var page []uuid.UUID
	for _, id := range ids {
		if bytes.Compare(id[:], afterID[:]) <= 0 {
			continue
		}
		page = append(page, id)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// --- In-memory ledger repo ---

type memLedgerRepo struct {
	store *memStore
}

func newMemLedgerRepo(store *memStore) *memLedgerRepo {
	return &memLedgerRepo{store: store}
}

func (r *memLedgerRepo) CreateBatch(ctx context.Context, tx pgx.Tx, entries []domain.LedgerEntry) error {
	mtx, ok := tx.(*memTx)
	if !ok {
		return fmt.Errorf("unexpected tx type %T", tx)
	}
	mtx.mu.Lock()
	mtx.entries = append(mtx.entries, entries...)
	mtx.mu.Unlock()
	return nil
}

func (r *memLedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var all []domain.LedgerEntry
	for i := len(r.store.entries) - 1; i >= 0; i-- {
		if r.store.entries[i].WalletID == walletID {
			all = append(all, r.store.entries[i])
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memLedgerRepo) NetByWallet(ctx context.Context, walletID uuid.UUID) (*ports.LedgerNet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	net := &ports.LedgerNet{Funds: decimal.Zero, Diamonds: decimal.Zero}
	for i := range r.store.entries {
		e := &r.store.entries[i]
		if e.WalletID != walletID {
			continue
		}
		switch e.Currency {
		case domain.CurrencyFunds:
			net.Funds = net.Funds.Add(e.Signed())
		case domain.CurrencyDiamonds:
			net.Diamonds = net.Diamonds.Add(e.Signed())
		}
	}
	return net, nil
}

// --- In-memory sweep lock ---

type memSweepLock struct {
	mu   sync.Mutex
	held bool
}

func (l *memSweepLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *memSweepLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}
