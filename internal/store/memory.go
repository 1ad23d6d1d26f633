package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/covu-ng/covu-core/internal/domain"
)

// Memory is an in-process Store used by the test suite and for local
// development without Postgres. A transactional view works on a deep
// copy of the data and swaps it in on success, so a failed unit leaves
// nothing behind, matching the Postgres implementation.
type Memory struct {
	mu *sync.Mutex // nil on a transaction view
	d  *memData
}

type memData struct {
	wallets         map[string]domain.Wallet
	walletByUser    map[string]string
	entries         map[string]domain.LedgerEntry // keyed by reference
	entrySeq        []string
	escrows         map[string]domain.EscrowRecord
	escrowByOrder   map[string]string
	orders          map[string]domain.Order
	products        map[string]domain.Product
	withdrawals     map[string]domain.Withdrawal
	withdrawalByRef map[string]string
	bankAccounts    map[string]domain.BankAccount
}

func NewMemory() *Memory {
	return &Memory{
		mu: &sync.Mutex{},
		d: &memData{
			wallets:         map[string]domain.Wallet{},
			walletByUser:    map[string]string{},
			entries:         map[string]domain.LedgerEntry{},
			escrows:         map[string]domain.EscrowRecord{},
			escrowByOrder:   map[string]string{},
			orders:          map[string]domain.Order{},
			products:        map[string]domain.Product{},
			withdrawals:     map[string]domain.Withdrawal{},
			withdrawalByRef: map[string]string{},
			bankAccounts:    map[string]domain.BankAccount{},
		},
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		wallets:         make(map[string]domain.Wallet, len(d.wallets)),
		walletByUser:    make(map[string]string, len(d.walletByUser)),
		entries:         make(map[string]domain.LedgerEntry, len(d.entries)),
		entrySeq:        append([]string(nil), d.entrySeq...),
		escrows:         make(map[string]domain.EscrowRecord, len(d.escrows)),
		escrowByOrder:   make(map[string]string, len(d.escrowByOrder)),
		orders:          make(map[string]domain.Order, len(d.orders)),
		products:        make(map[string]domain.Product, len(d.products)),
		withdrawals:     make(map[string]domain.Withdrawal, len(d.withdrawals)),
		withdrawalByRef: make(map[string]string, len(d.withdrawalByRef)),
		bankAccounts:    make(map[string]domain.BankAccount, len(d.bankAccounts)),
	}
	for k, v := range d.wallets {
		c.wallets[k] = v
	}
	for k, v := range d.walletByUser {
		c.walletByUser[k] = v
	}
	for k, v := range d.entries {
		c.entries[k] = v
	}
	for k, v := range d.escrows {
		c.escrows[k] = v
	}
	for k, v := range d.escrowByOrder {
		c.escrowByOrder[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range d.withdrawalByRef {
		c.withdrawalByRef[k] = v
	}
	for k, v := range d.bankAccounts {
		c.bankAccounts[k] = v
	}
	return c
}

func (m *Memory) lock() func() {
	if m.mu == nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) WithTx(_ context.Context, fn func(tx Store) error) error {
	if m.mu == nil {
		// Already inside a transaction; reuse it.
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.d.clone()
	if err := fn(&Memory{d: staged}); err != nil {
		return err
	}
	m.d = staged
	return nil
}

// SeedProduct installs a catalog snapshot. Catalog writes come from
// outside this service; tests and local setups use this directly.
func (m *Memory) SeedProduct(p domain.Product) {
	defer m.lock()()
	m.d.products[p.Ref] = p
}

func (m *Memory) CreateWallet(_ context.Context, w *domain.Wallet) error {
	defer m.lock()()
	m.d.wallets[w.ID] = *w
	m.d.walletByUser[w.UserID] = w.ID
	return nil
}

func (m *Memory) WalletByID(_ context.Context, id string) (*domain.Wallet, error) {
	defer m.lock()()
	w, ok := m.d.wallets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (m *Memory) WalletByIDForUpdate(ctx context.Context, id string) (*domain.Wallet, error) {
	// The transaction view is fully serialized already.
	return m.WalletByID(ctx, id)
}

func (m *Memory) WalletByUser(_ context.Context, userID string) (*domain.Wallet, error) {
	defer m.lock()()
	id, ok := m.d.walletByUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	w := m.d.wallets[id]
	return &w, nil
}

func (m *Memory) SetWalletBalance(_ context.Context, id string, balance int64) error {
	defer m.lock()()
	w, ok := m.d.wallets[id]
	if !ok {
		return domain.ErrNotFound
	}
	w.Balance = balance
	m.d.wallets[id] = w
	return nil
}

func (m *Memory) InsertEntry(_ context.Context, e *domain.LedgerEntry) error {
	defer m.lock()()
	if _, exists := m.d.entries[e.Reference]; exists {
		return domain.ErrDuplicateReference
	}
	m.d.entries[e.Reference] = *e
	m.d.entrySeq = append(m.d.entrySeq, e.Reference)
	return nil
}

func (m *Memory) EntryByReference(_ context.Context, reference string) (*domain.LedgerEntry, error) {
	defer m.lock()()
	e, ok := m.d.entries[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (m *Memory) EntriesByWallet(_ context.Context, walletID string, f EntryFilter) ([]domain.LedgerEntry, error) {
	defer m.lock()()
	var out []domain.LedgerEntry
	for _, ref := range m.d.entrySeq {
		e := m.d.entries[ref]
		if e.WalletID != walletID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
			continue
		}
		out = append(out, e)
	}
	// Newest first, insertion order as tiebreaker.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) InsertEscrow(_ context.Context, rec *domain.EscrowRecord) error {
	defer m.lock()()
	m.d.escrows[rec.ID] = *rec
	m.d.escrowByOrder[rec.OrderID] = rec.ID
	return nil
}

func (m *Memory) EscrowByID(_ context.Context, id string) (*domain.EscrowRecord, error) {
	defer m.lock()()
	rec, ok := m.d.escrows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) EscrowByOrder(_ context.Context, orderID string) (*domain.EscrowRecord, error) {
	defer m.lock()()
	id, ok := m.d.escrowByOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec := m.d.escrows[id]
	return &rec, nil
}

func (m *Memory) UpdateEscrow(_ context.Context, rec *domain.EscrowRecord) error {
	defer m.lock()()
	if _, ok := m.d.escrows[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	m.d.escrows[rec.ID] = *rec
	return nil
}

func (m *Memory) InsertOrder(_ context.Context, o *domain.Order) error {
	defer m.lock()()
	m.d.orders[o.ID] = *o
	return nil
}

func (m *Memory) OrderByID(_ context.Context, id string) (*domain.Order, error) {
	defer m.lock()()
	o, ok := m.d.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (m *Memory) OrderByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	// The transaction view is fully serialized already.
	return m.OrderByID(ctx, id)
}

func (m *Memory) UpdateOrder(_ context.Context, o *domain.Order) error {
	defer m.lock()()
	if _, ok := m.d.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	m.d.orders[o.ID] = *o
	return nil
}

func (m *Memory) OrdersByUser(_ context.Context, userID string, asSeller bool, status domain.OrderStatus) ([]domain.Order, error) {
	defer m.lock()()
	var out []domain.Order
	for _, o := range m.d.orders {
		party := o.BuyerID
		if asSeller {
			party = o.SellerID
		}
		if party != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeliveredBefore(_ context.Context, cutoff time.Time) ([]domain.Order, error) {
	defer m.lock()()
	var out []domain.Order
	for _, o := range m.d.orders {
		if o.Status != domain.OrderDelivered || o.DeliveredAt == nil {
			continue
		}
		if o.DeliveredAt.Before(cutoff) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ProductByRef(_ context.Context, ref string) (*domain.Product, error) {
	defer m.lock()()
	p, ok := m.d.products[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) InsertWithdrawal(_ context.Context, w *domain.Withdrawal) error {
	defer m.lock()()
	m.d.withdrawals[w.ID] = *w
	m.d.withdrawalByRef[w.Reference] = w.ID
	return nil
}

func (m *Memory) WithdrawalByID(_ context.Context, id string) (*domain.Withdrawal, error) {
	defer m.lock()()
	w, ok := m.d.withdrawals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &w, nil
}

func (m *Memory) WithdrawalByReference(_ context.Context, reference string) (*domain.Withdrawal, error) {
	defer m.lock()()
	id, ok := m.d.withdrawalByRef[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	w := m.d.withdrawals[id]
	return &w, nil
}

func (m *Memory) UpdateWithdrawal(_ context.Context, w *domain.Withdrawal) error {
	defer m.lock()()
	if _, ok := m.d.withdrawals[w.ID]; !ok {
		return domain.ErrNotFound
	}
	m.d.withdrawals[w.ID] = *w
	return nil
}

func (m *Memory) WithdrawalsByUser(_ context.Context, userID string, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	defer m.lock()()
	var out []domain.Withdrawal
	for _, w := range m.d.withdrawals {
		if w.UserID != userID {
			continue
		}
		if status != "" && w.Status != status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) HasActiveWithdrawals(_ context.Context, bankAccountID string) (bool, error) {
	defer m.lock()()
	for _, w := range m.d.withdrawals {
		if w.BankAccountID != bankAccountID {
			continue
		}
		if w.Status == domain.WithdrawalPending || w.Status == domain.WithdrawalProcessing {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) InsertBankAccount(_ context.Context, a *domain.BankAccount) error {
	defer m.lock()()
	m.d.bankAccounts[a.ID] = *a
	return nil
}

func (m *Memory) BankAccountByID(_ context.Context, id, userID string) (*domain.BankAccount, error) {
	defer m.lock()()
	a, ok := m.d.bankAccounts[id]
	if !ok || a.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) BankAccountsByUser(_ context.Context, userID string) ([]domain.BankAccount, error) {
	defer m.lock()()
	var out []domain.BankAccount
	for _, a := range m.d.bankAccounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateBankAccount(_ context.Context, a *domain.BankAccount) error {
	defer m.lock()()
	if _, ok := m.d.bankAccounts[a.ID]; !ok {
		return domain.ErrNotFound
	}
	m.d.bankAccounts[a.ID] = *a
	return nil
}

func (m *Memory) DeleteBankAccount(_ context.Context, id, userID string) error {
	defer m.lock()()
	a, ok := m.d.bankAccounts[id]
	if !ok || a.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.d.bankAccounts, id)
	return nil
}
