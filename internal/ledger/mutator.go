package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/store"
)

// Mutator is the only path that changes a wallet balance. Each mutation
// runs under an exclusive per-wallet lock held across the whole
// read-validate-write sequence, and the balance update plus the ledger
// append commit as one unit. A reference that was already applied
// returns the original entry unchanged, so retries are harmless.
type Mutator struct {
	store store.Store
	log   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMutator(s store.Store, log zerolog.Logger) *Mutator {
	return &Mutator{
		store: s,
		log:   log.With().Str("component", "ledger").Logger(),
		locks: map[string]*sync.Mutex{},
	}
}

func (m *Mutator) walletLock(walletID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[walletID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[walletID] = l
	}
	return l
}

// Apply records one balance mutation. amount must be positive; the
// direction comes from the entry type.
func (m *Mutator) Apply(ctx context.Context, walletID string, amount int64, typ domain.EntryType, reference, description string) (*domain.LedgerEntry, error) {
	l := m.walletLock(walletID)
	l.Lock()
	defer l.Unlock()

	var entry *domain.LedgerEntry
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		entry, err = m.ApplyIn(ctx, tx, walletID, amount, typ, reference, description)
		return err
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		// Another writer landed the reference first and our transaction
		// rolled back without a trace, so the winner's entry stands.
		return m.store.EntryByReference(ctx, reference)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyIn is Apply for callers that already opened a transaction, so a
// mutation can commit together with order or escrow rows. The store's
// transaction (row lock on the wallet) provides the serialization that
// Apply gets from the per-wallet mutex. A reference that slips past
// the gate and loses the race on the unique index surfaces as
// ErrDuplicateReference: on Postgres the transaction is already
// aborted at that point, so the owner of the transaction must re-read
// the winning entry after rollback, the way Apply does.
func (m *Mutator) ApplyIn(ctx context.Context, tx store.Store, walletID string, amount int64, typ domain.EntryType, reference, description string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, errors.New("ledger: amount must be positive")
	}
	if !typ.Valid() {
		return nil, errors.New("ledger: unknown entry type " + string(typ))
	}

	// Idempotency gate: whichever caller applied this reference first
	// wins; everyone after gets the original entry.
	if existing, err := tx.EntryByReference(ctx, reference); err == nil {
		m.log.Info().
			Str("wallet_id", walletID).
			Str("reference", reference).
			Msg("duplicate reference, returning existing entry")
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	w, err := tx.WalletByIDForUpdate(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		return nil, domain.ErrWalletInactive
	}

	after := w.Balance + typ.Direction()*amount
	if after < 0 {
		return nil, &domain.InsufficientFundsError{Need: amount, Have: w.Balance}
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New().String(),
		WalletID:      walletID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  after,
		Reference:     reference,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.SetWalletBalance(ctx, walletID, after); err != nil {
		return nil, err
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		// A unique violation here means the reference raced past the
		// gate; the transaction cannot be read from anymore, so the
		// error propagates for recovery outside it.
		return nil, err
	}

	m.log.Info().
		Str("wallet_id", walletID).
		Str("type", string(typ)).
		Int64("amount", amount).
		Int64("balance_before", entry.BalanceBefore).
		Int64("balance_after", entry.BalanceAfter).
		Str("reference", reference).
		Msg("wallet mutation applied")
	return entry, nil
}

// CreateWallet provisions a zero-balance wallet for a user.
func (m *Mutator) CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if existing, err := m.store.WalletByUser(ctx, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	w := &domain.Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Balance:   0,
		Currency:  "NGN",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	m.log.Info().Str("wallet_id", w.ID).Str("user_id", userID).Msg("wallet created")
	return w, nil
}
