package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/store"
)

func newTestMutator(t *testing.T) (*Mutator, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	return NewMutator(st, zerolog.Nop()), st
}

func fundedWallet(t *testing.T, m *Mutator, userID string, balance int64) *domain.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := m.CreateWallet(ctx, userID)
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if balance > 0 {
		if _, err := m.Apply(ctx, w.ID, balance, domain.EntryCredit, "SEED_"+userID, "seed"); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	return w
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("credit then debit", func(t *testing.T) {
		m, st := newTestMutator(t)
		w := fundedWallet(t, m, "u1", 1000)

		entry, err := m.Apply(ctx, w.ID, 400, domain.EntryDebit, "TX_1", "test debit")
		if err != nil {
			t.Fatalf("debit: %v", err)
		}
		if entry.BalanceBefore != 1000 || entry.BalanceAfter != 600 {
			t.Errorf("entry balances = %d -> %d, want 1000 -> 600", entry.BalanceBefore, entry.BalanceAfter)
		}
		got, err := st.WalletByID(ctx, w.ID)
		if err != nil {
			t.Fatalf("read wallet: %v", err)
		}
		if got.Balance != 600 {
			t.Errorf("stored balance = %d, want 600", got.Balance)
		}
	})

	t.Run("duplicate reference is a no-op", func(t *testing.T) {
		m, st := newTestMutator(t)
		w := fundedWallet(t, m, "u1", 0)

		first, err := m.Apply(ctx, w.ID, 500, domain.EntryCredit, "FUND_1", "first")
		if err != nil {
			t.Fatalf("first apply: %v", err)
		}
		second, err := m.Apply(ctx, w.ID, 500, domain.EntryCredit, "FUND_1", "replay")
		if err != nil {
			t.Fatalf("second apply: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("replay returned a new entry %s, want original %s", second.ID, first.ID)
		}
		got, _ := st.WalletByID(ctx, w.ID)
		if got.Balance != 500 {
			t.Errorf("balance after replay = %d, want 500", got.Balance)
		}
	})

	t.Run("reference racing past the gate returns the winner", func(t *testing.T) {
		// The wrapper makes the in-transaction gate miss once, forcing
		// the mutation onto the unique index and the recovery path.
		st := store.NewMemory()
		blind := &blindGateStore{Store: st}
		m := NewMutator(blind, zerolog.Nop())
		w := fundedWallet(t, m, "u1", 0)

		first, err := m.Apply(ctx, w.ID, 500, domain.EntryCredit, "FUND_R", "first")
		if err != nil {
			t.Fatalf("first apply: %v", err)
		}
		blind.misses = 1
		second, err := m.Apply(ctx, w.ID, 500, domain.EntryCredit, "FUND_R", "racer")
		if err != nil {
			t.Fatalf("racing apply: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("race returned a new entry %s, want original %s", second.ID, first.ID)
		}
		got, _ := st.WalletByID(ctx, w.ID)
		if got.Balance != 500 {
			t.Errorf("balance after race = %d, want 500", got.Balance)
		}
	})

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		m, st := newTestMutator(t)
		w := fundedWallet(t, m, "u1", 300)

		_, err := m.Apply(ctx, w.ID, 400, domain.EntryDebit, "TX_FAIL", "too much")
		var insufficient *domain.InsufficientFundsError
		if !errors.As(err, &insufficient) {
			t.Fatalf("err = %v, want InsufficientFundsError", err)
		}
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("err does not match ErrInsufficientFunds sentinel")
		}
		if insufficient.Have != 300 {
			t.Errorf("Have = %d, want 300", insufficient.Have)
		}
		got, _ := st.WalletByID(ctx, w.ID)
		if got.Balance != 300 {
			t.Errorf("balance changed to %d on failed debit", got.Balance)
		}
		if _, err := st.EntryByReference(ctx, "TX_FAIL"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("failed debit left a ledger entry")
		}
	})

	t.Run("rejects zero and negative amounts", func(t *testing.T) {
		m, _ := newTestMutator(t)
		w := fundedWallet(t, m, "u1", 100)
		for _, amount := range []int64{0, -50} {
			if _, err := m.Apply(ctx, w.ID, amount, domain.EntryCredit, "BAD", "bad"); err == nil {
				t.Errorf("Apply(%d) succeeded, want error", amount)
			}
		}
	})

	t.Run("rejects inactive wallet", func(t *testing.T) {
		m, st := newTestMutator(t)
		w := fundedWallet(t, m, "u1", 100)
		frozen := *w
		frozen.Balance = 100
		frozen.Active = false
		if err := st.CreateWallet(ctx, &frozen); err != nil {
			t.Fatalf("freeze wallet: %v", err)
		}
		if _, err := m.Apply(ctx, w.ID, 50, domain.EntryDebit, "TX_FROZEN", "frozen"); !errors.Is(err, domain.ErrWalletInactive) {
			t.Errorf("err = %v, want ErrWalletInactive", err)
		}
	})

	t.Run("unknown wallet", func(t *testing.T) {
		m, _ := newTestMutator(t)
		if _, err := m.Apply(ctx, "nope", 50, domain.EntryCredit, "TX_X", ""); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestApplyConcurrentDebits(t *testing.T) {
	// Two debits of 800 against a balance of 1000: exactly one must win.
	ctx := context.Background()
	m, st := newTestMutator(t)
	w := fundedWallet(t, m, "u1", 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := "TX_RACE_" + string(rune('A'+i))
			_, errs[i] = m.Apply(ctx, w.ID, 800, domain.EntryDebit, ref, "race")
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			if !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("got %d failures, want exactly 1", failures)
	}
	got, _ := st.WalletByID(ctx, w.ID)
	if got.Balance != 200 {
		t.Errorf("final balance = %d, want 200", got.Balance)
	}
}

func TestBalanceMatchesLedger(t *testing.T) {
	ctx := context.Background()
	m, st := newTestMutator(t)
	w := fundedWallet(t, m, "u1", 0)

	muts := []struct {
		amount int64
		typ    domain.EntryType
		ref    string
	}{
		{5000, domain.EntryCredit, "C1"},
		{1200, domain.EntryDebit, "D1"},
		{3000, domain.EntryEscrowHold, "H1"},
		{3000, domain.EntryEscrowRefund, "R1"},
		{700, domain.EntryDebit, "D2"},
	}
	for _, mu := range muts {
		if _, err := m.Apply(ctx, w.ID, mu.amount, mu.typ, mu.ref, ""); err != nil {
			t.Fatalf("apply %s: %v", mu.ref, err)
		}
	}

	entries, err := st.EntriesByWallet(ctx, w.ID, store.EntryFilter{})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.Type.Direction() * e.Amount
	}
	got, _ := st.WalletByID(ctx, w.ID)
	if got.Balance != sum {
		t.Errorf("balance %d does not equal ledger sum %d", got.Balance, sum)
	}
	if got.Balance != 3100 {
		t.Errorf("balance = %d, want 3100", got.Balance)
	}
}

func TestCreateWalletIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMutator(t)
	first, err := m.CreateWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := m.CreateWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second create returned new wallet %s, want %s", second.ID, first.ID)
	}
}

// blindGateStore hides existing entries from the idempotency gate for
// a set number of reads, simulating a writer that committed the same
// reference between the gate check and the insert.
type blindGateStore struct {
	store.Store
	misses int
}

func (b *blindGateStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return b.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&blindGateTx{Store: tx, parent: b})
	})
}

type blindGateTx struct {
	store.Store
	parent *blindGateStore
}

func (t *blindGateTx) EntryByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	if t.parent.misses > 0 {
		t.parent.misses--
		return nil, domain.ErrNotFound
	}
	return t.Store.EntryByReference(ctx, reference)
}
