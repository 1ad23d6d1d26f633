package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/gateway"
	"github.com/covu-ng/covu-core/internal/ledger"
	"github.com/covu-ng/covu-core/internal/store"
)

// fakeGateway scripts gateway responses per test.
type fakeGateway struct {
	verifyResult *gateway.VerifyResult
	verifyErr    error
	transferErr  error
	transfers    int
	resolveName  string
}

func (f *fakeGateway) Initialize(_ context.Context, req gateway.InitializeRequest) (*gateway.Authorization, error) {
	return &gateway.Authorization{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_test",
		Reference:        req.Reference,
	}, nil
}

func (f *fakeGateway) Verify(_ context.Context, reference string) (*gateway.VerifyResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.verifyResult != nil {
		return f.verifyResult, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeGateway) Transfer(_ context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error) {
	f.transfers++
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	return &gateway.TransferResult{TransferCode: "TRF_test", Status: "pending"}, nil
}

func (f *fakeGateway) ResolveAccount(_ context.Context, accountNumber, bankCode string) (*gateway.ResolvedAccount, error) {
	name := f.resolveName
	if name == "" {
		name = "ADA OBI"
	}
	return &gateway.ResolvedAccount{AccountNumber: accountNumber, AccountName: name}, nil
}

func (f *fakeGateway) CreateRecipient(_ context.Context, name, accountNumber, bankCode string) (string, error) {
	return "RCP_test", nil
}

type fixture struct {
	store   *store.Memory
	ledger  *ledger.Mutator
	gateway *fakeGateway
	service *Service
	wallet  *domain.Wallet
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	mut := ledger.NewMutator(st, zerolog.Nop())
	gw := &fakeGateway{}
	svc := NewService(st, mut, gw, nil, "https://app.test/callback", zerolog.Nop())

	w, err := mut.CreateWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if balance > 0 {
		if _, err := mut.Apply(ctx, w.ID, balance, domain.EntryCredit, "SEED", "seed"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return &fixture{store: st, ledger: mut, gateway: gw, service: svc, wallet: w}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	w, err := f.store.WalletByID(context.Background(), f.wallet.ID)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	return w.Balance
}

func (f *fixture) addBankAccount(t *testing.T) *domain.BankAccount {
	t.Helper()
	acct, err := f.service.AddBankAccount(context.Background(), "u1", "058", "GTBank", "0123456789")
	if err != nil {
		t.Fatalf("bank account: %v", err)
	}
	return acct
}

func TestInitiateFunding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	auth, err := f.service.InitiateFunding(ctx, "u1", "ada@test.ng", 5000)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if !strings.HasPrefix(auth.Reference, "WALLET_FUND_u1_") {
		t.Errorf("reference = %s, want WALLET_FUND_u1_ prefix", auth.Reference)
	}
	if got := f.balance(t); got != 0 {
		t.Errorf("balance = %d before gateway confirmation, want 0", got)
	}
}

func TestHandleChargeEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("credits once across webhook retries", func(t *testing.T) {
		f := newFixture(t, 0)
		ev := ChargeEvent{
			Event:     "charge.success",
			Reference: "WALLET_FUND_u1_abc",
			Amount:    5000,
			Metadata:  gateway.Metadata{UserID: "u1", WalletID: f.wallet.ID, Purpose: "wallet_funding"},
		}
		for i := 0; i < 3; i++ {
			if err := f.service.HandleChargeEvent(ctx, ev); err != nil {
				t.Fatalf("delivery %d: %v", i, err)
			}
		}
		if got := f.balance(t); got != 5000 {
			t.Errorf("balance = %d after 3 deliveries, want 5000", got)
		}
	})

	t.Run("ignores non-success events", func(t *testing.T) {
		f := newFixture(t, 0)
		ev := ChargeEvent{Event: "charge.failed", Reference: "X", Amount: 5000,
			Metadata: gateway.Metadata{WalletID: f.wallet.ID, Purpose: "wallet_funding"}}
		if err := f.service.HandleChargeEvent(ctx, ev); err != nil {
			t.Fatalf("err = %v", err)
		}
		if got := f.balance(t); got != 0 {
			t.Errorf("balance = %d, want 0", got)
		}
	})
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("webhook and verify share one credit", func(t *testing.T) {
		f := newFixture(t, 0)
		ref := "WALLET_FUND_u1_abc"
		meta := gateway.Metadata{UserID: "u1", WalletID: f.wallet.ID, Purpose: "wallet_funding"}
		f.gateway.verifyResult = &gateway.VerifyResult{Reference: ref, Status: "success", Amount: 5000, Metadata: meta}

		if err := f.service.HandleChargeEvent(ctx, ChargeEvent{
			Event: "charge.success", Reference: ref, Amount: 5000, Metadata: meta,
		}); err != nil {
			t.Fatalf("webhook: %v", err)
		}
		if _, err := f.service.VerifyPayment(ctx, "u1", ref); err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got := f.balance(t); got != 5000 {
			t.Errorf("balance = %d after webhook+verify, want 5000", got)
		}
	})

	t.Run("expired session still credits the charged wallet", func(t *testing.T) {
		// The checkout redirect can land after the token expired; the
		// call then carries no caller identity at all.
		f := newFixture(t, 0)
		ref := "WALLET_FUND_u1_abc"
		f.gateway.verifyResult = &gateway.VerifyResult{
			Reference: ref, Status: "success", Amount: 5000,
			Metadata: gateway.Metadata{UserID: "u1", WalletID: f.wallet.ID, Purpose: "wallet_funding"},
		}
		if _, err := f.service.VerifyPayment(ctx, "", ref); err != nil {
			t.Fatalf("anonymous verify: %v", err)
		}
		if got := f.balance(t); got != 5000 {
			t.Errorf("balance = %d, want 5000", got)
		}
		// Replay still hits the idempotency gate.
		if _, err := f.service.VerifyPayment(ctx, "", ref); err != nil {
			t.Fatalf("anonymous replay: %v", err)
		}
		if got := f.balance(t); got != 5000 {
			t.Errorf("balance = %d after replay, want 5000", got)
		}
	})

	t.Run("anonymous verify rejects non-funding charges", func(t *testing.T) {
		f := newFixture(t, 0)
		ref := "ORDER_PAY_xyz"
		f.gateway.verifyResult = &gateway.VerifyResult{
			Reference: ref, Status: "success", Amount: 5000,
			Metadata: gateway.Metadata{UserID: "u1", Purpose: "something_else"},
		}
		if _, err := f.service.VerifyPayment(ctx, "", ref); err == nil {
			t.Error("non-funding charge was credited")
		}
		if got := f.balance(t); got != 0 {
			t.Errorf("balance = %d, want 0", got)
		}
	})

	t.Run("reference of another user", func(t *testing.T) {
		f := newFixture(t, 0)
		_, err := f.service.VerifyPayment(ctx, "u1", "WALLET_FUND_u2_abc")
		if !errors.Is(err, domain.ErrOwnershipMismatch) {
			t.Errorf("err = %v, want ErrOwnershipMismatch", err)
		}
	})

	t.Run("metadata names another user", func(t *testing.T) {
		f := newFixture(t, 0)
		ref := "WALLET_FUND_u1_abc"
		f.gateway.verifyResult = &gateway.VerifyResult{
			Reference: ref, Status: "success", Amount: 5000,
			Metadata: gateway.Metadata{UserID: "u2", WalletID: f.wallet.ID, Purpose: "wallet_funding"},
		}
		if _, err := f.service.VerifyPayment(ctx, "u1", ref); !errors.Is(err, domain.ErrOwnershipMismatch) {
			t.Errorf("err = %v, want ErrOwnershipMismatch", err)
		}
		if got := f.balance(t); got != 0 {
			t.Errorf("balance = %d, want 0", got)
		}
	})

	t.Run("gateway unavailable mutates nothing", func(t *testing.T) {
		f := newFixture(t, 0)
		f.gateway.verifyErr = domain.ErrGatewayUnavailable
		if _, err := f.service.VerifyPayment(ctx, "u1", "WALLET_FUND_u1_abc"); !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Errorf("err = %v, want ErrGatewayUnavailable", err)
		}
		if got := f.balance(t); got != 0 {
			t.Errorf("balance = %d, want 0", got)
		}
	})
}

func TestRequestWithdrawal(t *testing.T) {
	ctx := context.Background()

	t.Run("debits amount plus fee", func(t *testing.T) {
		f := newFixture(t, 10_000)
		acct := f.addBankAccount(t)

		wd, err := f.service.RequestWithdrawal(ctx, "u1", acct.ID, 5000)
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if wd.Fee != 100 {
			t.Errorf("fee = %d, want 100", wd.Fee)
		}
		if wd.NetAmount != 4900 {
			t.Errorf("net amount = %d, want 4900", wd.NetAmount)
		}
		if wd.Status != domain.WithdrawalProcessing {
			t.Errorf("status = %s, want PROCESSING", wd.Status)
		}
		if got := f.balance(t); got != 4900 {
			t.Errorf("balance = %d, want 4900", got)
		}
	})

	t.Run("below minimum", func(t *testing.T) {
		f := newFixture(t, 10_000)
		acct := f.addBankAccount(t)
		if _, err := f.service.RequestWithdrawal(ctx, "u1", acct.ID, 1999); err == nil {
			t.Error("withdrawal below minimum succeeded")
		}
		if f.gateway.transfers != 0 {
			t.Error("gateway called for rejected withdrawal")
		}
	})

	t.Run("balance covers amount but not fee", func(t *testing.T) {
		f := newFixture(t, 5000)
		acct := f.addBankAccount(t)
		_, err := f.service.RequestWithdrawal(ctx, "u1", acct.ID, 5000)
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}
		if got := f.balance(t); got != 5000 {
			t.Errorf("balance = %d, want untouched 5000", got)
		}
	})

	t.Run("transfer failure restores balance", func(t *testing.T) {
		f := newFixture(t, 10_000)
		acct := f.addBankAccount(t)
		f.gateway.transferErr = domain.ErrGatewayUnavailable

		_, err := f.service.RequestWithdrawal(ctx, "u1", acct.ID, 5000)
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
		}
		if got := f.balance(t); got != 10_000 {
			t.Errorf("balance = %d after reversal, want 10000", got)
		}
		list, _ := f.service.Withdrawals(ctx, "u1", "")
		if len(list) != 1 || list[0].Status != domain.WithdrawalFailed {
			t.Errorf("withdrawal record = %+v, want one FAILED", list)
		}
	})
}

func TestHandleTransferEvent(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *domain.Withdrawal) {
		f := newFixture(t, 10_000)
		acct := f.addBankAccount(t)
		wd, err := f.service.RequestWithdrawal(ctx, "u1", acct.ID, 5000)
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		return f, wd
	}

	t.Run("success completes withdrawal", func(t *testing.T) {
		f, wd := setup(t)
		if err := f.service.HandleTransferEvent(ctx, TransferEvent{Event: "transfer.success", Reference: wd.Reference}); err != nil {
			t.Fatalf("event: %v", err)
		}
		got, _ := f.store.WithdrawalByID(ctx, wd.ID)
		if got.Status != domain.WithdrawalCompleted {
			t.Errorf("status = %s, want COMPLETED", got.Status)
		}
		if got.CompletedAt == nil {
			t.Error("CompletedAt not set")
		}
		if bal := f.balance(t); bal != 4900 {
			t.Errorf("balance = %d, want 4900", bal)
		}
	})

	t.Run("failure compensates exactly once", func(t *testing.T) {
		f, wd := setup(t)
		for i := 0; i < 3; i++ {
			if err := f.service.HandleTransferEvent(ctx, TransferEvent{Event: "transfer.failed", Reference: wd.Reference}); err != nil {
				t.Fatalf("delivery %d: %v", i, err)
			}
		}
		if bal := f.balance(t); bal != 10_000 {
			t.Errorf("balance = %d after 3 failure events, want 10000", bal)
		}
		got, _ := f.store.WithdrawalByID(ctx, wd.ID)
		if got.Status != domain.WithdrawalFailed {
			t.Errorf("status = %s, want FAILED", got.Status)
		}
	})

	t.Run("reversal after success keeps success", func(t *testing.T) {
		f, wd := setup(t)
		if err := f.service.HandleTransferEvent(ctx, TransferEvent{Event: "transfer.success", Reference: wd.Reference}); err != nil {
			t.Fatalf("success: %v", err)
		}
		if err := f.service.HandleTransferEvent(ctx, TransferEvent{Event: "transfer.failed", Reference: wd.Reference}); err != nil {
			t.Fatalf("late failure: %v", err)
		}
		got, _ := f.store.WithdrawalByID(ctx, wd.ID)
		if got.Status != domain.WithdrawalCompleted {
			t.Errorf("status = %s, want COMPLETED kept", got.Status)
		}
		if bal := f.balance(t); bal != 4900 {
			t.Errorf("balance = %d, want 4900", bal)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		f := newFixture(t, 0)
		err := f.service.HandleTransferEvent(ctx, TransferEvent{Event: "transfer.success", Reference: "NOPE"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestBankAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("add resolves name and recipient", func(t *testing.T) {
		f := newFixture(t, 0)
		acct := f.addBankAccount(t)
		if acct.AccountName != "ADA OBI" {
			t.Errorf("account name = %q, want resolved name", acct.AccountName)
		}
		if acct.RecipientCode != "RCP_test" {
			t.Errorf("recipient code = %q", acct.RecipientCode)
		}
		if !acct.Verified {
			t.Error("resolved account not marked verified")
		}
	})

	t.Run("reverify refreshes the resolved name", func(t *testing.T) {
		f := newFixture(t, 0)
		acct := f.addBankAccount(t)

		f.gateway.resolveName = "ADA OBI-EZE"
		got, err := f.service.ReverifyBankAccount(ctx, "u1", acct.ID)
		if err != nil {
			t.Fatalf("reverify: %v", err)
		}
		if got.AccountName != "ADA OBI-EZE" {
			t.Errorf("account name = %q, want refreshed name", got.AccountName)
		}
		if !got.Verified {
			t.Error("reverified account not marked verified")
		}
		stored, err := f.store.BankAccountByID(ctx, acct.ID, "u1")
		if err != nil {
			t.Fatalf("stored account: %v", err)
		}
		if stored.AccountName != "ADA OBI-EZE" {
			t.Errorf("stored account name = %q, update not persisted", stored.AccountName)
		}
	})

	t.Run("reverify of another user's account", func(t *testing.T) {
		f := newFixture(t, 0)
		acct := f.addBankAccount(t)
		if _, err := f.service.ReverifyBankAccount(ctx, "u2", acct.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete blocked while withdrawal in flight", func(t *testing.T) {
		f := newFixture(t, 10_000)
		acct := f.addBankAccount(t)
		if _, err := f.service.RequestWithdrawal(ctx, "u1", acct.ID, 5000); err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if err := f.service.RemoveBankAccount(ctx, "u1", acct.ID); err == nil {
			t.Error("delete succeeded with withdrawal in flight")
		}
	})

	t.Run("delete after settlement", func(t *testing.T) {
		f := newFixture(t, 10_000)
		acct := f.addBankAccount(t)
		wd, err := f.service.RequestWithdrawal(ctx, "u1", acct.ID, 5000)
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if err := f.service.HandleTransferEvent(ctx, TransferEvent{Event: "transfer.success", Reference: wd.Reference}); err != nil {
			t.Fatalf("settle: %v", err)
		}
		if err := f.service.RemoveBankAccount(ctx, "u1", acct.ID); err != nil {
			t.Errorf("delete: %v", err)
		}
	})

	t.Run("cannot touch another user's account", func(t *testing.T) {
		f := newFixture(t, 0)
		acct := f.addBankAccount(t)
		if err := f.service.RemoveBankAccount(ctx, "u2", acct.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestWalletStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	muts := []struct {
		amount int64
		typ    domain.EntryType
		ref    string
	}{
		{8000, domain.EntryCredit, "C1"},
		{2000, domain.EntryEscrowHold, "H1"},
		{1000, domain.EntryDebit, "D1"},
	}
	for _, mu := range muts {
		if _, err := f.ledger.Apply(ctx, f.wallet.ID, mu.amount, mu.typ, mu.ref, ""); err != nil {
			t.Fatalf("apply %s: %v", mu.ref, err)
		}
	}

	st, err := f.service.WalletStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Balance != 5000 {
		t.Errorf("balance = %d, want 5000", st.Balance)
	}
	if st.TotalCredited != 8000 || st.TotalDebited != 1000 || st.EscrowHeld != 2000 {
		t.Errorf("stats = %+v", st)
	}
	if st.EntryCount != 3 {
		t.Errorf("entry count = %d, want 3", st.EntryCount)
	}
}
