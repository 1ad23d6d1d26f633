package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/alerts"
	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/gateway"
	"github.com/covu-ng/covu-core/internal/ledger"
	"github.com/covu-ng/covu-core/internal/store"
)

const (
	purposeFunding    = "wallet_funding"
	purposeWithdrawal = "withdrawal"
)

// Service covers wallet funding through the payment gateway, tiered-fee
// withdrawals with compensating reversal on failure, and bank account
// management.
type Service struct {
	store   store.Store
	ledger  *ledger.Mutator
	gateway gateway.Client
	notify  alerts.Notifier
	log     zerolog.Logger

	callbackURL string
}

func NewService(st store.Store, led *ledger.Mutator, gw gateway.Client, notify alerts.Notifier, callbackURL string, log zerolog.Logger) *Service {
	if notify == nil {
		notify = alerts.Nop{}
	}
	return &Service{
		store:       st,
		ledger:      led,
		gateway:     gw,
		notify:      notify,
		log:         log.With().Str("component", "wallet").Logger(),
		callbackURL: callbackURL,
	}
}

func fundingReference(userID string) string {
	nonce := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return fmt.Sprintf("WALLET_FUND_%s_%s", userID, nonce)
}

func withdrawalReference(userID string) string {
	nonce := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return fmt.Sprintf("WITHDRAWAL_%s_%s", userID, nonce)
}

func reversalReference(withdrawalID string) string {
	return "WD_REVERSAL_" + withdrawalID
}

// InitiateFunding asks the gateway for a checkout authorization. No
// ledger mutation happens here; the credit lands when the gateway
// confirms the charge via webhook or manual verification.
func (s *Service) InitiateFunding(ctx context.Context, userID, email string, amount int64) (*gateway.Authorization, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("funding amount must be positive, got %d", amount)
	}
	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		return nil, domain.ErrWalletInactive
	}

	ref := fundingReference(userID)
	auth, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       email,
		Amount:      amount,
		Reference:   ref,
		CallbackURL: s.callbackURL,
		Metadata: gateway.Metadata{
			UserID:   userID,
			WalletID: w.ID,
			Purpose:  purposeFunding,
		},
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", userID).Str("reference", ref).Int64("amount", amount).
		Msg("funding initiated")
	return auth, nil
}

// creditFunding applies a confirmed charge to the wallet. The ledger's
// reference gate makes this safe to call from both the webhook and
// manual verification for the same charge.
func (s *Service) creditFunding(ctx context.Context, walletID, reference string, amount int64) (*domain.LedgerEntry, error) {
	return s.ledger.Apply(ctx, walletID, amount, domain.EntryCredit, reference, "wallet funding")
}

// ChargeEvent is the subset of a gateway charge webhook the engine
// acts on.
type ChargeEvent struct {
	Event     string
	Reference string
	Amount    int64 // naira
	Metadata  gateway.Metadata
}

// HandleChargeEvent processes a charge.success notification. Unknown
// events and non-funding charges are ignored.
func (s *Service) HandleChargeEvent(ctx context.Context, ev ChargeEvent) error {
	if ev.Event != "charge.success" {
		s.log.Debug().Str("event", ev.Event).Msg("ignoring charge event")
		return nil
	}
	if ev.Metadata.Purpose != purposeFunding || ev.Metadata.WalletID == "" {
		s.log.Warn().Str("reference", ev.Reference).Msg("charge event without funding metadata")
		return nil
	}
	entry, err := s.creditFunding(ctx, ev.Metadata.WalletID, ev.Reference, ev.Amount)
	if err != nil {
		return fmt.Errorf("credit funding %s: %w", ev.Reference, err)
	}
	_ = s.notify.Notify(ev.Metadata.UserID, alerts.KindWalletFunded, map[string]string{
		"reference": ev.Reference,
		"amount":    formatNaira(ev.Amount),
	})
	s.log.Info().Str("reference", ev.Reference).Str("entry_id", entry.ID).
		Int64("amount", ev.Amount).Msg("wallet funded")
	return nil
}

// VerifyPayment confirms a charge with the gateway. The route stays
// reachable without a session because the checkout redirect often
// lands after the token expired; callerID is then empty and the credit
// goes to whatever wallet the charge was created for. When a caller
// identity is present it must match both the reference and the
// gateway's metadata, and either mismatch rejects the call before any
// ledger mutation.
func (s *Service) VerifyPayment(ctx context.Context, callerID, reference string) (*domain.LedgerEntry, error) {
	if callerID != "" && !strings.HasPrefix(reference, "WALLET_FUND_"+callerID+"_") {
		return nil, domain.ErrOwnershipMismatch
	}
	res, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if callerID != "" && res.Metadata.UserID != callerID {
		return nil, domain.ErrOwnershipMismatch
	}
	if res.Metadata.Purpose != purposeFunding || res.Metadata.WalletID == "" {
		return nil, fmt.Errorf("reference %s is not a wallet funding charge", reference)
	}
	if res.Status != "success" {
		return nil, fmt.Errorf("payment %s not successful: status %q", reference, res.Status)
	}
	entry, err := s.creditFunding(ctx, res.Metadata.WalletID, res.Reference, res.Amount)
	if err != nil {
		return nil, err
	}
	_ = s.notify.Notify(res.Metadata.UserID, alerts.KindWalletFunded, map[string]string{
		"reference": res.Reference,
		"amount":    formatNaira(res.Amount),
	})
	return entry, nil
}

// RequestWithdrawal debits amount plus the tier fee, records a pending
// withdrawal, and asks the gateway to pay out. A synchronous gateway
// failure reverses the debit with a compensating credit and marks the
// withdrawal failed.
func (s *Service) RequestWithdrawal(ctx context.Context, userID, bankAccountID string, amount int64) (*domain.Withdrawal, error) {
	if amount < MinWithdrawal {
		return nil, fmt.Errorf("minimum withdrawal is %d, got %d", int64(MinWithdrawal), amount)
	}
	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		return nil, domain.ErrWalletInactive
	}
	acct, err := s.store.BankAccountByID(ctx, bankAccountID, userID)
	if err != nil {
		return nil, err
	}

	fee := FeeFor(amount)
	total := amount + fee
	if w.Balance < total {
		return nil, &domain.InsufficientFundsError{Need: total, Have: w.Balance}
	}

	ref := withdrawalReference(userID)
	wd := &domain.Withdrawal{
		ID:            uuid.New().String(),
		UserID:        userID,
		WalletID:      w.ID,
		BankAccountID: acct.ID,
		Amount:        amount,
		Fee:           fee,
		NetAmount:     amount - fee,
		Reference:     ref,
		Status:        domain.WithdrawalPending,
		CreatedAt:     time.Now().UTC(),
	}

	// Debit happens under the ledger's wallet lock so the balance check
	// cannot race a concurrent withdrawal.
	if _, err := s.ledger.Apply(ctx, w.ID, total, domain.EntryDebit, ref,
		fmt.Sprintf("withdrawal to %s (%s fee)", acct.BankName, formatNaira(fee))); err != nil {
		return nil, err
	}
	if err := s.store.InsertWithdrawal(ctx, wd); err != nil {
		return nil, err
	}

	// The bank receives the net; the wallet was debited amount plus fee.
	res, err := s.gateway.Transfer(ctx, gateway.TransferRequest{
		Amount:        wd.NetAmount,
		RecipientCode: acct.RecipientCode,
		Reference:     ref,
		Reason:        "wallet withdrawal",
		Metadata: gateway.Metadata{
			UserID:       userID,
			WalletID:     w.ID,
			WithdrawalID: wd.ID,
			Purpose:      purposeWithdrawal,
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("withdrawal_id", wd.ID).Msg("transfer failed, reversing")
		if ferr := s.failWithdrawal(ctx, wd, "gateway transfer failed"); ferr != nil {
			s.log.Error().Err(ferr).Str("withdrawal_id", wd.ID).Msg("reversal failed")
		}
		return nil, err
	}

	wd.Status = domain.WithdrawalProcessing
	wd.GatewayReference = res.TransferCode
	if err := s.store.UpdateWithdrawal(ctx, wd); err != nil {
		return nil, err
	}
	_ = s.notify.Notify(userID, alerts.KindWithdrawalInitiated, map[string]string{
		"reference": ref,
		"amount":    formatNaira(amount),
		"fee":       formatNaira(fee),
	})
	s.log.Info().Str("withdrawal_id", wd.ID).Str("reference", ref).
		Int64("amount", amount).Int64("fee", fee).Msg("withdrawal processing")
	return wd, nil
}

// failWithdrawal marks the withdrawal failed and restores amount+fee
// with a compensating credit. The reversal reference is derived from
// the withdrawal ID so retries cannot double-credit.
func (s *Service) failWithdrawal(ctx context.Context, wd *domain.Withdrawal, reason string) error {
	if wd.Status == domain.WithdrawalCompleted || wd.Status == domain.WithdrawalFailed {
		return nil
	}
	if _, err := s.ledger.Apply(ctx, wd.WalletID, wd.Amount+wd.Fee, domain.EntryCredit,
		reversalReference(wd.ID), "withdrawal reversal: "+reason); err != nil {
		return err
	}
	wd.Status = domain.WithdrawalFailed
	wd.FailureReason = reason
	now := time.Now().UTC()
	wd.CompletedAt = &now
	if err := s.store.UpdateWithdrawal(ctx, wd); err != nil {
		return err
	}
	_ = s.notify.Notify(wd.UserID, alerts.KindWithdrawalFailed, map[string]string{
		"reference": wd.Reference,
		"reason":    reason,
	})
	return nil
}

// TransferEvent is the subset of a gateway transfer webhook the engine
// acts on.
type TransferEvent struct {
	Event     string // transfer.success, transfer.failed, transfer.reversed
	Reference string
}

// HandleTransferEvent settles a withdrawal from an async transfer
// notification. Success completes it; failure or reversal triggers the
// compensating credit. Repeated deliveries are no-ops.
func (s *Service) HandleTransferEvent(ctx context.Context, ev TransferEvent) error {
	wd, err := s.store.WithdrawalByReference(ctx, ev.Reference)
	if err != nil {
		return fmt.Errorf("withdrawal %s: %w", ev.Reference, err)
	}
	switch ev.Event {
	case "transfer.success":
		if wd.Status == domain.WithdrawalCompleted {
			return nil
		}
		if wd.Status == domain.WithdrawalFailed {
			s.log.Warn().Str("withdrawal_id", wd.ID).
				Msg("success event for already reversed withdrawal")
			return nil
		}
		wd.Status = domain.WithdrawalCompleted
		now := time.Now().UTC()
		wd.CompletedAt = &now
		if err := s.store.UpdateWithdrawal(ctx, wd); err != nil {
			return err
		}
		_ = s.notify.Notify(wd.UserID, alerts.KindWithdrawalCompleted, map[string]string{
			"reference": wd.Reference,
			"amount":    formatNaira(wd.Amount),
		})
		return nil
	case "transfer.failed", "transfer.reversed":
		return s.failWithdrawal(ctx, wd, ev.Event)
	default:
		s.log.Debug().Str("event", ev.Event).Msg("ignoring transfer event")
		return nil
	}
}

// AddBankAccount resolves the account with the gateway, creates a
// transfer recipient, and stores both. The resolved account name is
// authoritative over whatever the caller typed.
func (s *Service) AddBankAccount(ctx context.Context, userID, bankCode, bankName, accountNumber string) (*domain.BankAccount, error) {
	resolved, err := s.gateway.ResolveAccount(ctx, accountNumber, bankCode)
	if err != nil {
		return nil, err
	}
	code, err := s.gateway.CreateRecipient(ctx, resolved.AccountName, accountNumber, bankCode)
	if err != nil {
		return nil, err
	}
	acct := &domain.BankAccount{
		ID:            uuid.New().String(),
		UserID:        userID,
		BankCode:      bankCode,
		BankName:      bankName,
		AccountNumber: accountNumber,
		AccountName:   resolved.AccountName,
		RecipientCode: code,
		Verified:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.InsertBankAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// ReverifyBankAccount re-resolves a stored account with the gateway
// and refreshes the resolved name and recipient code. Banks reassign
// account names on ownership changes, so a stale account can be
// re-checked before a payout.
func (s *Service) ReverifyBankAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	acct, err := s.store.BankAccountByID(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.gateway.ResolveAccount(ctx, acct.AccountNumber, acct.BankCode)
	if err != nil {
		return nil, err
	}
	acct.AccountName = resolved.AccountName
	acct.Verified = true
	if acct.RecipientCode == "" {
		code, err := s.gateway.CreateRecipient(ctx, resolved.AccountName, acct.AccountNumber, acct.BankCode)
		if err != nil {
			return nil, err
		}
		acct.RecipientCode = code
	}
	if err := s.store.UpdateBankAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Service) BankAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	return s.store.BankAccountsByUser(ctx, userID)
}

// RemoveBankAccount deletes a saved account unless a withdrawal to it
// is still in flight.
func (s *Service) RemoveBankAccount(ctx context.Context, userID, accountID string) error {
	if _, err := s.store.BankAccountByID(ctx, accountID, userID); err != nil {
		return err
	}
	active, err := s.store.HasActiveWithdrawals(ctx, accountID)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("bank account %s has withdrawals in flight", accountID)
	}
	return s.store.DeleteBankAccount(ctx, accountID, userID)
}

func (s *Service) Balance(ctx context.Context, userID string) (*domain.Wallet, error) {
	return s.store.WalletByUser(ctx, userID)
}

func (s *Service) Transactions(ctx context.Context, userID string, f store.EntryFilter) ([]domain.LedgerEntry, error) {
	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.EntriesByWallet(ctx, w.ID, f)
}

func (s *Service) Withdrawals(ctx context.Context, userID string, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	return s.store.WithdrawalsByUser(ctx, userID, status)
}

// Stats summarizes a wallet's lifetime activity from its ledger.
type Stats struct {
	Balance       int64 `json:"balance"`
	TotalCredited int64 `json:"total_credited"`
	TotalDebited  int64 `json:"total_debited"`
	EscrowHeld    int64 `json:"escrow_held"`
	EntryCount    int   `json:"entry_count"`
}

func (s *Service) WalletStats(ctx context.Context, userID string) (*Stats, error) {
	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.EntriesByWallet(ctx, w.ID, store.EntryFilter{})
	if err != nil {
		return nil, err
	}
	st := &Stats{Balance: w.Balance, EntryCount: len(entries)}
	for _, e := range entries {
		switch e.Type {
		case domain.EntryCredit, domain.EntryEscrowRelease, domain.EntryEscrowRefund:
			st.TotalCredited += e.Amount
		case domain.EntryDebit:
			st.TotalDebited += e.Amount
		case domain.EntryEscrowHold:
			st.EscrowHeld += e.Amount
		}
	}
	return st, nil
}

func formatNaira(n int64) string {
	return fmt.Sprintf("NGN %d", n)
}
