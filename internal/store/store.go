package store

import (
	"context"
	"time"

	"github.com/covu-ng/covu-core/internal/domain"
)

// EntryFilter narrows transaction history queries.
type EntryFilter struct {
	Type  domain.EntryType
	Since time.Time
	Until time.Time
	Limit int
}

// Store is the persistence boundary for the settlement core. WithTx runs
// fn against a transactional view of the store: every write inside fn
// commits together or not at all. Implementations must make WithTx safe
// to nest (the inner call reuses the surrounding transaction).
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	CreateWallet(ctx context.Context, w *domain.Wallet) error
	WalletByID(ctx context.Context, id string) (*domain.Wallet, error)
	// WalletByIDForUpdate reads the wallet under an exclusive row lock
	// held until the surrounding transaction ends.
	WalletByIDForUpdate(ctx context.Context, id string) (*domain.Wallet, error)
	WalletByUser(ctx context.Context, userID string) (*domain.Wallet, error)
	SetWalletBalance(ctx context.Context, id string, balance int64) error

	InsertEntry(ctx context.Context, e *domain.LedgerEntry) error
	EntryByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error)
	EntriesByWallet(ctx context.Context, walletID string, f EntryFilter) ([]domain.LedgerEntry, error)

	InsertEscrow(ctx context.Context, rec *domain.EscrowRecord) error
	EscrowByID(ctx context.Context, id string) (*domain.EscrowRecord, error)
	EscrowByOrder(ctx context.Context, orderID string) (*domain.EscrowRecord, error)
	UpdateEscrow(ctx context.Context, rec *domain.EscrowRecord) error

	InsertOrder(ctx context.Context, o *domain.Order) error
	OrderByID(ctx context.Context, id string) (*domain.Order, error)
	// OrderByIDForUpdate reads the order under an exclusive row lock
	// held until the surrounding transaction ends.
	OrderByIDForUpdate(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, o *domain.Order) error
	OrdersByUser(ctx context.Context, userID string, asSeller bool, status domain.OrderStatus) ([]domain.Order, error)
	// DeliveredBefore returns DELIVERED orders whose delivered_at is
	// older than the cutoff, for the auto-release sweep.
	DeliveredBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error)

	ProductByRef(ctx context.Context, ref string) (*domain.Product, error)

	InsertWithdrawal(ctx context.Context, w *domain.Withdrawal) error
	WithdrawalByID(ctx context.Context, id string) (*domain.Withdrawal, error)
	WithdrawalByReference(ctx context.Context, reference string) (*domain.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error
	WithdrawalsByUser(ctx context.Context, userID string, status domain.WithdrawalStatus) ([]domain.Withdrawal, error)
	HasActiveWithdrawals(ctx context.Context, bankAccountID string) (bool, error)

	InsertBankAccount(ctx context.Context, a *domain.BankAccount) error
	BankAccountByID(ctx context.Context, id, userID string) (*domain.BankAccount, error)
	BankAccountsByUser(ctx context.Context, userID string) ([]domain.BankAccount, error)
	UpdateBankAccount(ctx context.Context, a *domain.BankAccount) error
	DeleteBankAccount(ctx context.Context, id, userID string) error
}
