package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/covu-ng/covu-core/internal/domain"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Store over a pgx pool. A transactional view wraps
// the pgx.Tx so nested WithTx calls reuse the open transaction.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if _, inTx := p.q.(pgx.Tx); inTx {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{pool: p.pool, q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return domain.ErrDuplicateReference
	}
	return err
}

func (p *Postgres) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance, currency, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.UserID, w.Balance, w.Currency, w.Active, w.CreatedAt)
	return mapErr(err)
}

func (p *Postgres) scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.Active, &w.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (p *Postgres) WalletByID(ctx context.Context, id string) (*domain.Wallet, error) {
	return p.scanWallet(p.q.QueryRow(ctx,
		`SELECT id, user_id, balance, currency, active, created_at FROM wallets WHERE id = $1`, id))
}

func (p *Postgres) WalletByIDForUpdate(ctx context.Context, id string) (*domain.Wallet, error) {
	return p.scanWallet(p.q.QueryRow(ctx,
		`SELECT id, user_id, balance, currency, active, created_at FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

func (p *Postgres) WalletByUser(ctx context.Context, userID string) (*domain.Wallet, error) {
	return p.scanWallet(p.q.QueryRow(ctx,
		`SELECT id, user_id, balance, currency, active, created_at FROM wallets WHERE user_id = $1`, userID))
}

func (p *Postgres) SetWalletBalance(ctx context.Context, id string, balance int64) error {
	tag, err := p.q.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, balance, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) InsertEntry(ctx context.Context, e *domain.LedgerEntry) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO ledger_entries
		   (id, wallet_id, type, amount, balance_before, balance_after, reference, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WalletID, e.Type, e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.Reference, e.Description, e.CreatedAt)
	return mapErr(err)
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(&e.ID, &e.WalletID, &e.Type, &e.Amount, &e.BalanceBefore,
		&e.BalanceAfter, &e.Reference, &e.Description, &e.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (p *Postgres) EntryByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	return scanEntry(p.q.QueryRow(ctx,
		`SELECT id, wallet_id, type, amount, balance_before, balance_after, reference, description, created_at
		 FROM ledger_entries WHERE reference = $1`, reference))
}

func (p *Postgres) EntriesByWallet(ctx context.Context, walletID string, f EntryFilter) ([]domain.LedgerEntry, error) {
	q := `SELECT id, wallet_id, type, amount, balance_before, balance_after, reference, description, created_at
	      FROM ledger_entries WHERE wallet_id = $1`
	args := []any{walletID}
	if f.Type != "" {
		args = append(args, f.Type)
		q += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	// Time bounds belong in the WHERE clause so LIMIT applies to the
	// window, not to rows the filter would discard afterwards.
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		q += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if !f.Until.IsZero() {
		args = append(args, f.Until)
		q += fmt.Sprintf(` AND created_at <= $%d`, len(args))
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := p.q.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertEscrow(ctx context.Context, rec *domain.EscrowRecord) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO escrows
		   (id, order_id, buyer_wallet_id, seller_wallet_id, amount, status,
		    hold_reference, resolve_reference, refund_reason, created_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.OrderID, rec.BuyerWalletID, rec.SellerWalletID, rec.Amount, rec.Status,
		rec.HoldReference, rec.ResolveReference, rec.RefundReason, rec.CreatedAt, rec.ResolvedAt)
	return mapErr(err)
}

func scanEscrow(row pgx.Row) (*domain.EscrowRecord, error) {
	var rec domain.EscrowRecord
	err := row.Scan(&rec.ID, &rec.OrderID, &rec.BuyerWalletID, &rec.SellerWalletID,
		&rec.Amount, &rec.Status, &rec.HoldReference, &rec.ResolveReference,
		&rec.RefundReason, &rec.CreatedAt, &rec.ResolvedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

const escrowCols = `id, order_id, buyer_wallet_id, seller_wallet_id, amount, status,
	hold_reference, resolve_reference, refund_reason, created_at, resolved_at`

func (p *Postgres) EscrowByID(ctx context.Context, id string) (*domain.EscrowRecord, error) {
	return scanEscrow(p.q.QueryRow(ctx, `SELECT `+escrowCols+` FROM escrows WHERE id = $1`, id))
}

func (p *Postgres) EscrowByOrder(ctx context.Context, orderID string) (*domain.EscrowRecord, error) {
	return scanEscrow(p.q.QueryRow(ctx, `SELECT `+escrowCols+` FROM escrows WHERE order_id = $1`, orderID))
}

func (p *Postgres) UpdateEscrow(ctx context.Context, rec *domain.EscrowRecord) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE escrows SET status = $1, resolve_reference = $2, refund_reason = $3, resolved_at = $4
		 WHERE id = $5`,
		rec.Status, rec.ResolveReference, rec.RefundReason, rec.ResolvedAt, rec.ID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderCols = `id, buyer_id, seller_id, product_ref, product_name, total_amount,
	delivery_address, status, cancelled_by, cancellation_reason, created_at,
	accepted_at, delivered_at, confirmed_at, cancelled_at`

func (p *Postgres) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO orders (`+orderCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.ID, o.BuyerID, o.SellerID, o.ProductRef, o.ProductName, o.TotalAmount,
		o.DeliveryAddress, o.Status, o.CancelledBy, o.CancellationReason, o.CreatedAt,
		o.AcceptedAt, o.DeliveredAt, o.ConfirmedAt, o.CancelledAt)
	return mapErr(err)
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.ProductRef, &o.ProductName,
		&o.TotalAmount, &o.DeliveryAddress, &o.Status, &o.CancelledBy,
		&o.CancellationReason, &o.CreatedAt, &o.AcceptedAt, &o.DeliveredAt,
		&o.ConfirmedAt, &o.CancelledAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (p *Postgres) OrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(p.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
}

func (p *Postgres) OrderByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(p.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (p *Postgres) UpdateOrder(ctx context.Context, o *domain.Order) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE orders SET status = $1, cancelled_by = $2, cancellation_reason = $3,
		   accepted_at = $4, delivered_at = $5, confirmed_at = $6, cancelled_at = $7
		 WHERE id = $8`,
		o.Status, o.CancelledBy, o.CancellationReason,
		o.AcceptedAt, o.DeliveredAt, o.ConfirmedAt, o.CancelledAt, o.ID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) OrdersByUser(ctx context.Context, userID string, asSeller bool, status domain.OrderStatus) ([]domain.Order, error) {
	col := "buyer_id"
	if asSeller {
		col = "seller_id"
	}
	q := `SELECT ` + orderCols + ` FROM orders WHERE ` + col + ` = $1`
	args := []any{userID}
	if status != "" {
		args = append(args, status)
		q += ` AND status = $2`
	}
	q += ` ORDER BY created_at DESC`
	return p.queryOrders(ctx, q, args...)
}

func (p *Postgres) DeliveredBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	return p.queryOrders(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE status = $1 AND delivered_at < $2 ORDER BY delivered_at`,
		domain.OrderDelivered, cutoff)
}

func (p *Postgres) queryOrders(ctx context.Context, q string, args ...any) ([]domain.Order, error) {
	rows, err := p.q.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (p *Postgres) ProductByRef(ctx context.Context, ref string) (*domain.Product, error) {
	var pr domain.Product
	err := p.q.QueryRow(ctx,
		`SELECT ref, name, seller_id, price FROM products WHERE ref = $1`, ref).
		Scan(&pr.Ref, &pr.Name, &pr.SellerID, &pr.Price)
	if err != nil {
		return nil, mapErr(err)
	}
	return &pr, nil
}

const withdrawalCols = `id, user_id, wallet_id, bank_account_id, amount, fee, net_amount,
	reference, gateway_reference, status, failure_reason, created_at, completed_at`

func (p *Postgres) InsertWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO withdrawals (`+withdrawalCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.UserID, w.WalletID, w.BankAccountID, w.Amount, w.Fee, w.NetAmount,
		w.Reference, w.GatewayReference, w.Status, w.FailureReason, w.CreatedAt, w.CompletedAt)
	return mapErr(err)
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.WalletID, &w.BankAccountID, &w.Amount, &w.Fee,
		&w.NetAmount, &w.Reference, &w.GatewayReference, &w.Status, &w.FailureReason,
		&w.CreatedAt, &w.CompletedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (p *Postgres) WithdrawalByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return scanWithdrawal(p.q.QueryRow(ctx, `SELECT `+withdrawalCols+` FROM withdrawals WHERE id = $1`, id))
}

func (p *Postgres) WithdrawalByReference(ctx context.Context, reference string) (*domain.Withdrawal, error) {
	return scanWithdrawal(p.q.QueryRow(ctx, `SELECT `+withdrawalCols+` FROM withdrawals WHERE reference = $1`, reference))
}

func (p *Postgres) UpdateWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE withdrawals SET status = $1, gateway_reference = $2, failure_reason = $3, completed_at = $4
		 WHERE id = $5`,
		w.Status, w.GatewayReference, w.FailureReason, w.CompletedAt, w.ID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) WithdrawalsByUser(ctx context.Context, userID string, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	q := `SELECT ` + withdrawalCols + ` FROM withdrawals WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		args = append(args, status)
		q += ` AND status = $2`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := p.q.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (p *Postgres) HasActiveWithdrawals(ctx context.Context, bankAccountID string) (bool, error) {
	var exists bool
	err := p.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM withdrawals WHERE bank_account_id = $1 AND status IN ($2, $3))`,
		bankAccountID, domain.WithdrawalPending, domain.WithdrawalProcessing).Scan(&exists)
	return exists, mapErr(err)
}

const bankAccountCols = `id, user_id, bank_name, bank_code, account_number, account_name,
	recipient_code, verified, created_at`

func (p *Postgres) InsertBankAccount(ctx context.Context, a *domain.BankAccount) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO bank_accounts (`+bankAccountCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.BankName, a.BankCode, a.AccountNumber, a.AccountName,
		a.RecipientCode, a.Verified, a.CreatedAt)
	return mapErr(err)
}

func scanBankAccount(row pgx.Row) (*domain.BankAccount, error) {
	var a domain.BankAccount
	err := row.Scan(&a.ID, &a.UserID, &a.BankName, &a.BankCode, &a.AccountNumber,
		&a.AccountName, &a.RecipientCode, &a.Verified, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func (p *Postgres) BankAccountByID(ctx context.Context, id, userID string) (*domain.BankAccount, error) {
	return scanBankAccount(p.q.QueryRow(ctx,
		`SELECT `+bankAccountCols+` FROM bank_accounts WHERE id = $1 AND user_id = $2`, id, userID))
}

func (p *Postgres) BankAccountsByUser(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+bankAccountCols+` FROM bank_accounts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateBankAccount(ctx context.Context, a *domain.BankAccount) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE bank_accounts SET account_name = $1, recipient_code = $2, verified = $3 WHERE id = $4`,
		a.AccountName, a.RecipientCode, a.Verified, a.ID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteBankAccount(ctx context.Context, id, userID string) error {
	tag, err := p.q.Exec(ctx,
		`DELETE FROM bank_accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
