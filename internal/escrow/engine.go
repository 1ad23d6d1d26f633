package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/ledger"
	"github.com/covu-ng/covu-core/internal/store"
)

// Engine moves order funds between the buyer's and seller's wallets.
// A record starts HELD and resolves exactly once, to RELEASED or
// REFUNDED. Release and Refund tolerate duplicate triggers: calling
// either on an already-resolved record is a no-op that returns the
// record as it is.
type Engine struct {
	store  store.Store
	ledger *ledger.Mutator
	log    zerolog.Logger
}

func NewEngine(s store.Store, m *ledger.Mutator, log zerolog.Logger) *Engine {
	return &Engine{
		store:  s,
		ledger: m,
		log:    log.With().Str("component", "escrow").Logger(),
	}
}

func holdReference(orderID string) string    { return "ESCROW_HOLD_" + orderID }
func releaseReference(orderID string) string { return "ESCROW_RELEASE_" + orderID }
func refundReference(orderID string) string  { return "ESCROW_REFUND_" + orderID }

// HoldIn debits the buyer and opens the HELD record inside the caller's
// transaction. Order creation calls this so that order, escrow and
// debit persist together or not at all.
func (e *Engine) HoldIn(ctx context.Context, tx store.Store, orderID, buyerWalletID, sellerWalletID string, amount int64, description string) (*domain.EscrowRecord, error) {
	entry, err := e.ledger.ApplyIn(ctx, tx, buyerWalletID, amount,
		domain.EntryEscrowHold, holdReference(orderID), description)
	if err != nil {
		return nil, err
	}

	rec := &domain.EscrowRecord{
		ID:             uuid.New().String(),
		OrderID:        orderID,
		BuyerWalletID:  buyerWalletID,
		SellerWalletID: sellerWalletID,
		Amount:         amount,
		Status:         domain.EscrowHeld,
		HoldReference:  entry.Reference,
		CreatedAt:      time.Now().UTC(),
	}
	if err := tx.InsertEscrow(ctx, rec); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("escrow_id", rec.ID).
		Str("order_id", orderID).
		Int64("amount", amount).
		Msg("escrow held")
	return rec, nil
}

// Release credits the seller and marks the record RELEASED.
func (e *Engine) Release(ctx context.Context, escrowID string) (*domain.EscrowRecord, error) {
	return e.resolve(ctx, escrowID, domain.EscrowReleased, "")
}

// Refund credits the buyer back and marks the record REFUNDED.
func (e *Engine) Refund(ctx context.Context, escrowID, reason string) (*domain.EscrowRecord, error) {
	return e.resolve(ctx, escrowID, domain.EscrowRefunded, reason)
}

func (e *Engine) resolve(ctx context.Context, escrowID string, target domain.EscrowStatus, reason string) (*domain.EscrowRecord, error) {
	var rec *domain.EscrowRecord
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		rec, err = e.resolveIn(ctx, tx, escrowID, target, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ReleaseIn and RefundIn run inside the caller's transaction. The order
// state machine uses them so escrow resolution commits together with
// the order status change.
func (e *Engine) ReleaseIn(ctx context.Context, tx store.Store, escrowID string) (*domain.EscrowRecord, error) {
	return e.resolveIn(ctx, tx, escrowID, domain.EscrowReleased, "")
}

func (e *Engine) RefundIn(ctx context.Context, tx store.Store, escrowID, reason string) (*domain.EscrowRecord, error) {
	return e.resolveIn(ctx, tx, escrowID, domain.EscrowRefunded, reason)
}

func (e *Engine) resolveIn(ctx context.Context, tx store.Store, escrowID string, target domain.EscrowStatus, reason string) (*domain.EscrowRecord, error) {
	rec, err := tx.EscrowByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Resolved() {
		// Duplicate trigger (buyer confirm racing the sweep, webhook
		// retry). Keep the first outcome.
		e.log.Info().
			Str("escrow_id", rec.ID).
			Str("status", string(rec.Status)).
			Msg("escrow already resolved, ignoring duplicate trigger")
		return rec, nil
	}

	var entry *domain.LedgerEntry
	switch target {
	case domain.EscrowReleased:
		entry, err = e.ledger.ApplyIn(ctx, tx, rec.SellerWalletID, rec.Amount,
			domain.EntryEscrowRelease, releaseReference(rec.OrderID),
			"Escrow release for order "+rec.OrderID)
	case domain.EscrowRefunded:
		entry, err = e.ledger.ApplyIn(ctx, tx, rec.BuyerWalletID, rec.Amount,
			domain.EntryEscrowRefund, refundReference(rec.OrderID),
			"Escrow refund for order "+rec.OrderID)
	default:
		return nil, errors.New("escrow: unknown target status " + string(target))
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.Status = target
	rec.ResolveReference = entry.Reference
	rec.RefundReason = reason
	rec.ResolvedAt = &now
	if err := tx.UpdateEscrow(ctx, rec); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("escrow_id", rec.ID).
		Str("order_id", rec.OrderID).
		Str("status", string(target)).
		Int64("amount", rec.Amount).
		Msg("escrow resolved")
	return rec, nil
}
