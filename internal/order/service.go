package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/alerts"
	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/escrow"
	"github.com/covu-ng/covu-core/internal/store"
)

// CancelPolicy says how late each party may cancel. The source systems
// disagreed on this, so it is configuration rather than a constant.
type CancelPolicy struct {
	Buyer  []domain.OrderStatus
	Seller []domain.OrderStatus
}

// DefaultCancelPolicy: buyer may cancel only while PENDING, seller any
// time before CONFIRMED.
func DefaultCancelPolicy() CancelPolicy {
	return CancelPolicy{
		Buyer:  []domain.OrderStatus{domain.OrderPending},
		Seller: []domain.OrderStatus{domain.OrderPending, domain.OrderAccepted, domain.OrderDelivered},
	}
}

func (p CancelPolicy) allows(actor domain.CancelActor, status domain.OrderStatus) bool {
	allowed := p.Buyer
	if actor == domain.CancelledBySeller {
		allowed = p.Seller
	}
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

// Service drives the order state machine:
//
//	PENDING -> ACCEPTED -> DELIVERED -> CONFIRMED
//	any pre-CONFIRMED   -> CANCELLED
//
// Escrow follows the order: create holds, confirm releases, cancel
// refunds, each inside one transaction with the status change.
type Service struct {
	store  store.Store
	escrow *escrow.Engine
	notify alerts.Notifier
	policy CancelPolicy
	log    zerolog.Logger
}

func NewService(s store.Store, e *escrow.Engine, n alerts.Notifier, policy CancelPolicy, log zerolog.Logger) *Service {
	return &Service{
		store:  s,
		escrow: e,
		notify: n,
		policy: policy,
		log:    log.With().Str("component", "orders").Logger(),
	}
}

// Create places an order: debits the buyer, opens the escrow and writes
// the PENDING order as one atomic unit. Insufficient funds leaves
// nothing behind.
func (s *Service) Create(ctx context.Context, buyerID, productRef, deliveryAddress string) (*domain.Order, error) {
	product, err := s.store.ProductByRef(ctx, productRef)
	if err != nil {
		return nil, err
	}
	if product.SellerID == buyerID {
		return nil, domain.ErrOwnSellerPurchase
	}

	buyerWallet, err := s.store.WalletByUser(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	sellerWallet, err := s.store.WalletByUser(ctx, product.SellerID)
	if err != nil {
		return nil, err
	}

	o := &domain.Order{
		ID:              uuid.New().String(),
		BuyerID:         buyerID,
		SellerID:        product.SellerID,
		ProductRef:      product.Ref,
		ProductName:     product.Name,
		TotalAmount:     product.Price,
		DeliveryAddress: deliveryAddress,
		Status:          domain.OrderPending,
		CreatedAt:       time.Now().UTC(),
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		_, err := s.escrow.HoldIn(ctx, tx, o.ID, buyerWallet.ID, sellerWallet.ID,
			o.TotalAmount, "Payment for "+product.Name)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", o.ID).
		Str("buyer_id", buyerID).
		Str("seller_id", o.SellerID).
		Int64("amount", o.TotalAmount).
		Msg("order created")
	_ = s.notify.Notify(o.SellerID, alerts.KindOrderCreated, orderMeta(o))
	return o, nil
}

// transition re-reads the order under a row lock and applies mutate
// inside one transaction. The caller's earlier read may be stale; the
// locked re-read is what keeps two racing transitions from both
// committing against the same order.
func (s *Service) transition(ctx context.Context, orderID string, mutate func(tx store.Store, o *domain.Order) error) (*domain.Order, error) {
	var out *domain.Order
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		o, err := tx.OrderByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := mutate(tx, o); err != nil {
			return err
		}
		out = o
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Accept moves PENDING -> ACCEPTED. Seller only.
func (s *Service) Accept(ctx context.Context, orderID, sellerID string) (*domain.Order, error) {
	if _, err := s.ownedOrder(ctx, orderID, sellerID, true); err != nil {
		return nil, err
	}
	o, err := s.transition(ctx, orderID, func(_ store.Store, o *domain.Order) error {
		if o.Status != domain.OrderPending {
			return &domain.TransitionError{From: o.Status, To: domain.OrderAccepted}
		}
		now := time.Now().UTC()
		o.Status = domain.OrderAccepted
		o.AcceptedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("order_id", o.ID).Msg("order accepted")
	_ = s.notify.Notify(o.BuyerID, alerts.KindOrderAccepted, orderMeta(o))
	return o, nil
}

// Deliver moves ACCEPTED -> DELIVERED. Seller only.
func (s *Service) Deliver(ctx context.Context, orderID, sellerID string) (*domain.Order, error) {
	if _, err := s.ownedOrder(ctx, orderID, sellerID, true); err != nil {
		return nil, err
	}
	o, err := s.transition(ctx, orderID, func(_ store.Store, o *domain.Order) error {
		if o.Status != domain.OrderAccepted {
			return &domain.TransitionError{From: o.Status, To: domain.OrderDelivered}
		}
		now := time.Now().UTC()
		o.Status = domain.OrderDelivered
		o.DeliveredAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("order_id", o.ID).Msg("order delivered")
	_ = s.notify.Notify(o.BuyerID, alerts.KindOrderDelivered, orderMeta(o))
	return o, nil
}

// Confirm moves DELIVERED -> CONFIRMED and releases the escrow to the
// seller. Buyer only; the auto-release sweep reaches the same
// transition through confirmDelivered.
func (s *Service) Confirm(ctx context.Context, orderID, buyerID string) (*domain.Order, error) {
	if _, err := s.ownedOrder(ctx, orderID, buyerID, false); err != nil {
		return nil, err
	}
	return s.confirmDelivered(ctx, orderID)
}

func (s *Service) confirmDelivered(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.transition(ctx, orderID, func(tx store.Store, o *domain.Order) error {
		if o.Status != domain.OrderDelivered {
			return &domain.TransitionError{From: o.Status, To: domain.OrderConfirmed}
		}
		rec, err := tx.EscrowByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if rec.Status != domain.EscrowHeld {
			return &domain.TransitionError{From: o.Status, To: domain.OrderConfirmed}
		}
		now := time.Now().UTC()
		o.Status = domain.OrderConfirmed
		o.ConfirmedAt = &now
		_, err = s.escrow.ReleaseIn(ctx, tx, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("order_id", o.ID).Msg("order confirmed, escrow released")
	_ = s.notify.Notify(o.SellerID, alerts.KindOrderConfirmed, orderMeta(o))
	_ = s.notify.Notify(o.SellerID, alerts.KindEscrowReleased, orderMeta(o))
	return o, nil
}

// Cancel moves any pre-CONFIRMED status to CANCELLED and refunds the
// buyer, subject to the cancel policy for the acting party.
func (s *Service) Cancel(ctx context.Context, orderID, actorID, reason string) (*domain.Order, error) {
	cur, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var actor domain.CancelActor
	switch actorID {
	case cur.BuyerID:
		actor = domain.CancelledByBuyer
	case cur.SellerID:
		actor = domain.CancelledBySeller
	default:
		return nil, domain.ErrPermissionDenied
	}

	o, err := s.transition(ctx, orderID, func(tx store.Store, o *domain.Order) error {
		if o.Status.Terminal() || !s.policy.allows(actor, o.Status) {
			return &domain.TransitionError{From: o.Status, To: domain.OrderCancelled}
		}
		rec, err := tx.EscrowByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if rec.Status != domain.EscrowHeld {
			return &domain.TransitionError{From: o.Status, To: domain.OrderCancelled}
		}
		now := time.Now().UTC()
		o.Status = domain.OrderCancelled
		o.CancelledBy = actor
		o.CancellationReason = reason
		o.CancelledAt = &now
		_, err = s.escrow.RefundIn(ctx, tx, rec.ID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", o.ID).
		Str("cancelled_by", string(actor)).
		Msg("order cancelled, escrow refunded")
	_ = s.notify.Notify(o.BuyerID, alerts.KindOrderCancelled, orderMeta(o))
	_ = s.notify.Notify(o.SellerID, alerts.KindOrderCancelled, orderMeta(o))
	_ = s.notify.Notify(o.BuyerID, alerts.KindEscrowRefunded, orderMeta(o))
	return o, nil
}

// Get returns one order if the caller is a party to it.
func (s *Service) Get(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	o, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != userID && o.SellerID != userID {
		return nil, domain.ErrPermissionDenied
	}
	return o, nil
}

// List returns the caller's orders, buyer view by default.
func (s *Service) List(ctx context.Context, userID string, asSeller bool, status domain.OrderStatus) ([]domain.Order, error) {
	return s.store.OrdersByUser(ctx, userID, asSeller, status)
}

func (s *Service) ownedOrder(ctx context.Context, orderID, userID string, asSeller bool) (*domain.Order, error) {
	o, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	owner := o.BuyerID
	if asSeller {
		owner = o.SellerID
	}
	if owner != userID {
		return nil, domain.ErrPermissionDenied
	}
	return o, nil
}

// Sweep force-confirms orders stuck in DELIVERED longer than the grace
// window, using the same transition buyers trigger. One failing order
// is logged and skipped; the sweep keeps going.
func (s *Service) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-grace)
	stale, err := s.store.DeliveredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range stale {
		o := stale[i]
		rec, err := s.store.EscrowByOrder(ctx, o.ID)
		if err != nil || rec.Status != domain.EscrowHeld {
			continue
		}
		if _, err := s.confirmDelivered(ctx, o.ID); err != nil {
			// Orders confirmed between the select and here land in
			// TransitionError; anything else is a real failure.
			if !errors.Is(err, domain.ErrInvalidTransition) {
				s.log.Error().Err(err).Str("order_id", o.ID).Msg("auto-release failed")
			}
			continue
		}
		released++
		s.log.Info().Str("order_id", o.ID).Msg("auto-released after grace window")
	}
	return released, nil
}

func orderMeta(o *domain.Order) map[string]string {
	return map[string]string{
		"order_id": o.ID,
		"product":  o.ProductName,
		"amount":   formatAmount(o.TotalAmount),
		"status":   string(o.Status),
	}
}
