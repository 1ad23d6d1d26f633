package domain

import (
	"errors"
	"testing"
)

func TestEntryTypeDirection(t *testing.T) {
	credits := []EntryType{EntryCredit, EntryEscrowRelease, EntryEscrowRefund}
	for _, typ := range credits {
		if typ.Direction() != 1 {
			t.Errorf("%s direction = %d, want +1", typ, typ.Direction())
		}
	}
	debits := []EntryType{EntryDebit, EntryEscrowHold}
	for _, typ := range debits {
		if typ.Direction() != -1 {
			t.Errorf("%s direction = %d, want -1", typ, typ.Direction())
		}
	}
	if EntryType("BOGUS").Valid() {
		t.Error("unknown entry type reported valid")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderPending, OrderAccepted, OrderDelivered} {
		if s.Terminal() {
			t.Errorf("%s reported terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderConfirmed, OrderCancelled} {
		if !s.Terminal() {
			t.Errorf("%s not reported terminal", s)
		}
	}
}

func TestErrorMatching(t *testing.T) {
	t.Run("insufficient funds", func(t *testing.T) {
		var err error = &InsufficientFundsError{Need: 500, Have: 100}
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Error("InsufficientFundsError does not match sentinel")
		}
		var target *InsufficientFundsError
		if !errors.As(err, &target) || target.Need != 500 {
			t.Error("errors.As failed to extract details")
		}
	})
	t.Run("transition", func(t *testing.T) {
		var err error = &TransitionError{From: OrderPending, To: OrderConfirmed}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Error("TransitionError does not match sentinel")
		}
	})
}
