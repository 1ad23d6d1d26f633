package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrDuplicateReference = errors.New("duplicate reference")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrOwnershipMismatch  = errors.New("payment reference belongs to another user")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrOwnSellerPurchase  = errors.New("cannot buy from your own store")
	ErrWalletInactive     = errors.New("wallet is frozen")
	ErrPermissionDenied   = errors.New("permission denied")
)

// InsufficientFundsError carries the detail the buyer-facing message
// needs. errors.Is(err, ErrInsufficientFunds) matches it.
type InsufficientFundsError struct {
	Need int64
	Have int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d, have %d", e.Need, e.Have)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// TransitionError records the rejected move through the order state
// machine. errors.Is(err, ErrInvalidTransition) matches it.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
