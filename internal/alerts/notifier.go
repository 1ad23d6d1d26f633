package alerts

// Notification template kinds. Rendering and delivery happen outside
// the settlement core; callers only name the event.
const (
	KindOrderCreated        = "order_created"
	KindOrderAccepted       = "order_accepted"
	KindOrderDelivered      = "order_delivered"
	KindOrderConfirmed      = "order_confirmed"
	KindOrderCancelled      = "order_cancelled"
	KindWalletFunded        = "wallet_funded"
	KindEscrowReleased      = "escrow_released"
	KindEscrowRefunded      = "escrow_refunded"
	KindWithdrawalInitiated = "withdrawal_initiated"
	KindWithdrawalCompleted = "withdrawal_completed"
	KindWithdrawalFailed    = "withdrawal_failed"
)

// Notifier delivers user-facing notifications. Fire and forget: a
// delivery failure must never roll back the financial mutation that
// triggered it, so callers ignore the returned error and
// implementations log it.
type Notifier interface {
	Notify(recipient, kind string, meta map[string]string) error
}

// Nop discards notifications. Used by tests.
type Nop struct{}

func (Nop) Notify(string, string, map[string]string) error { return nil }
