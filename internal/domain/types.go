package domain

import "time"

// EntryType is the closed set of ledger entry kinds. Direction is derived
// from the type, never stored separately.
type EntryType string

const (
	EntryCredit        EntryType = "CREDIT"
	EntryDebit         EntryType = "DEBIT"
	EntryEscrowHold    EntryType = "ESCROW_HOLD"
	EntryEscrowRelease EntryType = "ESCROW_RELEASE"
	EntryEscrowRefund  EntryType = "ESCROW_REFUND"
)

// Direction returns +1 for entries that increase the wallet balance and
// -1 for entries that decrease it.
func (t EntryType) Direction() int64 {
	switch t {
	case EntryCredit, EntryEscrowRelease, EntryEscrowRefund:
		return 1
	case EntryDebit, EntryEscrowHold:
		return -1
	}
	return 0
}

func (t EntryType) Valid() bool {
	return t.Direction() != 0
}

// Wallet holds the authoritative balance for one user. Amounts are whole
// naira stored as int64; the gateway boundary converts to kobo.
type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Currency  string    `json:"currency"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is one immutable balance-affecting event. The ledger is an
// audit trail only; Wallet.Balance is the live source of truth.
type LedgerEntry struct {
	ID            string    `json:"id"`
	WalletID      string    `json:"wallet_id"`
	Type          EntryType `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Reference     string    `json:"reference"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// Resolved reports whether the escrow has reached a terminal state.
func (s EscrowStatus) Resolved() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

// EscrowRecord tracks funds debited from the buyer and held pending
// delivery confirmation. Exactly one record exists per order.
type EscrowRecord struct {
	ID               string       `json:"id"`
	OrderID          string       `json:"order_id"`
	BuyerWalletID    string       `json:"buyer_wallet_id"`
	SellerWalletID   string       `json:"seller_wallet_id"`
	Amount           int64        `json:"amount"`
	Status           EscrowStatus `json:"status"`
	HoldReference    string       `json:"hold_reference"`
	ResolveReference string       `json:"resolve_reference,omitempty"`
	RefundReason     string       `json:"refund_reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderAccepted  OrderStatus = "ACCEPTED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderConfirmed || s == OrderCancelled
}

type CancelActor string

const (
	CancelledByBuyer  CancelActor = "BUYER"
	CancelledBySeller CancelActor = "SELLER"
)

// Order is the buyer/seller agreement driving the escrow state machine.
type Order struct {
	ID                 string      `json:"id"`
	BuyerID            string      `json:"buyer_id"`
	SellerID           string      `json:"seller_id"`
	ProductRef         string      `json:"product_ref"`
	ProductName        string      `json:"product_name"`
	TotalAmount        int64       `json:"total_amount"`
	DeliveryAddress    string      `json:"delivery_address"`
	Status             OrderStatus `json:"status"`
	CancelledBy        CancelActor `json:"cancelled_by,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	AcceptedAt         *time.Time  `json:"accepted_at,omitempty"`
	DeliveredAt        *time.Time  `json:"delivered_at,omitempty"`
	ConfirmedAt        *time.Time  `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty"`
}

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// Withdrawal tracks one transfer of wallet funds to a bank account.
type Withdrawal struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	WalletID         string           `json:"wallet_id"`
	BankAccountID    string           `json:"bank_account_id"`
	Amount           int64            `json:"amount"`
	Fee              int64            `json:"fee"`
	NetAmount        int64            `json:"net_amount"`
	Reference        string           `json:"reference"`
	GatewayReference string           `json:"gateway_reference,omitempty"`
	Status           WithdrawalStatus `json:"status"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// BankAccount is a verified destination for withdrawals.
type BankAccount struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	BankName      string    `json:"bank_name"`
	BankCode      string    `json:"bank_code"`
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	RecipientCode string    `json:"recipient_code,omitempty"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Product is the minimal catalog snapshot an order needs. Catalog
// management lives outside this service.
type Product struct {
	Ref      string `json:"ref"`
	Name     string `json:"name"`
	SellerID string `json:"seller_id"`
	Price    int64  `json:"price"`
}
