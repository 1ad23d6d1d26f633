package gateway

import "context"

// Metadata travels with every charge and transfer so webhooks and
// manual verification can tie a gateway event back to a wallet.
type Metadata struct {
	UserID       string `json:"user_id"`
	WalletID     string `json:"wallet_id"`
	WithdrawalID string `json:"withdrawal_id,omitempty"`
	Purpose      string `json:"purpose"`
}

type InitializeRequest struct {
	Email       string
	Amount      int64 // naira; converted to kobo on the wire
	Reference   string
	CallbackURL string
	Metadata    Metadata
}

type Authorization struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type VerifyResult struct {
	Reference string
	Status    string // "success", "failed", "abandoned"
	Amount    int64  // naira
	Metadata  Metadata
}

type TransferRequest struct {
	Amount        int64 // naira
	RecipientCode string
	Reference     string
	Reason        string
	Metadata      Metadata
}

type TransferResult struct {
	TransferCode string
	Status       string
}

type ResolvedAccount struct {
	AccountNumber string
	AccountName   string
}

// Client is the boundary to the external payment provider. Calls use a
// bounded timeout; a timeout or 5xx surfaces as ErrGatewayUnavailable
// and must leave no local mutation behind.
type Client interface {
	Initialize(ctx context.Context, req InitializeRequest) (*Authorization, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error)
	CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error)
}
