package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/covu-ng/covu-core/internal/domain"
)

const defaultBaseURL = "https://api.paystack.co"

// Paystack implements Client against the Paystack REST API. Amounts
// cross the wire in kobo; callers deal in whole naira.
type Paystack struct {
	secretKey string
	baseURL   string
	http      *http.Client
}

func NewPaystack(secretKey, baseURL string) *Paystack {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Paystack{
		secretKey: secretKey,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	if resp.StatusCode >= 400 || !env.Status {
		return fmt.Errorf("gateway: %s (status %d)", env.Message, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("gateway: decode data: %w", err)
		}
	}
	return nil
}

func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*Authorization, error) {
	payload := map[string]any{
		"email":     req.Email,
		"amount":    req.Amount * 100,
		"reference": req.Reference,
		"metadata":  req.Metadata,
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := p.call(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}
	return &Authorization{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var data struct {
		Reference string   `json:"reference"`
		Status    string   `json:"status"`
		Amount    int64    `json:"amount"`
		Metadata  Metadata `json:"metadata"`
	}
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := p.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &VerifyResult{
		Reference: data.Reference,
		Status:    data.Status,
		Amount:    data.Amount / 100,
		Metadata:  data.Metadata,
	}, nil
}

func (p *Paystack) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	payload := map[string]any{
		"source":    "balance",
		"amount":    req.Amount * 100,
		"recipient": req.RecipientCode,
		"reference": req.Reference,
		"reason":    req.Reason,
		"metadata":  req.Metadata,
	}
	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := p.call(ctx, http.MethodPost, "/transfer", payload, &data); err != nil {
		return nil, err
	}
	return &TransferResult{TransferCode: data.TransferCode, Status: data.Status}, nil
}

func (p *Paystack) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	var data struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
	}
	path := "/bank/resolve?account_number=" + url.QueryEscape(accountNumber) +
		"&bank_code=" + url.QueryEscape(bankCode)
	if err := p.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &ResolvedAccount{AccountNumber: data.AccountNumber, AccountName: data.AccountName}, nil
}

func (p *Paystack) CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error) {
	payload := map[string]any{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "NGN",
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := p.call(ctx, http.MethodPost, "/transferrecipient", payload, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

// ValidSignature checks the x-paystack-signature header against the raw
// webhook body using HMAC-SHA512 keyed with the secret key.
func ValidSignature(secretKey string, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
