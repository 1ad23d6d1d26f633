package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/covu-ng/covu-core/internal/domain"
)

func TestInitialize(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         "WALLET_FUND_u1_x",
			},
		})
	}))
	defer srv.Close()

	p := NewPaystack("sk_test", srv.URL)
	auth, err := p.Initialize(context.Background(), InitializeRequest{
		Email:     "ada@test.ng",
		Amount:    5000,
		Reference: "WALLET_FUND_u1_x",
		Metadata:  Metadata{UserID: "u1", Purpose: "wallet_funding"},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if gotPath != "/transaction/initialize" {
		t.Errorf("path = %s", gotPath)
	}
	if amt, _ := gotBody["amount"].(float64); amt != 500000 {
		t.Errorf("wire amount = %v, want 500000 kobo", gotBody["amount"])
	}
	if auth.AuthorizationURL == "" || auth.Reference != "WALLET_FUND_u1_x" {
		t.Errorf("auth = %+v", auth)
	}
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/REF_1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"reference": "REF_1",
				"status":    "success",
				"amount":    500000,
				"metadata":  map[string]any{"user_id": "u1", "wallet_id": "w1", "purpose": "wallet_funding"},
			},
		})
	}))
	defer srv.Close()

	p := NewPaystack("sk_test", srv.URL)
	res, err := p.Verify(context.Background(), "REF_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Amount != 5000 {
		t.Errorf("amount = %d naira, want 5000", res.Amount)
	}
	if res.Metadata.UserID != "u1" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestGatewayErrors(t *testing.T) {
	t.Run("5xx maps to unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		p := NewPaystack("sk_test", srv.URL)
		if _, err := p.Verify(context.Background(), "REF"); !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Errorf("err = %v, want ErrGatewayUnavailable", err)
		}
	})

	t.Run("api rejection surfaces message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "Invalid key"})
		}))
		defer srv.Close()

		p := NewPaystack("sk_test", srv.URL)
		_, err := p.Verify(context.Background(), "REF")
		if err == nil || errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Errorf("err = %v, want api error", err)
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		p := NewPaystack("sk_test", "http://127.0.0.1:1")
		if _, err := p.Verify(context.Background(), "REF"); !errors.Is(err, domain.ErrGatewayUnavailable) {
			t.Errorf("err = %v, want ErrGatewayUnavailable", err)
		}
	})
}

func TestTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if amt, _ := body["amount"].(float64); amt != 200000 {
			t.Errorf("wire amount = %v, want 200000 kobo", body["amount"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]any{"transfer_code": "TRF_1", "status": "pending"},
		})
	}))
	defer srv.Close()

	p := NewPaystack("sk_test", srv.URL)
	res, err := p.Transfer(context.Background(), TransferRequest{
		Amount:        2000,
		RecipientCode: "RCP_1",
		Reference:     "WITHDRAWAL_u1_x",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.TransferCode != "TRF_1" {
		t.Errorf("transfer code = %s", res.TransferCode)
	}
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	mac := hmac.New(sha512.New, []byte("sk_test"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	t.Run("valid", func(t *testing.T) {
		if !ValidSignature("sk_test", body, sig) {
			t.Error("valid signature rejected")
		}
	})
	t.Run("wrong key", func(t *testing.T) {
		if ValidSignature("sk_other", body, sig) {
			t.Error("signature for wrong key accepted")
		}
	})
	t.Run("tampered body", func(t *testing.T) {
		if ValidSignature("sk_test", []byte(`{"event":"charge.failed"}`), sig) {
			t.Error("tampered body accepted")
		}
	})
	t.Run("empty signature", func(t *testing.T) {
		if ValidSignature("sk_test", body, "") {
			t.Error("empty signature accepted")
		}
	})
}
