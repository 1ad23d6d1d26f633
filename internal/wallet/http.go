package wallet

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/gateway"
	"github.com/covu-ng/covu-core/internal/store"
)

// Handler exposes wallet funding, withdrawals, and bank accounts over
// HTTP. The webhook route is public but signature-gated; everything
// else expects the JWT middleware.
type Handler struct {
	svc           *Service
	webhookSecret string
	log           zerolog.Logger
}

func NewHandler(svc *Service, webhookSecret string, log zerolog.Logger) *Handler {
	return &Handler{
		svc:           svc,
		webhookSecret: webhookSecret,
		log:           log.With().Str("component", "wallet_http").Logger(),
	}
}

// Register wires the authenticated wallet routes.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/fund", h.InitiateFunding)
	g.GET("/balance", h.Balance)
	g.GET("/transactions", h.Transactions)
	g.GET("/stats", h.Stats)
	g.POST("/withdraw", h.Withdraw)
	g.GET("/withdrawals", h.Withdrawals)
	g.POST("/bank-accounts", h.AddBankAccount)
	g.GET("/bank-accounts", h.ListBankAccounts)
	g.POST("/bank-accounts/:id/reverify", h.ReverifyBankAccount)
	g.DELETE("/bank-accounts/:id", h.RemoveBankAccount)
}

// RegisterPublic wires the routes that work without a session: the
// signature-gated gateway callback, and manual verification, which the
// checkout redirect hits after the token may have expired. verifyAuth
// should attach the caller identity when a token is present without
// demanding one.
func (h *Handler) RegisterPublic(e *echo.Echo, verifyAuth echo.MiddlewareFunc) {
	e.POST("/webhooks/paystack", h.GatewayWebhook)
	e.GET("/wallet/fund/verify/:reference", h.VerifyPayment, verifyAuth)
}

func (h *Handler) InitiateFunding(c echo.Context) error {
	userID := c.Get("user_id").(string)
	email, _ := c.Get("email").(string)

	var req struct {
		Amount int64  `json:"amount"`
		Email  string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be greater than zero"})
	}
	if req.Email != "" {
		email = req.Email
	}
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	auth, err := h.svc.InitiateFunding(c.Request().Context(), userID, email, req.Amount)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"authorization_url": auth.AuthorizationURL,
		"access_code":       auth.AccessCode,
		"reference":         auth.Reference,
	})
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	// Empty when the session expired; the service then relies on the
	// gateway metadata alone.
	userID, _ := c.Get("user_id").(string)
	entry, err := h.svc.VerifyPayment(c.Request().Context(), userID, c.Param("reference"))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"entry":   entry,
		"message": "payment verified and wallet credited",
	})
}

// webhookEnvelope covers both charge and transfer events; only the
// fields the engine acts on are decoded.
type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Reference string           `json:"reference"`
		Amount    int64            `json:"amount"` // kobo
		Metadata  gateway.Metadata `json:"metadata"`
	} `json:"data"`
}

func (h *Handler) GatewayWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	sig := c.Request().Header.Get("x-paystack-signature")
	if !gateway.ValidSignature(h.webhookSecret, body, sig) {
		h.log.Warn().Msg("webhook with bad signature rejected")
		return c.NoContent(http.StatusUnauthorized)
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	ctx := c.Request().Context()
	switch env.Event {
	case "charge.success":
		err = h.svc.HandleChargeEvent(ctx, ChargeEvent{
			Event:     env.Event,
			Reference: env.Data.Reference,
			Amount:    env.Data.Amount / 100,
			Metadata:  env.Data.Metadata,
		})
	case "transfer.success", "transfer.failed", "transfer.reversed":
		err = h.svc.HandleTransferEvent(ctx, TransferEvent{
			Event:     env.Event,
			Reference: env.Data.Reference,
		})
	default:
		h.log.Debug().Str("event", env.Event).Msg("ignoring webhook event")
	}
	if err != nil {
		h.log.Error().Err(err).Str("event", env.Event).Msg("webhook processing failed")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) Balance(c echo.Context) error {
	userID := c.Get("user_id").(string)
	w, err := h.svc.Balance(c.Request().Context(), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"balance":  w.Balance,
		"currency": w.Currency,
		"active":   w.Active,
	})
}

func (h *Handler) Transactions(c echo.Context) error {
	userID := c.Get("user_id").(string)

	f := store.EntryFilter{Type: domain.EntryType(c.QueryParam("type"))}
	if since := c.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "since must be RFC3339"})
		}
		f.Since = t
	}

	entries, err := h.svc.Transactions(c.Request().Context(), userID, f)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": entries})
}

func (h *Handler) Stats(c echo.Context) error {
	userID := c.Get("user_id").(string)
	st, err := h.svc.WalletStats(c.Request().Context(), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Withdraw(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var req struct {
		Amount        int64  `json:"amount"`
		BankAccountID string `json:"bank_account_id"`
	}
	if err := c.Bind(&req); err != nil || req.Amount <= 0 || req.BankAccountID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount and bank_account_id are required"})
	}
	if req.Amount < MinWithdrawal {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "minimum withdrawal is 2000"})
	}

	wd, err := h.svc.RequestWithdrawal(c.Request().Context(), userID, req.BankAccountID, req.Amount)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, wd)
}

func (h *Handler) Withdrawals(c echo.Context) error {
	userID := c.Get("user_id").(string)
	status := domain.WithdrawalStatus(c.QueryParam("status"))
	list, err := h.svc.Withdrawals(c.Request().Context(), userID, status)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"withdrawals": list})
}

func (h *Handler) AddBankAccount(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var req struct {
		BankCode      string `json:"bank_code"`
		BankName      string `json:"bank_name"`
		AccountNumber string `json:"account_number"`
	}
	if err := c.Bind(&req); err != nil || req.BankCode == "" || req.AccountNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bank_code and account_number are required"})
	}

	acct, err := h.svc.AddBankAccount(c.Request().Context(), userID, req.BankCode, req.BankName, req.AccountNumber)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, acct)
}

func (h *Handler) ListBankAccounts(c echo.Context) error {
	userID := c.Get("user_id").(string)
	list, err := h.svc.BankAccounts(c.Request().Context(), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bank_accounts": list})
}

func (h *Handler) ReverifyBankAccount(c echo.Context) error {
	userID := c.Get("user_id").(string)
	acct, err := h.svc.ReverifyBankAccount(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) RemoveBankAccount(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.svc.RemoveBankAccount(c.Request().Context(), userID, c.Param("id")); err != nil {
		return h.respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) respondErr(c echo.Context, err error) error {
	var insufficient *domain.InsufficientFundsError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.As(err, &insufficient):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "insufficient funds",
			"need":  insufficient.Need,
			"have":  insufficient.Have,
		})
	case errors.Is(err, domain.ErrOwnershipMismatch):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "payment belongs to another user"})
	case errors.Is(err, domain.ErrWalletInactive):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "wallet is inactive"})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
	default:
		h.log.Error().Err(err).Msg("wallet request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
