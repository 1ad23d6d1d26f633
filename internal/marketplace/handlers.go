package marketplace

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/covu-ng/covu-core/internal/domain"
	"github.com/covu-ng/covu-core/internal/order"
)

// Handler exposes the order lifecycle over HTTP. All routes expect the
// JWT middleware to have set user_id on the context.
type Handler struct {
	orders *order.Service
	log    zerolog.Logger
}

func NewHandler(orders *order.Service, log zerolog.Logger) *Handler {
	return &Handler{orders: orders, log: log.With().Str("component", "marketplace_http").Logger()}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/orders", h.CreateOrder)
	g.GET("/orders", h.ListOrders)
	g.GET("/orders/:id", h.GetOrder)
	g.POST("/orders/:id/accept", h.AcceptOrder)
	g.POST("/orders/:id/deliver", h.DeliverOrder)
	g.POST("/orders/:id/confirm", h.ConfirmOrder)
	g.POST("/orders/:id/cancel", h.CancelOrder)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var req struct {
		ProductRef      string `json:"product_ref"`
		DeliveryAddress string `json:"delivery_address"`
	}
	if err := c.Bind(&req); err != nil || req.ProductRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "product_ref is required"})
	}

	o, err := h.orders.Create(c.Request().Context(), userID, req.ProductRef, req.DeliveryAddress)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	userID := c.Get("user_id").(string)
	asSeller := c.QueryParam("role") == "seller"
	status := domain.OrderStatus(c.QueryParam("status"))

	list, err := h.orders.List(c.Request().Context(), userID, asSeller, status)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": list})
}

func (h *Handler) GetOrder(c echo.Context) error {
	userID := c.Get("user_id").(string)
	o, err := h.orders.Get(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) AcceptOrder(c echo.Context) error {
	userID := c.Get("user_id").(string)
	o, err := h.orders.Accept(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) DeliverOrder(c echo.Context) error {
	userID := c.Get("user_id").(string)
	o, err := h.orders.Deliver(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ConfirmOrder(c echo.Context) error {
	userID := c.Get("user_id").(string)
	o, err := h.orders.Confirm(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&req)

	o, err := h.orders.Cancel(c.Request().Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) respondErr(c echo.Context, err error) error {
	var insufficient *domain.InsufficientFundsError
	var transition *domain.TransitionError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	case errors.As(err, &insufficient):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "insufficient funds",
			"need":  insufficient.Need,
			"have":  insufficient.Have,
		})
	case errors.As(err, &transition):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "invalid order state",
			"from":  transition.From,
			"to":    transition.To,
		})
	case errors.Is(err, domain.ErrOwnSellerPurchase):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "you cannot order your own product"})
	case errors.Is(err, domain.ErrPermissionDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a party to this order"})
	case errors.Is(err, domain.ErrWalletInactive):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "wallet is inactive"})
	default:
		h.log.Error().Err(err).Msg("order request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
