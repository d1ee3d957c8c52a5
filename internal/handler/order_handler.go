// internal/handler/order_handler.go
package handler

import (
	"net/http"
	"strconv"

	"neurostore-be/internal/config"
	"neurostore-be/internal/middleware"
	"neurostore-be/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	uc    *usecase.OrderUsecase
	carts *usecase.CartUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase, carts *usecase.CartUsecase) *OrderHandler {
	return &OrderHandler{uc: uc, carts: carts}
}

type OrderCreateRequest struct {
	AddressID int64                    `json:"address_id"`
	Source    string                   `json:"source"`
	Lines     []usecase.OrderLineInput `json:"lines"`
	Total     decimal.Decimal          `json:"total"`
}

type OrderCancelRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, revocation middleware.RevocationStore) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenRevocationGuard(revocation))
	g.Use(middleware.RateLimitGeneral())

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.GET("/by-session/:sessionId", h.bySession)
	g.POST("/:id/cancel", h.cancel)
}

func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeValidation})
	}

	//source=CARTで明細省略時はアクティブカートの内容をそのまま使う
	if req.Source == "CART" && len(req.Lines) == 0 {
		lines, total, err := h.carts.ActiveCartLines(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, err)
		}
		req.Lines = lines
		req.Total = total
	}

	out, err := h.uc.CreateTempOrder(c.Request().Context(), userID, usecase.CreateTempOrderInput{
		AddressID: req.AddressID,
		Source:    req.Source,
		Lines:     req.Lines,
		Total:     req.Total,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	out, err := h.uc.ListHistory(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeValidation})
	}

	out, err := h.uc.GetOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 決済リダイレクト後、フロントがsession_idしか持っていないときに使う
func (h *OrderHandler) bySession(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	out, err := h.uc.GetOrderBySessionID(c.Request().Context(), userID, c.Param("sessionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) cancel(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeValidation})
	}

	var req OrderCancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeValidation})
	}

	out, err := h.uc.CancelOrder(c.Request().Context(), userID, id, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get(middleware.CtxUserIDKey)
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}
	return id, id > 0
}

func getUserEmailFromContext(c echo.Context) string {
	v := c.Get(middleware.CtxUserEmailKey)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
