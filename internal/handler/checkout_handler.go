// internal/handler/checkout_handler.go
package handler

import (
	"net/http"

	"neurostore-be/internal/config"
	"neurostore-be/internal/middleware"
	"neurostore-be/internal/usecase"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutSessionRequest struct {
	OrderID int64 `json:"order_id"`
}

// 決済経路は外部APIを叩くのでレート制限をきつめにする
func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, revocation middleware.RevocationStore) {
	g := e.Group("/checkout")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenRevocationGuard(revocation))
	g.Use(middleware.RateLimitStrict())

	g.POST("/session", h.createSession)
	g.GET("/verify-payment/:sessionId", h.verifyPayment)
}

func (h *CheckoutHandler) createSession(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	var req CheckoutSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeValidation})
	}

	out, err := h.uc.CreateCheckoutSession(c.Request().Context(), userID, req.OrderID, getUserEmailFromContext(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// 決済完了画面からの照合。paidでなければpaid=falseで200を返す
func (h *CheckoutHandler) verifyPayment(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	out, err := h.uc.VerifyPayment(c.Request().Context(), userID, c.Param("sessionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
