// internal/handler/webhook_handler.go
package handler

import (
	"errors"
	"io"
	"net/http"

	"neurostore-be/internal/payment"
	"neurostore-be/internal/usecase"

	"github.com/labstack/echo/v4"
)

// webhookボディの上限。Stripeのイベントは通常数KB
const maxWebhookBodyBytes = 1 << 16

type WebhookHandler struct {
	gateway   payment.Gateway
	reconcile *usecase.ReconcileUsecase
}

func NewWebhookHandler(gateway payment.Gateway, reconcile *usecase.ReconcileUsecase) *WebhookHandler {
	return &WebhookHandler{gateway: gateway, reconcile: reconcile}
}

// 認証ミドルウェアは通さない。本人確認は署名検証が担う。
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.handleStripe)
}

func (h *WebhookHandler) handleStripe(c echo.Context) error {
	//署名はrawボディに対して計算されるのでBindは使えない
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeValidation})
	}

	ev, err := h.gateway.VerifyWebhook(body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrSignatureInvalid) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature", Code: usecase.CodeSignatureInvalid})
		}
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload", Code: usecase.CodeValidation})
	}

	//エラーを返すとプロバイダが再送してくる。再送で直る失敗だけ500にする
	if err := h.reconcile.HandleProviderEvent(c.Request().Context(), ev); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "processing failed", Code: usecase.CodeInternal})
	}

	return c.JSON(http.StatusOK, map[string]string{"received": "true"})
}
