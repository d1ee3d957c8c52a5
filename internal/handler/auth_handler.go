// internal/handler/auth_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"neurostore-be/internal/config"
	"neurostore-be/internal/logger"
	"neurostore-be/internal/middleware"
	"neurostore-be/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ログアウト時にトークンを失効リストへ入れる。
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// expクレームが無いトークンの失効保持期間
const defaultRevokeTTL = 24 * time.Hour

type AuthHandler struct {
	revoker TokenRevoker
}

func NewAuthHandler(revoker TokenRevoker) *AuthHandler {
	return &AuthHandler{revoker: revoker}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, revocation middleware.RevocationStore) {
	g := e.Group("/auth")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenRevocationGuard(revocation))
	g.Use(middleware.RateLimitGeneral())

	g.POST("/logout", h.logout)
}

// 現在のトークンのjtiを、トークン自体の期限まで失効扱いにする。
func (h *AuthHandler) logout(c echo.Context) error {
	jti, _ := c.Get(middleware.CtxTokenJTIKey).(string)
	if jti == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	ttl := defaultRevokeTTL
	if exp, ok := c.Get(middleware.CtxTokenExpKey).(time.Time); ok && !exp.IsZero() {
		ttl = time.Until(exp)
	}
	if ttl <= 0 {
		//期限切れトークンは放っておいても使えない
		return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
	}

	if err := h.revoker.Revoke(c.Request().Context(), jti, ttl); err != nil {
		logger.L().Error("token revoke failed", zap.String("jti", jti), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "logout failed", Code: usecase.CodeInternal})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}
