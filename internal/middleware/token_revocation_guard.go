// internal/middleware/token_revocation_guard.go
package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"neurostore-be/internal/logger"
)

// 失効済みトークンの照会先。Redis実装はinfra/redisstoreにある。
type RevocationStore interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTのjtiが失効リストに載っていないか確認。
// ストア障害時はfail closed（401）。正規ユーザーは再ログインで復旧できる。
func TokenRevocationGuard(store RevocationStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//AuthJWTが入れたjtiを取得する
			rawJTI := c.Get(CtxTokenJTIKey)
			jti, ok := rawJTI.(string)
			if !ok || jti == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			revoked, err := store.IsRevoked(c.Request().Context(), jti)
			if err != nil {
				logger.L().Warn("revocation store lookup failed", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if revoked {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			return next(c)
		}
	}
}
