// internal/worker/expiry_sweeper.go
package worker

import (
	"context"
	"time"

	"neurostore-be/internal/logger"
	repo "neurostore-be/internal/repository"

	"go.uber.org/zap"
)

const expiredReason = "expired"

type Clock interface {
	Now() time.Time
}

// 期限切れTEMP注文の掃除係。
// WHERE status='TEMP' の一括UPDATEなので、確定処理と同時に走っても
// 先にPAIDになった注文には触れない。
type ExpirySweeper struct {
	orders   repo.OrderRepository
	clock    Clock
	interval time.Duration
}

func NewExpirySweeper(orders repo.OrderRepository, clock Clock, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{orders: orders, clock: clock, interval: interval}
}

// ctxが終わるまでinterval間隔で掃除を回す。起動直後にも1回流す。
func (s *ExpirySweeper) Run(ctx context.Context) {
	logger.L().Info("expiry sweeper started", zap.Duration("interval", s.interval))

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L().Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// 1回分の掃除。エラーはログだけ残して次周期に任せる。
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int64, error) {
	return s.orders.CancelExpired(ctx, s.clock.Now(), expiredReason)
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	n, err := s.SweepOnce(ctx)
	if err != nil {
		logger.L().Error("expired order sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.L().Info("expired orders cancelled", zap.Int64("count", n))
	}
}
