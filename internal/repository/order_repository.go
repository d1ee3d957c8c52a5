package repository

import (
	"context"
	"time"

	"neurostore-be/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 管理者用の注文一覧の絞り込み。TEMPは常に除外する。
type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order model.Order) (int64, error)
	FindByID(ctx context.Context, orderID int64) (model.Order, error)

	// 行ロック付き取得。確定処理（confirm）はこちらを使う。
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)

	FindByStripeSessionID(ctx context.Context, sessionID string) (model.Order, error)

	// ユーザーの未決済TEMP件数（上限3のチェック用）
	CountActiveTemp(ctx context.Context, userID int64) (int64, error)

	// TEMPを除いた注文履歴。新しい順。
	ListHistoryByUserID(ctx context.Context, userID int64) ([]model.Order, error)
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	AttachStripeSession(ctx context.Context, orderID int64, sessionID string) error
	MarkPaid(ctx context.Context, orderID int64, paymentIntentID string, paidAmount decimal.Decimal, paidAt time.Time) error
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	Cancel(ctx context.Context, orderID int64, reason string) error
	UpdateTracking(ctx context.Context, orderID int64, trackingNumber string, trackingLink string) error

	// 期限切れTEMPを一括キャンセル。WHERE status='TEMP' が
	// confirm側との競合を片側勝ちにする。更新件数を返す。
	CancelExpired(ctx context.Context, now time.Time, reason string) (int64, error)
}
