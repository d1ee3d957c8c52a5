// internal/events/publisher.go
package events

import (
	"context"
	"time"
)

const (
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
)

// 注文確定後に下流（メール通知、分析など）へ流すイベント。
// 発行はベストエフォート。失敗しても注文処理には影響させない。
type OrderPaid struct {
	OrderID         int64     `json:"orderId"`
	UserID          int64     `json:"userId"`
	PaymentIntentID string    `json:"paymentIntentId"`
	PaidAmount      string    `json:"paidAmount"`
	Currency        string    `json:"currency"`
	PaidAt          time.Time `json:"paidAt"`
}

type OrderCancelled struct {
	OrderID     int64     `json:"orderId"`
	UserID      int64     `json:"userId"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}

type Publisher interface {
	PublishOrderPaid(ctx context.Context, ev OrderPaid) error
	PublishOrderCancelled(ctx context.Context, ev OrderCancelled) error
	Close() error
}
