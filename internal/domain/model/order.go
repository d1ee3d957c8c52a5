package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusTemp       OrderStatus = "TEMP"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

type OrderSource string

const (
	OrderSourceCart   OrderSource = "CART"
	OrderSourceBuyNow OrderSource = "BUY_NOW"
)

// 注文。TEMPで作成し、決済確定でPAIDに進む。
// 行は削除しない（ステータスと時刻で履歴を表す）。
type Order struct {
	ID                    int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                int64               `gorm:"not null;index" json:"user_id"`
	ShippingAddressID     int64               `gorm:"not null" json:"shipping_address_id"`
	Status                OrderStatus         `gorm:"type:varchar(20);not null;index" json:"status"`
	Source                OrderSource         `gorm:"type:varchar(20);not null" json:"source"`
	TotalAmount           decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	PaidAmount            decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"paid_amount"`
	PaidAt                *time.Time          `json:"paid_at"`
	ExpiresAt             *time.Time          `gorm:"index" json:"expires_at"`
	StripeSessionID       *string             `gorm:"type:varchar(255);uniqueIndex" json:"stripe_session_id"`
	StripePaymentIntentID *string             `gorm:"type:varchar(255)" json:"stripe_payment_intent_id"`
	TrackingNumber        string              `gorm:"type:varchar(255)" json:"tracking_number"`
	TrackingLink          string              `gorm:"type:varchar(512)" json:"tracking_link"`
	CancellationReason    string              `gorm:"type:varchar(255)" json:"cancellation_reason"`
	CreatedAt             time.Time           `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// PAID以降（在庫減算済み）かどうか。
func (s OrderStatus) IsPaidOrLater() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// 状態遷移のガード。
// PAIDのキャンセルは返金フローの担当なのでここでは不可。
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusTemp:
		return next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusProcessing
	case OrderStatusProcessing:
		return next == OrderStatusShipped || next == OrderStatusCancelled
	case OrderStatusShipped:
		return next == OrderStatusDelivered || next == OrderStatusCancelled
	default:
		// DELIVERED / CANCELLED は終端
		return false
	}
}
