package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// 決済記録。確定した注文と1対1。
// Reconcile側だけが作成し、以後変更しない。
type Payment struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID               int64           `gorm:"not null;uniqueIndex" json:"order_id"`
	StripePaymentIntentID string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"stripe_payment_intent_id"`
	Amount                decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency              string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status                PaymentStatus   `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt             time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
