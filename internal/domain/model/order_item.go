package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。単価は注文作成時点のスナップショット。
// 確定後にカタログ価格が変わっても明細は変えない。
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64           `gorm:"not null;index" json:"order_id"`
	ProductID           int64           `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string          `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPriceSnapshot   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_snapshot"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 明細小計。
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPriceSnapshot.Mul(decimal.NewFromInt(i.Quantity))
}
