package repository

import (
	"context"

	"neurostore-be/internal/domain/model"
)

// 明細の取得はListByOrderIDに一本化する。
// confirmも履歴表示も同じ取得経路を通る。
type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}
