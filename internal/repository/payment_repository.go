package repository

import (
	"context"

	"neurostore-be/internal/domain/model"
)

type PaymentRepository interface {
	// 1注文1件。重複はuniqueIndexが弾く。
	Create(ctx context.Context, p model.Payment) error
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)
}
