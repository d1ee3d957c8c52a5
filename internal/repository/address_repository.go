package repository

import (
	"context"

	"neurostore-be/internal/domain/model"
)

// 住所の参照だけ。編集は別サービスの担当。
type AddressRepository interface {
	FindByID(ctx context.Context, addressID int64) (model.Address, error)
	IsOwnedByUser(ctx context.Context, addressID, userID int64) (bool, error)
}
