// internal/usecase/admin_order_usecase.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"neurostore-be/internal/domain/model"
	"neurostore-be/internal/events"
	"neurostore-be/internal/logger"
	repo "neurostore-be/internal/repository"

	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	auditRepo repo.AuditLogRepository
	publisher events.Publisher
	clock     Clock
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	auditRepo repo.AuditLogRepository,
	publisher events.Publisher,
	clock Clock,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, auditRepo: auditRepo, publisher: publisher, clock: clock}
}

type AdminUpdateOrderStatusInput struct {
	Status string
	Reason string // CANCELLEDのときだけ使う
}

type AdminUpdateTrackingInput struct {
	TrackingNumber string
	TrackingLink   string
}

// 注文一覧（TEMPは未成立なので出さない）
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, int64, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return []OrderOutput{}, 0, NewValidationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, 0, NewValidationError("invalid limit")
	}
	if f.Status != "" {
		switch model.OrderStatus(f.Status) {
		case model.OrderStatusPaid, model.OrderStatusProcessing,
			model.OrderStatusShipped, model.OrderStatusDelivered, model.OrderStatusCancelled:
			// OK
		default:
			return []OrderOutput{}, 0, NewValidationError("invalid status")
		}
	}

	var outs []OrderOutput
	var total int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, count, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewInternalError("db error")
		}
		total = count

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewInternalError("db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return []OrderOutput{}, 0, err
	}
	return outs, total, nil
}

func (u *AdminOrderUsecase) Get(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewValidationError("invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("order not found")
			}
			return NewInternalError("db error")
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewInternalError("db error")
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// ステータス更新。遷移ガードに反する変更は拒否。
// CANCELLEDへ落とすときは在庫を戻して監査ログにも残す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) error {
	if actorAdminUserID <= 0 {
		return NewUnauthorizedError()
	}
	if orderID <= 0 {
		return NewValidationError("invalid id")
	}

	newStatus := model.OrderStatus(strings.TrimSpace(in.Status))
	switch newStatus {
	case model.OrderStatusProcessing, model.OrderStatusShipped,
		model.OrderStatusDelivered, model.OrderStatusCancelled:
		// OK
	default:
		return NewValidationError("invalid status")
	}

	var cancelled *events.OrderCancelled

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("order not found")
			}
			return NewInternalError("db error")
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			return nil
		}
		if !o.Status.CanTransitionTo(newStatus) {
			return NewInvalidStateError("invalid status transition")
		}

		beforeStatus := string(o.Status)

		if newStatus == model.OrderStatusCancelled {
			// PROCESSINGのキャンセルは在庫戻しが要る（PAID以降は減算済み）
			if o.Status.IsPaidOrLater() {
				items, err := r.OrderItems().ListByOrderID(ctx, orderID)
				if err != nil {
					return NewInternalError("db error")
				}
				for _, it := range items {
					if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
						return NewInternalError("db error")
					}
				}
			}
			reason := strings.TrimSpace(in.Reason)
			if reason == "" {
				reason = "cancelled by admin"
			}
			if err := r.Orders().Cancel(ctx, orderID, reason); err != nil {
				return NewInternalError("db error")
			}
			cancelled = &events.OrderCancelled{
				OrderID:     orderID,
				UserID:      o.UserID,
				Reason:      reason,
				CancelledAt: u.clock.Now(),
			}
		} else {
			if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
				return NewInternalError("db error")
			}
		}

		//監査ログ（UPDATE_ORDER_STATUS）
		action := model.AuditActionUpdateOrderStatus
		if newStatus == model.OrderStatusCancelled {
			action = model.AuditActionCancelOrder
		}
		beforeJSON := `{"status":"` + beforeStatus + `"}`
		afterJSON := `{"status":"` + string(newStatus) + `"}`
		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       action,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return NewInternalError("db error")
		}

		return nil
	})
	if err != nil {
		return err
	}

	if cancelled != nil {
		if err := u.publisher.PublishOrderCancelled(ctx, *cancelled); err != nil {
			logger.L().Warn("order cancelled event publish failed",
				zap.Int64("orderID", orderID), zap.Error(err))
		}
	}

	return nil
}

// 追跡情報の登録。登録と同時にSHIPPEDへ進める。
func (u *AdminOrderUsecase) UpdateTracking(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateTrackingInput) error {
	if actorAdminUserID <= 0 {
		return NewUnauthorizedError()
	}
	if orderID <= 0 {
		return NewValidationError("invalid id")
	}
	number := strings.TrimSpace(in.TrackingNumber)
	if number == "" || len(number) > 255 {
		return NewValidationError("invalid tracking number")
	}
	link := strings.TrimSpace(in.TrackingLink)
	if len(link) > 512 {
		return NewValidationError("invalid tracking link")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("order not found")
			}
			return NewInternalError("db error")
		}

		if !o.Status.CanTransitionTo(model.OrderStatusShipped) {
			return NewInvalidStateError("order cannot be shipped")
		}

		if err := r.Orders().UpdateTracking(ctx, orderID, number, link); err != nil {
			return NewInternalError("db error")
		}
		if err := r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusShipped); err != nil {
			return NewInternalError("db error")
		}

		//監査ログ（UPDATE_TRACKING）
		beforeJSON := `{"status":"` + string(o.Status) + `","tracking_number":"` + o.TrackingNumber + `"}`
		afterJSON := `{"status":"SHIPPED","tracking_number":"` + number + `"}`
		if err := u.auditRepo.Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateTracking,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return NewInternalError("db error")
		}

		return nil
	})
}

type AuditLogOutput struct {
	ID           int64     `json:"id"`
	ActorUserID  int64     `json:"actor_user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   int64     `json:"resource_id"`
	BeforeJSON   string    `json:"before_json"`
	AfterJSON    string    `json:"after_json"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, f repo.AuditLogFilter) ([]AuditLogOutput, error) {
	if f.Limit < 1 || f.Limit > 100 {
		return nil, NewValidationError("invalid limit")
	}
	if f.Offset < 0 {
		return nil, NewValidationError("invalid offset")
	}

	logs, err := u.auditRepo.List(ctx, f)
	if err != nil {
		return nil, NewInternalError("db error")
	}

	out := make([]AuditLogOutput, 0, len(logs))
	for _, l := range logs {
		out = append(out, AuditLogOutput{
			ID:           l.ID,
			ActorUserID:  l.ActorUserID,
			Action:       string(l.Action),
			ResourceType: string(l.ResourceType),
			ResourceID:   l.ResourceID,
			BeforeJSON:   l.BeforeJSON,
			AfterJSON:    l.AfterJSON,
			CreatedAt:    l.CreatedAt,
		})
	}
	return out, nil
}

// 期間パラメータでtime.Timeが必要なら、handlerでtime.Parseしてここに入れる
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
