// internal/usecase/order_usecase.go
package usecase

import (
	"context"
	"errors"
	"time"

	"neurostore-be/internal/domain/model"
	"neurostore-be/internal/events"
	"neurostore-be/internal/logger"
	repo "neurostore-be/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
}

const (
	maxOrderLines       = 50
	maxLineQuantity     = 100
	maxActiveTempOrders = 3
	tempOrderTTL        = 30 * time.Minute
)

type OrderUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	addresses repo.AddressRepository
	products  repo.ProductRepository
	publisher events.Publisher
	clock     Clock
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	addresses repo.AddressRepository,
	products repo.ProductRepository,
	publisher events.Publisher,
	clock Clock,
) *OrderUsecase {
	return &OrderUsecase{
		tx:        tx,
		orders:    orders,
		items:     items,
		addresses: addresses,
		products:  products,
		publisher: publisher,
		clock:     clock,
	}
}

type OrderLineInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type CreateTempOrderInput struct {
	AddressID int64            `json:"address_id"`
	Source    string           `json:"source"` // CART / BUY_NOW
	Lines     []OrderLineInput `json:"lines"`
	Total     decimal.Decimal  `json:"total"` // クライアント計算の合計
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderOutput struct {
	ID                 int64             `json:"id"`
	UserID             int64             `json:"user_id"`
	Status             string            `json:"status"`
	Source             string            `json:"source"`
	TotalAmount        decimal.Decimal   `json:"total_amount"`
	PaidAmount         *decimal.Decimal  `json:"paid_amount,omitempty"`
	PaidAt             *time.Time        `json:"paid_at,omitempty"`
	ExpiresAt          *time.Time        `json:"expires_at,omitempty"`
	TrackingNumber     string            `json:"tracking_number,omitempty"`
	TrackingLink       string            `json:"tracking_link,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	Items              []OrderItemOutput `json:"items"`
}

// TEMP注文を作成する。在庫はここでは減らさない（確定時に減らす）。
func (u *OrderUsecase) CreateTempOrder(ctx context.Context, userID int64, in CreateTempOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewUnauthorizedError()
	}
	if in.AddressID <= 0 {
		return OrderOutput{}, NewValidationError("invalid address_id")
	}
	source := model.OrderSource(in.Source)
	if source != model.OrderSourceCart && source != model.OrderSourceBuyNow {
		return OrderOutput{}, NewValidationError("invalid source")
	}
	if len(in.Lines) == 0 {
		return OrderOutput{}, NewValidationError("lines required")
	}
	if len(in.Lines) > maxOrderLines {
		return OrderOutput{}, NewValidationError("too many lines")
	}
	seen := make(map[int64]bool, len(in.Lines))
	for _, line := range in.Lines {
		if line.ProductID <= 0 {
			return OrderOutput{}, NewValidationError("invalid product_id")
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return OrderOutput{}, NewValidationError("invalid quantity")
		}
		if seen[line.ProductID] {
			return OrderOutput{}, NewValidationError("duplicate product in lines")
		}
		seen[line.ProductID] = true
	}

	//address_idの存在確認＋所有チェック
	addr, err := u.addresses.FindByID(ctx, in.AddressID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, NewNotFoundError("address not found")
		}
		return OrderOutput{}, NewInternalError("db error")
	}
	if addr.UserID != userID {
		return OrderOutput{}, NewForbiddenError("forbidden")
	}

	now := u.clock.Now()
	var out OrderOutput

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//未決済TEMPの上限チェック
		active, err := r.Orders().CountActiveTemp(ctx, userID)
		if err != nil {
			return NewInternalError("db error")
		}
		if active >= maxActiveTempOrders {
			return NewBusinessRuleError("too many pending orders")
		}

		//商品検証＋サーバー側で合計を再計算
		orderItems := make([]model.OrderItem, 0, len(in.Lines))
		total := decimal.Zero
		for _, line := range in.Lines {
			p, err := r.Products().FindByID(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return NewValidationError("product not found")
				}
				return NewInternalError("db error")
			}
			if !p.IsActive {
				return NewValidationError("product not available")
			}
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            line.Quantity,
			})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(line.Quantity)))
		}

		//クライアント合計と完全一致しなければ拒否（小数誤差も許さない）
		if !total.Equal(in.Total) {
			return NewValidationError("total mismatch")
		}

		expiresAt := now.Add(tempOrderTTL)
		order := model.Order{
			UserID:            userID,
			ShippingAddressID: in.AddressID,
			Status:            model.OrderStatusTemp,
			Source:            source,
			TotalAmount:       total,
			ExpiresAt:         &expiresAt,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return NewInternalError("db error")
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewInternalError("db error")
		}

		created, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return NewInternalError("db error")
		}
		saved, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewInternalError("db error")
		}
		out = toOrderOutput(created, saved)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	return out, nil
}

func (u *OrderUsecase) GetOrder(ctx context.Context, userID, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewUnauthorizedError()
	}
	if orderID <= 0 {
		return OrderOutput{}, NewValidationError("invalid order id")
	}

	order, err := u.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, NewNotFoundError("order not found")
		}
		return OrderOutput{}, NewInternalError("db error")
	}
	//他人の注文は存在自体を隠す
	if order.UserID != userID {
		return OrderOutput{}, NewNotFoundError("order not found")
	}

	items, err := u.items.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, NewInternalError("db error")
	}
	return toOrderOutput(order, items), nil
}

// 決済リダイレクト後のフロント向け。session_idから注文を引く。
func (u *OrderUsecase) GetOrderBySessionID(ctx context.Context, userID int64, sessionID string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewUnauthorizedError()
	}
	if sessionID == "" {
		return OrderOutput{}, NewValidationError("invalid session id")
	}

	order, err := u.orders.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, NewNotFoundError("order not found")
		}
		return OrderOutput{}, NewInternalError("db error")
	}
	if order.UserID != userID {
		return OrderOutput{}, NewNotFoundError("order not found")
	}

	items, err := u.items.ListByOrderID(ctx, order.ID)
	if err != nil {
		return OrderOutput{}, NewInternalError("db error")
	}
	return toOrderOutput(order, items), nil
}

// 注文履歴。TEMPは見せない。
func (u *OrderUsecase) ListHistory(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return nil, NewUnauthorizedError()
	}

	orders, err := u.orders.ListHistoryByUserID(ctx, userID)
	if err != nil {
		return nil, NewInternalError("db error")
	}

	out := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.items.ListByOrderID(ctx, o.ID)
		if err != nil {
			return nil, NewInternalError("db error")
		}
		out = append(out, toOrderOutput(o, items))
	}
	return out, nil
}

// ユーザーによるキャンセル。
// TEMPはそのまま、PROCESSINGは在庫を戻してキャンセル。
// PAIDは出荷準備との競合があるため返金フロー側でしか止められない。
func (u *OrderUsecase) CancelOrder(ctx context.Context, userID, orderID int64, reason string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewUnauthorizedError()
	}
	if orderID <= 0 {
		return OrderOutput{}, NewValidationError("invalid order id")
	}
	if reason == "" {
		reason = "customer request"
	}
	if len(reason) > 255 {
		return OrderOutput{}, NewValidationError("reason too long")
	}

	var out OrderOutput
	var cancelled *events.OrderCancelled

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("order not found")
			}
			return NewInternalError("db error")
		}
		if order.UserID != userID {
			return NewNotFoundError("order not found")
		}

		switch order.Status {
		case model.OrderStatusTemp:
			//在庫は減らしていないので戻しは不要
		case model.OrderStatusProcessing:
			//確定済みなので在庫を戻す
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewInternalError("db error")
			}
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return NewInternalError("db error")
				}
			}
		case model.OrderStatusPaid:
			return NewInvalidStateError("paid order requires refund flow")
		default:
			return NewInvalidStateError("order cannot be cancelled")
		}

		if err := r.Orders().Cancel(ctx, orderID, reason); err != nil {
			return NewInternalError("db error")
		}

		updated, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return NewInternalError("db error")
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewInternalError("db error")
		}
		out = toOrderOutput(updated, items)
		cancelled = &events.OrderCancelled{
			OrderID:     orderID,
			UserID:      userID,
			Reason:      reason,
			CancelledAt: u.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	//コミット後のイベント発行はベストエフォート
	if cancelled != nil {
		if err := u.publisher.PublishOrderCancelled(ctx, *cancelled); err != nil {
			logger.L().Warn("order cancelled event publish failed",
				zap.Int64("orderID", orderID), zap.Error(err))
		}
	}

	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	out := OrderOutput{
		ID:                 o.ID,
		UserID:             o.UserID,
		Status:             string(o.Status),
		Source:             string(o.Source),
		TotalAmount:        o.TotalAmount,
		PaidAt:             o.PaidAt,
		ExpiresAt:          o.ExpiresAt,
		TrackingNumber:     o.TrackingNumber,
		TrackingLink:       o.TrackingLink,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		Items:              make([]OrderItemOutput, 0, len(items)),
	}
	if o.PaidAmount.Valid {
		v := o.PaidAmount.Decimal
		out.PaidAmount = &v
	}
	for _, it := range items {
		out.Items = append(out.Items, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
		})
	}
	return out
}
