// internal/usecase/reconcile_usecase.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"neurostore-be/internal/domain/model"
	"neurostore-be/internal/events"
	"neurostore-be/internal/logger"
	"neurostore-be/internal/payment"
	repo "neurostore-be/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 支払い確定の突合せ。webhookとverify-paymentの両方がここに集まる。
type ReconcileUsecase struct {
	tx        repo.TransactionManager
	carts     repo.CartRepository
	gateway   payment.Gateway
	publisher events.Publisher
	clock     Clock
}

func NewReconcileUsecase(
	tx repo.TransactionManager,
	carts repo.CartRepository,
	gateway payment.Gateway,
	publisher events.Publisher,
	clock Clock,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		tx:        tx,
		carts:     carts,
		gateway:   gateway,
		publisher: publisher,
		clock:     clock,
	}
}

type ConfirmInput struct {
	OrderID         int64
	PaymentIntentID string
	AmountMinor     int64 // プロバイダ申告額（最小通貨単位）
	Currency        string
}

// 注文を確定する。何度呼ばれても結果は同じ（webhookとverifyの二重呼び出し前提）。
//
// 行ロック下で 状態確認 → 在庫減算 → PAID更新 → 決済記録 を1トランザクションで行う。
// 在庫が1明細でも足りなければ全てロールバックする。
func (u *ReconcileUsecase) ConfirmOrder(ctx context.Context, in ConfirmInput) (OrderOutput, error) {
	if in.OrderID <= 0 {
		return OrderOutput{}, NewValidationError("invalid order id")
	}
	if in.PaymentIntentID == "" {
		return OrderOutput{}, NewValidationError("invalid payment intent id")
	}
	if in.AmountMinor <= 0 {
		return OrderOutput{}, NewValidationError("invalid amount")
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "USD"
	}

	//プロバイダ申告額が正。セント単位からnumericへ。
	paidAmount := decimal.New(in.AmountMinor, -2)

	var out OrderOutput
	var alreadyConfirmed bool
	var paidEvent *events.OrderPaid
	var userID int64
	var clearCart bool

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFoundError("order not found")
			}
			return NewInternalError("db error")
		}

		//確定済みなら前回の結果を返すだけ（再実行しても副作用なし）
		if order.Status.IsPaidOrLater() {
			alreadyConfirmed = true
			items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
			if err != nil {
				return NewInternalError("db error")
			}
			out = toOrderOutput(order, items)
			return nil
		}

		if order.Status != model.OrderStatusTemp {
			//CANCELLEDなど。期限切れ掃除に先を越されたケースもここ
			return NewInvalidStateError("order is not payable")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
		if err != nil {
			return NewInternalError("db error")
		}
		if len(items) == 0 {
			return NewInvalidStateError("order has no items")
		}

		//在庫チェックと減算は条件付きUPDATE1文。足りなければ即ロールバック
		for _, it := range items {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return NewInternalError("db error")
			}
			if !ok {
				return NewInsufficientStockError("insufficient stock")
			}
		}

		//金額不一致は警告ログのみ。支払い自体は成立しているので確定は止めない
		if !paidAmount.Equal(order.TotalAmount) {
			logger.L().Warn("paid amount differs from order total",
				zap.Int64("orderID", order.ID),
				zap.String("orderTotal", order.TotalAmount.String()),
				zap.String("paidAmount", paidAmount.String()))
		}

		now := u.clock.Now()
		if err := r.Orders().MarkPaid(ctx, order.ID, in.PaymentIntentID, paidAmount, now); err != nil {
			return NewInternalError("db error")
		}
		if err := r.Payments().Create(ctx, model.Payment{
			OrderID:               order.ID,
			StripePaymentIntentID: in.PaymentIntentID,
			Amount:                paidAmount,
			Currency:              currency,
			Status:                model.PaymentStatusSucceeded,
		}); err != nil {
			return NewInternalError("db error")
		}

		updated, err := r.Orders().FindByID(ctx, order.ID)
		if err != nil {
			return NewInternalError("db error")
		}
		out = toOrderOutput(updated, items)

		userID = order.UserID
		clearCart = order.Source == model.OrderSourceCart
		paidEvent = &events.OrderPaid{
			OrderID:         order.ID,
			UserID:          order.UserID,
			PaymentIntentID: in.PaymentIntentID,
			PaidAmount:      paidAmount.String(),
			Currency:        currency,
			PaidAt:          now,
		}
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	if alreadyConfirmed {
		return out, nil
	}

	//ここから先はベストエフォート。失敗しても確定は取り消さない

	//カート経由の注文ならカートを空にする
	if clearCart {
		if err := u.clearActiveCart(ctx, userID); err != nil {
			logger.L().Warn("cart clear after payment failed",
				zap.Int64("userID", userID), zap.Error(err))
		}
	}

	if paidEvent != nil {
		if err := u.publisher.PublishOrderPaid(ctx, *paidEvent); err != nil {
			logger.L().Warn("order paid event publish failed",
				zap.Int64("orderID", in.OrderID), zap.Error(err))
		}
	}

	return out, nil
}

// 支払い済みカートは中身を空にしてCHECKED_OUTへ落とす。
// 次の買い物では新しいACTIVEカートが作られる。
func (u *ReconcileUsecase) clearActiveCart(ctx context.Context, userID int64) error {
	cart, err := u.carts.FindActiveByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := u.carts.Clear(ctx, cart.ID); err != nil {
		return err
	}
	return u.carts.UpdateStatus(ctx, cart.ID, model.CartStatusCheckedOut)
}

// 署名検証済みwebhookイベントの振り分け。
// 処理できないイベントはACK（nilを返す）してプロバイダの再送ループを止める。
// 再送で直る見込みのある失敗（DB障害など）だけエラーを返す。
func (u *ReconcileUsecase) HandleProviderEvent(ctx context.Context, ev payment.Event) error {
	switch ev.Kind {
	case payment.EventCheckoutCompleted:
		return u.confirmFromEvent(ctx, ev)

	case payment.EventPaymentSucceeded:
		//metadata欠落時はセッション情報なしでは注文を特定できない
		if ev.OrderID == 0 && ev.SessionID == "" {
			logger.L().Warn("payment succeeded event without order reference",
				zap.String("eventID", ev.ID),
				zap.String("paymentIntentID", ev.PaymentIntentID))
			return nil
		}
		return u.confirmFromEvent(ctx, ev)

	case payment.EventCheckoutExpired:
		//掃除は定期ジョブの担当。ここでは記録だけ
		logger.L().Info("checkout session expired",
			zap.String("eventID", ev.ID), zap.String("sessionID", ev.SessionID))
		return nil

	case payment.EventPaymentFailed:
		logger.L().Info("payment failed",
			zap.String("eventID", ev.ID),
			zap.String("paymentIntentID", ev.PaymentIntentID),
			zap.Int64("orderID", ev.OrderID))
		return nil

	default:
		logger.L().Info("ignoring unhandled provider event",
			zap.String("eventID", ev.ID), zap.String("kind", ev.Kind.String()))
		return nil
	}
}

func (u *ReconcileUsecase) confirmFromEvent(ctx context.Context, ev payment.Event) error {
	orderID := ev.OrderID
	amount := ev.AmountTotal
	currency := ev.Currency
	paymentIntentID := ev.PaymentIntentID

	//metadataに注文IDがなければセッションを引き直して解決する
	if orderID == 0 && ev.SessionID != "" {
		st, err := u.gateway.RetrieveSession(ctx, ev.SessionID)
		if err != nil {
			if errors.Is(err, payment.ErrSessionNotFound) {
				logger.L().Warn("event session unknown to provider",
					zap.String("eventID", ev.ID), zap.String("sessionID", ev.SessionID))
				return nil
			}
			return err
		}
		orderID = st.OrderID
		if paymentIntentID == "" {
			paymentIntentID = st.PaymentIntentID
		}
		if amount == 0 {
			amount = st.AmountTotal
		}
		if currency == "" {
			currency = st.Currency
		}
	}
	if orderID == 0 {
		logger.L().Warn("provider event has no resolvable order",
			zap.String("eventID", ev.ID))
		return nil
	}

	_, err := u.ConfirmOrder(ctx, ConfirmInput{
		OrderID:         orderID,
		PaymentIntentID: paymentIntentID,
		AmountMinor:     amount,
		Currency:        currency,
	})
	if err != nil {
		//業務エラー（キャンセル済み、在庫切れなど）は再送しても直らないのでACK
		if he, ok := AsHTTPError(err); ok && he.Status < 500 {
			logger.L().Warn("provider event not applied",
				zap.String("eventID", ev.ID),
				zap.Int64("orderID", orderID),
				zap.String("code", he.Code),
				zap.String("reason", he.Message))
			return nil
		}
		return err
	}
	return nil
}
