// internal/usecase/checkout_usecase.go
package usecase

import (
	"context"
	"errors"
	"net/http"

	"neurostore-be/internal/domain/model"
	"neurostore-be/internal/payment"
	repo "neurostore-be/internal/repository"
)

type CheckoutUsecase struct {
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	gateway   payment.Gateway
	reconcile *ReconcileUsecase
	clock     Clock
}

func NewCheckoutUsecase(
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	gateway payment.Gateway,
	reconcile *ReconcileUsecase,
	clock Clock,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		orders:    orders,
		items:     items,
		gateway:   gateway,
		reconcile: reconcile,
		clock:     clock,
	}
}

type CheckoutSessionOutput struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type VerifyPaymentOutput struct {
	Paid  bool        `json:"paid"`
	Order OrderOutput `json:"order"`
}

// TEMP注文に対する決済セッションを作る。
// セッションは注文1件につき1つ。貼り替えは認めない。
func (u *CheckoutUsecase) CreateCheckoutSession(ctx context.Context, userID, orderID int64, email string) (CheckoutSessionOutput, error) {
	if userID <= 0 {
		return CheckoutSessionOutput{}, NewUnauthorizedError()
	}
	if orderID <= 0 {
		return CheckoutSessionOutput{}, NewValidationError("invalid order id")
	}

	order, err := u.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CheckoutSessionOutput{}, NewNotFoundError("order not found")
		}
		return CheckoutSessionOutput{}, NewInternalError("db error")
	}
	if order.UserID != userID {
		return CheckoutSessionOutput{}, NewNotFoundError("order not found")
	}
	if order.Status != model.OrderStatusTemp {
		return CheckoutSessionOutput{}, NewInvalidStateError("order is not payable")
	}
	//期限切れTEMPは掃除を待たずにここで弾く
	if order.ExpiresAt != nil && order.ExpiresAt.Before(u.clock.Now()) {
		return CheckoutSessionOutput{}, NewInvalidStateError("order expired")
	}
	if order.StripeSessionID != nil {
		return CheckoutSessionOutput{}, NewConflictError("checkout session already created")
	}

	amountMinor, err := payment.MinorUnits(order.TotalAmount)
	if err != nil {
		return CheckoutSessionOutput{}, NewValidationError("invalid order amount")
	}

	sess, err := u.gateway.CreateCheckoutSession(ctx, payment.CreateSessionInput{
		OrderID:       orderID,
		AmountMinor:   amountMinor,
		CustomerEmail: email,
	})
	if err != nil {
		return CheckoutSessionOutput{}, mapGatewayError(err)
	}

	if err := u.attachSession(ctx, order, sess.SessionID); err != nil {
		return CheckoutSessionOutput{}, err
	}

	return CheckoutSessionOutput{SessionID: sess.SessionID, RedirectURL: sess.RedirectURL}, nil
}

// セッションIDを注文へ紐付ける。同じIDの再適用は何もしない。
// 別のIDが既に付いていたらCONFLICT（セッションの貼り替え検知）。
func (u *CheckoutUsecase) attachSession(ctx context.Context, order model.Order, sessionID string) error {
	if order.StripeSessionID != nil {
		if *order.StripeSessionID == sessionID {
			return nil
		}
		return NewConflictError("order already has a different session")
	}
	if err := u.orders.AttachStripeSession(ctx, order.ID, sessionID); err != nil {
		return NewInternalError("db error")
	}
	return nil
}

// 決済完了画面からの照合。プロバイダに支払い状態を問い合わせ、
// complete かつ paid のときだけ注文を確定する。
func (u *CheckoutUsecase) VerifyPayment(ctx context.Context, userID int64, sessionID string) (VerifyPaymentOutput, error) {
	if userID <= 0 {
		return VerifyPaymentOutput{}, NewUnauthorizedError()
	}
	if sessionID == "" {
		return VerifyPaymentOutput{}, NewValidationError("invalid session id")
	}

	order, err := u.orders.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VerifyPaymentOutput{}, NewNotFoundError("order not found")
		}
		return VerifyPaymentOutput{}, NewInternalError("db error")
	}
	if order.UserID != userID {
		return VerifyPaymentOutput{}, NewNotFoundError("order not found")
	}

	st, err := u.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return VerifyPaymentOutput{}, mapGatewayError(err)
	}

	if !st.Paid {
		items, err := u.items.ListByOrderID(ctx, order.ID)
		if err != nil {
			return VerifyPaymentOutput{}, NewInternalError("db error")
		}
		return VerifyPaymentOutput{Paid: false, Order: toOrderOutput(order, items)}, nil
	}

	out, err := u.reconcile.ConfirmOrder(ctx, ConfirmInput{
		OrderID:         order.ID,
		PaymentIntentID: st.PaymentIntentID,
		AmountMinor:     st.AmountTotal,
		Currency:        st.Currency,
	})
	if err != nil {
		return VerifyPaymentOutput{}, err
	}
	return VerifyPaymentOutput{Paid: true, Order: out}, nil
}

// ゲートウェイのsentinelエラーをHTTPエラーへ変換する。
func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, payment.ErrSessionNotFound):
		return NewNotFoundError("session not found")
	case errors.Is(err, payment.ErrInvalidAmount):
		return NewValidationError("invalid amount")
	case errors.Is(err, payment.ErrGatewayTimeout):
		return NewHTTPError(http.StatusGatewayTimeout, CodeGatewayTimeout, "payment gateway timeout")
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return NewHTTPError(http.StatusBadGateway, CodeGatewayUnavailable, "payment gateway unavailable")
	default:
		return NewHTTPError(http.StatusBadGateway, CodeGatewayUnavailable, "payment gateway error")
	}
}
