// internal/payment/gateway.go
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	//金額が0以下など、セッションを作れない入力
	ErrInvalidAmount = errors.New("invalid amount")
	//プロバイダが知らないセッションID
	ErrSessionNotFound = errors.New("session not found")
	//署名不一致。検証に失敗したペイロードは絶対に処理しない
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	//外部呼び出しのタイムアウト。リトライはidempotentなconfirmに任せる
	ErrGatewayTimeout = errors.New("payment gateway timeout")
	//その他の到達不能・5xx
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

type CreateSessionInput struct {
	OrderID       int64
	AmountMinor   int64 // 最小通貨単位（USDならセント）
	CustomerEmail string
}

type CheckoutSession struct {
	SessionID   string
	RedirectURL string
}

// retrieveの結果。Paidはstatus=complete かつ payment_status=paid のとき。
type SessionStatus struct {
	SessionID       string
	Paid            bool
	OrderID         int64
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, in CreateSessionInput) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionStatus, error)

	// 署名検証＋イベント変換。検証前にボディを一切信用しない。
	VerifyWebhook(payload []byte, sigHeader string) (Event, error)
}

// 10.00 → 1000。端数が最小単位で割り切れない金額はエラー。
func MinorUnits(amount decimal.Decimal) (int64, error) {
	cents := amount.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, ErrInvalidAmount
	}
	v := cents.IntPart()
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
