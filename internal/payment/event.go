// internal/payment/event.go
package payment

type EventKind int

const (
	EventUnknown EventKind = iota
	EventCheckoutCompleted
	EventCheckoutExpired
	EventPaymentSucceeded
	EventPaymentFailed
)

func (k EventKind) String() string {
	switch k {
	case EventCheckoutCompleted:
		return "checkout_completed"
	case EventCheckoutExpired:
		return "checkout_expired"
	case EventPaymentSucceeded:
		return "payment_succeeded"
	case EventPaymentFailed:
		return "payment_failed"
	default:
		return "unknown"
	}
}

// 署名検証済みwebhookの正規化結果。
// OrderIDが0のものはmetadata欠落。呼び出し側でセッションから解決する。
type Event struct {
	ID              string
	Kind            EventKind
	OrderID         int64
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64 // 最小通貨単位
	Currency        string
}
