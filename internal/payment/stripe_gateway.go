// internal/payment/stripe_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"neurostore-be/internal/logger"
)

const (
	metadataOrderIDKey = "orderId"
	apiTimeout         = 30 * time.Second
)

type stripeGateway struct {
	sc            *client.API
	webhookSecret string
	frontendURL   string
}

func NewStripeGateway(secretKey, webhookSecret, frontendURL string) Gateway {
	sc := &client.API{}
	sc.Init(secretKey, stripe.NewBackends(&http.Client{Timeout: apiTimeout}))
	return &stripeGateway{
		sc:            sc,
		webhookSecret: webhookSecret,
		frontendURL:   frontendURL,
	}
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, in CreateSessionInput) (*CheckoutSession, error) {
	if in.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(in.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Order #%d", in.OrderID)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		// session_idはStripe側でプレースホルダ展開される
		SuccessURL: stripe.String(g.frontendURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(g.frontendURL + "/payment-failed?session_id={CHECKOUT_SESSION_ID}"),
	}
	params.Context = ctx
	params.AddMetadata(metadataOrderIDKey, strconv.FormatInt(in.OrderID, 10))
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		logger.L().Warn("stripe checkout session create failed",
			zap.Int64("orderID", in.OrderID), zap.Error(err))
		return nil, mapStripeError(err)
	}

	return &CheckoutSession{SessionID: s.ID, RedirectURL: s.URL}, nil
}

func (g *stripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return sessionStatusOf(s), nil
}

func (g *stripeGateway) VerifyWebhook(payload []byte, sigHeader string) (Event, error) {
	// 署名だけを検証のゲートにする。api_versionの不一致で弾くと
	// 正規のイベントが再送されないまま失われる。
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return normalizeEvent(ev)
}

func sessionStatusOf(s *stripe.CheckoutSession) *SessionStatus {
	st := &SessionStatus{
		SessionID:   s.ID,
		Paid:        s.Status == stripe.CheckoutSessionStatusComplete && s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		OrderID:     orderIDFromMetadata(s.Metadata),
		AmountTotal: s.AmountTotal,
		Currency:    string(s.Currency),
	}
	if s.PaymentIntent != nil {
		st.PaymentIntentID = s.PaymentIntent.ID
	}
	return st
}

// StripeのイベントタイプをクローズドなEventKindへ写像する。
// 列挙にないタイプはEventUnknown。呼び出し側はログだけ残してACKする。
func normalizeEvent(ev stripe.Event) (Event, error) {
	out := Event{ID: ev.ID}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("unmarshal checkout session: %w", err)
		}
		if ev.Type == "checkout.session.completed" {
			out.Kind = EventCheckoutCompleted
		} else {
			out.Kind = EventCheckoutExpired
		}
		out.SessionID = s.ID
		out.OrderID = orderIDFromMetadata(s.Metadata)
		out.AmountTotal = s.AmountTotal
		out.Currency = string(s.Currency)
		if s.PaymentIntent != nil {
			out.PaymentIntentID = s.PaymentIntent.ID
		}

	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("unmarshal payment intent: %w", err)
		}
		if ev.Type == "payment_intent.succeeded" {
			out.Kind = EventPaymentSucceeded
		} else {
			out.Kind = EventPaymentFailed
		}
		out.PaymentIntentID = pi.ID
		out.OrderID = orderIDFromMetadata(pi.Metadata)
		out.AmountTotal = pi.Amount
		out.Currency = string(pi.Currency)

	default:
		out.Kind = EventUnknown
	}

	return out, nil
}

func orderIDFromMetadata(md map[string]string) int64 {
	raw, ok := md[metadataOrderIDKey]
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapStripeError(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.HTTPStatusCode == http.StatusNotFound || sErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sErr.Code)
		}
		if sErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %s", ErrGatewayUnavailable, sErr.Msg)
		}
		return err
	}

	var nErr net.Error
	if errors.As(err, &nErr) && nErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}

	var uErr *url.Error
	if errors.As(err, &uErr) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return err
}
