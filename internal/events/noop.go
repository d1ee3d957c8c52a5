// internal/events/noop.go
package events

import "context"

// KAFKA_BROKERS未設定の環境（ローカル、CI）向け。
type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return &noopPublisher{}
}

func (noopPublisher) PublishOrderPaid(context.Context, OrderPaid) error { return nil }

func (noopPublisher) PublishOrderCancelled(context.Context, OrderCancelled) error { return nil }

func (noopPublisher) Close() error { return nil }
