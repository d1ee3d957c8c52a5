// internal/events/kafka.go
package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"neurostore-be/internal/logger"
)

// 同一注文のイベントが同一パーティションに載るよう注文IDをキーにする。
type kafkaPublisher struct {
	paid      *kafka.Writer
	cancelled *kafka.Writer
}

func NewKafkaPublisher(brokers []string) Publisher {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
	}
	return &kafkaPublisher{
		paid:      newWriter(TopicOrderPaid),
		cancelled: newWriter(TopicOrderCancelled),
	}
}

func (p *kafkaPublisher) PublishOrderPaid(ctx context.Context, ev OrderPaid) error {
	return publishJSON(ctx, p.paid, strconv.FormatInt(ev.OrderID, 10), ev)
}

func (p *kafkaPublisher) PublishOrderCancelled(ctx context.Context, ev OrderCancelled) error {
	return publishJSON(ctx, p.cancelled, strconv.FormatInt(ev.OrderID, 10), ev)
}

func (p *kafkaPublisher) Close() error {
	if err := p.paid.Close(); err != nil {
		return err
	}
	return p.cancelled.Close()
}

func publishJSON(ctx context.Context, w *kafka.Writer, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		// コンシューマ側の重複排除用
		Headers: []kafka.Header{{Key: "event_id", Value: []byte(uuid.NewString())}},
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		logger.L().Warn("kafka publish failed",
			zap.String("topic", w.Topic), zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
