// Package stream содержит доступ к журналу событий заказов:
// публикацию событий и партиционированное чтение по курсору.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
)

// kafkaMessageWriter абстрагирует kafka.Writer для тестируемости.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher публикует события заказов в журнал, партиционируя их по
// идентификатору покупателя: события одного покупателя попадают в одну
// партицию и сохраняют порядок.
type Publisher struct {
	writer kafkaMessageWriter
}

// NewPublisher создаёт издатель событий заказов для указанного топика.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// NewPublisherWith используется только в тестах для подмены writer.
func NewPublisherWith(w kafkaMessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// PublishOrderEvent публикует событие заказа с ключом — идентификатором покупателя.
func (p *Publisher) PublishOrderEvent(ctx context.Context, event model.OrderEvent) error {
	data, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CustomerID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close закрывает издатель.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
