package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// batchWait ограничивает добор пакета после первого полученного сообщения.
const batchWait = 250 * time.Millisecond

// commitTimeout ограничивает подтверждение позиции при остановке.
const commitTimeout = 5 * time.Second

// kafkaMessageFetcher описывает потребитель очереди, достаточный для
// подмены в тестах.
type kafkaMessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает платёжные сообщения из упорядоченной очереди группой
// потребителей и передаёт их обработчику пакетами. Позиция чтения
// подтверждается только до последнего успешно обработанного сообщения.
type Consumer struct {
	reader    kafkaMessageFetcher
	processor *Processor
	logger    *zap.Logger
	batchSize int
}

// NewConsumer создаёт потребитель очереди платежей. Порядок сообщений с
// одним ключом гарантируется партиционированием очереди и подтверждением
// позиции строго по порядку.
func NewConsumer(brokers []string, topic, group string, batchSize int, processor *Processor, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Consumer{
		reader:    reader,
		processor: processor,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Run запускает цикл потребления. Возвращает nil после отмены контекста.
// Отказ хранилища транзакций фатален: позиция подтверждается до последнего
// сохранённого сообщения, ошибка возвращается вызывающему коду, а остаток
// пакета будет доставлен повторно после перезапуска.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("payment consumer started", zap.Int("batch_size", c.batchSize))

	for {
		msgs, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.logger.Info("payment consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch payment batch: %w", err)
		}
		if len(msgs) == 0 {
			continue
		}

		bodies := make([][]byte, len(msgs))
		for i, m := range msgs {
			bodies[i] = m.Value
		}

		_, handled, procErr := c.processor.ProcessBatch(ctx, bodies)

		if handled > 0 {
			// Позиция подтверждается и при остановке по сигналу: уже
			// сохранённые сообщения не должны доставляться повторно.
			commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
			err := c.reader.CommitMessages(commitCtx, msgs[:handled]...)
			cancel()
			if err != nil {
				return fmt.Errorf("commit offsets: %w", err)
			}
		}

		if procErr != nil {
			// Пакет прерван отменой контекста, а не отказом хранилища:
			// это штатная остановка, остаток доставится повторно.
			if ctx.Err() != nil {
				c.logger.Info("payment consumer stopped mid-batch",
					zap.Int("handled", handled),
					zap.Int("redelivered", len(msgs)-handled),
				)
				return nil
			}
			return fmt.Errorf("process payment batch: %w", procErr)
		}
	}
}

// fetchBatch блокируется до первого сообщения, затем добирает пакет в
// пределах batchWait, не превышая размер пакета.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	msgs := []kafka.Message{first}

	waitCtx, cancel := context.WithTimeout(ctx, batchWait)
	defer cancel()

	for len(msgs) < c.batchSize {
		msg, err := c.reader.FetchMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				break
			}
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}

// Close освобождает ресурсы потребителя.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
