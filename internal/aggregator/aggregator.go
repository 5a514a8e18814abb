// Package aggregator реализует потребитель журнала событий заказов:
// опрос партиций по курсорам, преобразование событий в строки фактов и
// пакетную загрузку в аналитическое хранилище.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/metrics"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/stream"
)

// Warehouse описывает контракт аналитического хранилища фактов.
type Warehouse interface {
	InsertFacts(ctx context.Context, rows []model.FactRow) error
}

// Options содержит параметры цикла опроса.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	StartFrom    stream.StartPosition
}

// Aggregator опрашивает партиции журнала событий и загружает факты в
// хранилище. Таблица курсоров принадлежит единственной горутине цикла
// опроса: никакой другой код её не читает и не изменяет.
type Aggregator struct {
	log       stream.Log
	warehouse Warehouse
	metrics   *metrics.Aggregator
	logger    *zap.Logger
	opts      Options

	cursors    map[int]string
	rediscover bool
}

// New создаёт агрегатор потока событий.
func New(log stream.Log, warehouse Warehouse, m *metrics.Aggregator, logger *zap.Logger, opts Options) *Aggregator {
	return &Aggregator{
		log:       log,
		warehouse: warehouse,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		cursors:   make(map[int]string),
	}
}

// Run запускает цикл опроса. Возвращается после отмены контекста, завершив
// текущий такт: ни одна запись не бросается посреди пакета.
func (a *Aggregator) Run(ctx context.Context) error {
	if err := a.discoverPartitions(ctx); err != nil {
		return fmt.Errorf("initialize partitions: %w", err)
	}

	a.logger.Info("aggregator started",
		zap.Int("partitions", len(a.cursors)),
		zap.String("start_from", string(a.opts.StartFrom)),
		zap.Duration("poll_interval", a.opts.PollInterval),
	)

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick выполняет один такт опроса: при необходимости заново перечисляет
// партиции, затем обрабатывает каждую партицию независимо.
func (a *Aggregator) tick(ctx context.Context) {
	if a.rediscover || len(a.cursors) == 0 {
		a.rediscover = false
		if err := a.discoverPartitions(ctx); err != nil {
			a.logger.Error("partition discovery failed", zap.Error(err))
			a.rediscover = true
		}
	}

	for _, p := range a.sortedPartitions() {
		a.pollPartition(ctx, p)
	}
}

// discoverPartitions перечисляет партиции журнала и открывает курсоры для
// тех, у которых курсора ещё нет. Политика начальной позиции общая для всех.
func (a *Aggregator) discoverPartitions(ctx context.Context) error {
	parts, err := a.log.Partitions(ctx)
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}

	for _, p := range parts {
		if _, ok := a.cursors[p]; ok {
			continue
		}
		cursor, err := a.log.OpenCursor(ctx, p, a.opts.StartFrom)
		if err != nil {
			// Партиция будет подхвачена при следующем перечислении.
			a.metrics.ReadErrors.WithLabelValues(strconv.Itoa(p)).Inc()
			a.logger.Error("open cursor failed", zap.Int("partition", p), zap.Error(err))
			a.rediscover = true
			continue
		}
		a.cursors[p] = cursor
		a.logger.Info("partition initialized", zap.Int("partition", p), zap.String("cursor", cursor))
	}

	return nil
}

// pollPartition читает и обрабатывает один пакет одной партиции. Ошибка
// чтения оставляет курсор на месте и не затрагивает остальные партиции.
// Курсор продвигается после успешного чтения независимо от исхода записи:
// при отказе хранилища пакет учитывается как потерянный.
func (a *Aggregator) pollPartition(ctx context.Context, partition int) {
	cursor := a.cursors[partition]

	records, next, err := a.log.Read(ctx, partition, cursor, a.opts.BatchSize)
	if err != nil {
		a.metrics.ReadErrors.WithLabelValues(strconv.Itoa(partition)).Inc()
		a.logger.Error("partition read failed", zap.Int("partition", partition), zap.Error(err))
		return
	}

	if next == "" {
		// Журнал больше не выдаёт позицию продолжения: партиция исчерпана,
		// курсор нельзя использовать повторно.
		delete(a.cursors, partition)
		a.rediscover = true
		a.logger.Warn("partition exhausted, rediscovery scheduled", zap.Int("partition", partition))
		return
	}

	a.cursors[partition] = next

	if len(records) == 0 {
		return
	}

	rows := make([]model.FactRow, 0, len(records))
	for _, rec := range records {
		row, err := factFromRecord(rec)
		if err != nil {
			a.metrics.ParseErrors.Inc()
			a.logger.Warn("malformed event dropped",
				zap.Int("partition", rec.Partition),
				zap.Int64("offset", rec.Offset),
				zap.Error(err),
			)
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return
	}

	start := time.Now()
	if err := a.warehouse.InsertFacts(ctx, rows); err != nil {
		a.metrics.WriteErrors.Inc()
		a.metrics.RecordsLost.Add(float64(len(rows)))
		a.logger.Error("warehouse write failed, batch lost",
			zap.Int("partition", partition),
			zap.Int("records", len(rows)),
			zap.String("cursor", next),
			zap.Error(err),
		)
		return
	}

	a.metrics.RecordsProcessed.Add(float64(len(rows)))
	a.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	a.logger.Info("batch loaded", zap.Int("partition", partition), zap.Int("records", len(rows)))
}

func (a *Aggregator) sortedPartitions() []int {
	parts := make([]int, 0, len(a.cursors))
	for p := range a.cursors {
		parts = append(parts, p)
	}
	sort.Ints(parts)
	return parts
}

// factFromRecord преобразует событие в строку фактов. Отсутствующие
// идентификаторы заменяются на "unknown", числовые поля — на 0, тип
// события — на order_created, отметка времени — на текущее время.
func factFromRecord(rec stream.Record) (model.FactRow, error) {
	var event model.OrderEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return model.FactRow{}, fmt.Errorf("unmarshal event: %w", err)
	}

	eventType := event.EventType
	if eventType == "" {
		eventType = model.EventTypeOrderCreated
	}

	ts, err := time.Parse(time.RFC3339, event.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	return model.FactRow{
		OrderID:        idOrUnknown(event.OrderID),
		CustomerID:     idOrUnknown(event.CustomerID),
		StoreID:        idOrUnknown(event.StoreID),
		TotalAmount:    event.TotalAmount,
		ItemCount:      event.ItemCount,
		EventType:      eventType,
		EventTimestamp: ts,
	}, nil
}

func idOrUnknown(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}
