// Package metrics содержит операционные метрики компонентов конвейера.
// Обновление метрик не блокирует основной путь обработки и не возвращает
// ошибок вызывающему коду.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func constLabels(environment, component string) prometheus.Labels {
	return prometheus.Labels{
		"environment": environment,
		"component":   component,
	}
}

// Ingress содержит метрики сервиса приёма заказов.
type Ingress struct {
	reg *prometheus.Registry

	OrdersCreated    prometheus.Counter
	OrderErrors      prometheus.Counter
	CreationDuration prometheus.Histogram
}

// NewIngress создаёт реестр метрик сервиса приёма заказов.
func NewIngress(environment string) *Ingress {
	labels := constLabels(environment, "order-service")
	r := prometheus.NewRegistry()

	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "orders_created_total",
		ConstLabels: labels,
	})
	errs := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "order_creation_errors_total",
		ConstLabels: labels,
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "order_creation_duration_seconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: labels,
	})

	r.MustRegister(created, errs, duration)
	return &Ingress{
		reg:              r,
		OrdersCreated:    created,
		OrderErrors:      errs,
		CreationDuration: duration,
	}
}

// Handler возвращает HTTP-обработчик для выдачи метрик.
func (m *Ingress) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Aggregator содержит метрики агрегатора потока событий.
type Aggregator struct {
	reg *prometheus.Registry

	RecordsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	WriteErrors      prometheus.Counter
	// RecordsLost считает записи, потерянные при неуспешной пакетной
	// записи в хранилище после продвижения курсора. Отдельный счётчик,
	// чтобы потери не смешивались с временными ошибками инфраструктуры.
	RecordsLost   prometheus.Counter
	ReadErrors    *prometheus.CounterVec
	WriteDuration prometheus.Histogram
}

// NewAggregator создаёт реестр метрик агрегатора потока событий.
func NewAggregator(environment string) *Aggregator {
	labels := constLabels(environment, "analytics-worker")
	r := prometheus.NewRegistry()

	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "analytics_records_processed_total",
		ConstLabels: labels,
	})
	parseErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "analytics_parse_errors_total",
		ConstLabels: labels,
	})
	writeErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "analytics_warehouse_write_errors_total",
		ConstLabels: labels,
	})
	lost := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "analytics_records_lost_total",
		ConstLabels: labels,
	})
	readErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "analytics_partition_read_errors_total",
		ConstLabels: labels,
	}, []string{"partition"})
	writeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "analytics_warehouse_write_duration_seconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: labels,
	})

	r.MustRegister(processed, parseErrs, writeErrs, lost, readErrs, writeDuration)
	return &Aggregator{
		reg:              r,
		RecordsProcessed: processed,
		ParseErrors:      parseErrs,
		WriteErrors:      writeErrs,
		RecordsLost:      lost,
		ReadErrors:       readErrs,
		WriteDuration:    writeDuration,
	}
}

// Handler возвращает HTTP-обработчик для выдачи метрик.
func (m *Aggregator) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Payments содержит метрики обработчика платежей.
type Payments struct {
	reg *prometheus.Registry

	Processed     prometheus.Counter
	Failed        prometheus.Counter
	ColdStarts    prometheus.Counter
	BatchDuration prometheus.Histogram
}

// NewPayments создаёт реестр метрик обработчика платежей.
func NewPayments(environment string) *Payments {
	labels := constLabels(environment, "payment-processor")
	r := prometheus.NewRegistry()

	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "payments_processed_total",
		ConstLabels: labels,
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "payments_failed_total",
		ConstLabels: labels,
	})
	coldStarts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "payments_cold_starts_total",
		ConstLabels: labels,
	})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "payments_batch_duration_seconds",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: labels,
	})

	r.MustRegister(processed, failed, coldStarts, batchDuration)
	return &Payments{
		reg:           r,
		Processed:     processed,
		Failed:        failed,
		ColdStarts:    coldStarts,
		BatchDuration: batchDuration,
	}
}

// Handler возвращает HTTP-обработчик для выдачи метрик.
func (m *Payments) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
