// Package main запускает обработчик платёжных сообщений.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/config"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/metrics"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/payments"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	m := metrics.NewPayments(cfg.Environment)

	processor := payments.NewProcessor(repo, m, logger)
	consumer := payments.NewConsumer(cfg.Brokers(), cfg.PaymentQueueTopic, cfg.PaymentGroup, cfg.BatchSize, processor, logger)
	defer consumer.Close()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddress,
		Handler: m.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск цикла потребления очереди платежей. Отказ хранилища фатален:
	// процесс завершается с ошибкой, остаток пакета доставляется повторно
	// после перезапуска.
	g.Go(func() error {
		return consumer.Run(ctx)
	})

	// Запуск сервера метрик
	g.Go(func() error {
		sugar.Infow("starting metrics endpoint", "addr", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down processor...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
