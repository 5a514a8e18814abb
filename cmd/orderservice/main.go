// Package main запускает HTTP-сервис приёма заказов.
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

	"github.com/mmeshcher/cloudcafe-pipeline/internal/cache"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/config"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/handler"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/metrics"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/repository"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/service"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/stream"
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

	orderCache, err := cache.NewOrderCache(cfg.RedisAddress)
	if err != nil {
		sugar.Fatalw("fast store initialization error", "error", err.Error())
	}
	defer orderCache.Close()

	publisher := stream.NewPublisher(cfg.Brokers(), cfg.OrderEventsTopic)
	defer publisher.Close()

	m := metrics.NewIngress(cfg.Environment)

	svc := service.NewService(repo, orderCache, publisher, m, logger)
	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddress,
		Handler: m.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера API
	g.Go(func() error {
		sugar.Infow("starting order service", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
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
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
