// Package service реализует бизнес-логику сервиса приёма заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/cache"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/metrics"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/repository"
)

// ErrCustomerRequired возвращается, если в запросе не указан покупатель.
var ErrCustomerRequired = errors.New("customer id is required")

// ErrOrderNotFound возвращается, если заказ не найден ни в одном хранилище.
var ErrOrderNotFound = errors.New("order not found")

const (
	// defaultUnitPrice применяется к позиции без указанной цены.
	defaultUnitPrice = 5.0
	// defaultQuantity применяется к позиции без указанного количества.
	defaultQuantity = 1
	// orderTTL — смещение срока жизни записи заказа от момента создания.
	orderTTL = 24 * time.Hour
)

// Repository описывает контракт реляционного хранилища заказов.
type Repository interface {
	CreateOrder(ctx context.Context, order model.OrderRecord) error
	GetOrder(ctx context.Context, orderID string) (*model.OrderRecord, error)
}

// OrderCache описывает контракт быстрого хранилища заказов.
type OrderCache interface {
	SaveOrder(ctx context.Context, order model.OrderRecord) error
	GetOrder(ctx context.Context, orderID string) (*model.OrderRecord, error)
}

// EventPublisher описывает контракт публикации событий заказов.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event model.OrderEvent) error
}

// Service содержит бизнес-логику приёма и чтения заказов.
type Service struct {
	repo      Repository
	cache     OrderCache
	publisher EventPublisher
	metrics   *metrics.Ingress
	logger    *zap.Logger
	now       func() time.Time
}

// NewService создаёт сервис заказов с указанными хранилищами и издателем событий.
func NewService(repo Repository, orderCache OrderCache, publisher EventPublisher, m *metrics.Ingress, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     orderCache,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateOrder создаёт заказ: рассчитывает сумму, записывает заказ в быстрое
// хранилище (авторитетная запись), затем по возможности в реляционное
// хранилище и публикует событие. Ошибки реляционной записи и публикации
// не прерывают приём заказа: они логируются и учитываются в метриках.
func (s *Service) CreateOrder(ctx context.Context, customerID, storeID string, items []model.OrderItem) (*model.OrderRecord, error) {
	start := s.now()

	if strings.TrimSpace(customerID) == "" {
		return nil, ErrCustomerRequired
	}

	createdAt := start.Unix()
	order := model.OrderRecord{
		OrderID:     uuid.NewString(),
		CustomerID:  customerID,
		StoreID:     storeID,
		Items:       items,
		TotalAmount: totalAmount(items),
		Status:      model.OrderStatusPending,
		CreatedAt:   createdAt,
		TTL:         start.Add(orderTTL).Unix(),
	}

	if err := s.cache.SaveOrder(ctx, order); err != nil {
		s.metrics.OrderErrors.Inc()
		return nil, fmt.Errorf("save order to fast store: %w", err)
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		// Реляционная запись — подстраховка: её отказ не откатывает заказ.
		s.logger.Error("relational order write failed", zap.Error(err), zap.String("order", order.OrderID))
	}

	event := model.NewOrderEvent(order, start)
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		// Конвейер событий не должен блокировать приём заказов.
		s.logger.Error("order event publish failed", zap.Error(err), zap.String("order", order.OrderID))
	}

	s.metrics.OrdersCreated.Inc()
	s.metrics.CreationDuration.Observe(time.Since(start).Seconds())

	return &order, nil
}

// GetOrder возвращает заказ: сначала из быстрого хранилища, при промахе —
// из реляционного.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*model.OrderRecord, error) {
	order, err := s.cache.GetOrder(ctx, orderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, cache.ErrOrderNotCached) {
		s.logger.Warn("fast store lookup failed, falling back", zap.Error(err), zap.String("order", orderID))
	}

	order, err = s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// totalAmount рассчитывает сумму заказа. Позиция без цены учитывается по
// цене по умолчанию, позиция без количества — в одном экземпляре.
func totalAmount(items []model.OrderItem) float64 {
	var total float64
	for _, item := range items {
		price := defaultUnitPrice
		if item.Price != nil {
			price = *item.Price
		}
		quantity := defaultQuantity
		if item.Quantity != nil {
			quantity = *item.Quantity
		}
		total += price * float64(quantity)
	}
	return total
}
