// Package cache реализует быстрое хранилище активных заказов на Redis.
// Запись в него авторитетна для ответа сервиса приёма заказов.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
)

// ErrOrderNotCached возвращается, если заказ отсутствует в быстром хранилище.
var ErrOrderNotCached = errors.New("order not cached")

const defaultOrderTTL = 24 * time.Hour

// OrderCache предоставляет доступ к быстрому хранилищу заказов.
type OrderCache struct {
	client *redis.Client
}

// NewOrderCache создаёт клиент быстрого хранилища и проверяет соединение.
func NewOrderCache(addr string) (*OrderCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &OrderCache{client: client}, nil
}

// Close закрывает соединение с быстрым хранилищем.
func (c *OrderCache) Close() error {
	return c.client.Close()
}

// SaveOrder сохраняет заказ с TTL, вычисленным из срока жизни записи.
func (c *OrderCache) SaveOrder(ctx context.Context, order model.OrderRecord) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	ttl := time.Duration(order.TTL-order.CreatedAt) * time.Second
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}

	if err := c.client.Set(ctx, orderKey(order.OrderID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set order: %w", err)
	}
	return nil
}

// GetOrder возвращает заказ из быстрого хранилища.
func (c *OrderCache) GetOrder(ctx context.Context, orderID string) (*model.OrderRecord, error) {
	data, err := c.client.Get(ctx, orderKey(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOrderNotCached
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	var order model.OrderRecord
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}

	return &order, nil
}

func orderKey(orderID string) string {
	return "order:" + orderID
}
