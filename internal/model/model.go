// Package model содержит доменные сущности конвейера обработки заказов.
package model

import "time"

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	// OrderStatusPending присваивается заказу при создании; дальнейшие
	// переходы статуса выполняет внешняя система исполнения заказов.
	OrderStatusPending OrderStatus = "pending"
)

// OrderItem описывает одну позицию заказа. Цена и количество могут
// отсутствовать во входящем запросе; тогда при расчёте суммы применяются
// значения по умолчанию.
type OrderItem struct {
	ItemID   string   `json:"item_id"`
	Price    *float64 `json:"price,omitempty"`
	Quantity *int     `json:"quantity,omitempty"`
}

// OrderRecord описывает заказ, записанный в быстрое и реляционное хранилища.
// После создания запись не изменяется компонентами конвейера.
type OrderRecord struct {
	OrderID     string      `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	StoreID     string      `json:"store_id"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"total_amount"`
	Status      OrderStatus `json:"status"`
	CreatedAt   int64       `json:"created_at"`
	TTL         int64       `json:"ttl"`
}

// EventTypeOrderCreated — тип события о создании заказа.
const EventTypeOrderCreated = "order_created"

// OrderEvent — проекция заказа, публикуемая в журнал событий.
// Событие неизменяемо после публикации.
type OrderEvent struct {
	EventType   string      `json:"event_type"`
	Timestamp   string      `json:"timestamp"`
	OrderID     string      `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	StoreID     string      `json:"store_id"`
	Items       []OrderItem `json:"items,omitempty"`
	ItemCount   int         `json:"item_count"`
	TotalAmount float64     `json:"total_amount"`
	Status      string      `json:"status"`
	CreatedAt   int64       `json:"created_at"`
	TTL         int64       `json:"ttl"`
}

// NewOrderEvent строит событие о создании заказа с отметкой времени события.
func NewOrderEvent(order OrderRecord, now time.Time) OrderEvent {
	return OrderEvent{
		EventType:   EventTypeOrderCreated,
		Timestamp:   now.UTC().Format(time.RFC3339),
		OrderID:     order.OrderID,
		CustomerID:  order.CustomerID,
		StoreID:     order.StoreID,
		Items:       order.Items,
		ItemCount:   len(order.Items),
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
		TTL:         order.TTL,
	}
}

// FactRow — денормализованная строка для аналитического хранилища.
// На каждое корректное событие создаётся ровно одна строка.
type FactRow struct {
	OrderID        string
	CustomerID     string
	StoreID        string
	TotalAmount    float64
	ItemCount      int
	EventType      string
	EventTimestamp time.Time
}

// PaymentMessage описывает сообщение о платеже из упорядоченной очереди.
type PaymentMessage struct {
	PaymentID     string  `json:"payment_id"`
	OrderID       string  `json:"order_id"`
	CustomerID    string  `json:"customer_id"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
}

// TransactionStatus описывает терминальный статус платёжной транзакции.
type TransactionStatus string

const (
	// TransactionStatusCompleted — платёж обработан успешно.
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusFlagged — платёж отправлен на ручную проверку
	// из-за высокой оценки риска мошенничества.
	TransactionStatusFlagged TransactionStatus = "flagged_for_review"
)

// Transaction — результат обработки платёжного сообщения. Идентификатор
// транзакции детерминированно выводится из идентификатора платежа и служит
// ключом идемпотентности при повторной доставке сообщения.
type Transaction struct {
	TransactionID     string            `json:"transaction_id"`
	PaymentID         string            `json:"payment_id"`
	OrderID           string            `json:"order_id"`
	CustomerID        string            `json:"customer_id"`
	Amount            float64           `json:"amount"`
	PaymentMethod     string            `json:"payment_method"`
	AuthorizationCode string            `json:"authorization_code"`
	FraudScore        int               `json:"fraud_score"`
	Status            TransactionStatus `json:"status"`
	ProcessedAt       time.Time         `json:"processed_at"`
}
