// Package repository содержит реализацию доступа к данным в PostgreSQL:
// реляционное хранилище заказов, таблицу фактов аналитического хранилища
// и хранилище платёжных транзакций.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ отсутствует в реляционном хранилище.
var ErrOrderNotFound = errors.New("order not found")

// orderTTL — срок жизни записи заказа в быстром хранилище.
const orderTTL = 24 * time.Hour

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateOrder сохраняет заказ в реляционном хранилище. Повторная вставка
// того же заказа не является ошибкой: быстрое хранилище авторитетно,
// реляционная запись — подстраховка для долговременного хранения.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.OrderRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO orders (order_id, customer_id, store_id, total_amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (order_id) DO NOTHING`,
		order.OrderID, order.CustomerID, order.StoreID, order.TotalAmount,
		string(order.Status), time.Unix(order.CreatedAt, 0).UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder возвращает заказ из реляционного хранилища. Состав позиций в
// реляционном хранилище не хранится, поэтому в записи заполнены только
// агрегированные поля.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*model.OrderRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT order_id, customer_id, store_id, total_amount, status, created_at
		 FROM orders
		 WHERE order_id = $1`,
		orderID,
	)

	var (
		order     model.OrderRecord
		status    string
		createdAt time.Time
	)
	err := row.Scan(&order.OrderID, &order.CustomerID, &order.StoreID, &order.TotalAmount, &status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Status = model.OrderStatus(status)
	order.CreatedAt = createdAt.Unix()
	order.TTL = createdAt.Add(orderTTL).Unix()

	return &order, nil
}

// InsertFacts загружает пакет строк фактов в аналитическое хранилище одной
// пакетной вставкой. Пакет записывается целиком либо не записывается вовсе.
func (r *PostgresRepository) InsertFacts(ctx context.Context, rows []model.FactRow) error {
	if len(rows) == 0 {
		return nil
	}

	src := make([][]any, 0, len(rows))
	for _, f := range rows {
		src = append(src, []any{
			f.OrderID, f.CustomerID, f.StoreID, f.TotalAmount,
			f.ItemCount, f.EventType, f.EventTimestamp,
		})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"fact_orders"},
		[]string{"order_id", "customer_id", "store_id", "total_amount", "item_count", "event_type", "event_timestamp"},
		pgx.CopyFromRows(src),
	)
	if err != nil {
		return fmt.Errorf("copy facts: %w", err)
	}

	return nil
}

// SaveTransaction сохраняет платёжную транзакцию по ключу transaction_id.
// Повторная доставка того же платежа порождает тот же идентификатор,
// поэтому нарушение уникальности трактуется как успешная повторная запись.
func (r *PostgresRepository) SaveTransaction(ctx context.Context, tx model.Transaction) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transactions
		 (transaction_id, payment_id, order_id, customer_id, amount, payment_method, authorization_code, fraud_score, status, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.TransactionID, tx.PaymentID, tx.OrderID, tx.CustomerID, tx.Amount,
		tx.PaymentMethod, tx.AuthorizationCode, tx.FraudScore, string(tx.Status), tx.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
