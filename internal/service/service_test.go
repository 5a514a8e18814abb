package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/cache"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/metrics"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/repository"
)

type stubRepo struct {
	created   []model.OrderRecord
	createErr error

	getOrder *model.OrderRecord
	getErr   error
}

func (s *stubRepo) CreateOrder(ctx context.Context, order model.OrderRecord) error {
	s.created = append(s.created, order)
	return s.createErr
}

func (s *stubRepo) GetOrder(ctx context.Context, orderID string) (*model.OrderRecord, error) {
	return s.getOrder, s.getErr
}

type stubCache struct {
	saved   []model.OrderRecord
	saveErr error

	getOrder *model.OrderRecord
	getErr   error
}

func (s *stubCache) SaveOrder(ctx context.Context, order model.OrderRecord) error {
	s.saved = append(s.saved, order)
	return s.saveErr
}

func (s *stubCache) GetOrder(ctx context.Context, orderID string) (*model.OrderRecord, error) {
	return s.getOrder, s.getErr
}

type stubPublisher struct {
	events     []model.OrderEvent
	publishErr error
}

func (s *stubPublisher) PublishOrderEvent(ctx context.Context, event model.OrderEvent) error {
	s.events = append(s.events, event)
	return s.publishErr
}

func newTestService(repo *stubRepo, c *stubCache, p *stubPublisher) *Service {
	return NewService(repo, c, p, metrics.NewIngress("test"), zap.NewNop())
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestTotalAmount(t *testing.T) {
	tests := []struct {
		name  string
		items []model.OrderItem
		want  float64
	}{
		{
			name: "prices and quantities present",
			items: []model.OrderItem{
				{ItemID: "latte", Price: floatPtr(5), Quantity: intPtr(2)},
				{ItemID: "bagel", Price: floatPtr(3), Quantity: intPtr(1)},
			},
			want: 13.0,
		},
		{
			name: "missing price defaults to fallback",
			items: []model.OrderItem{
				{ItemID: "latte", Quantity: intPtr(2)},
			},
			want: 10.0,
		},
		{
			name: "missing quantity defaults to one",
			items: []model.OrderItem{
				{ItemID: "latte", Price: floatPtr(4.5)},
			},
			want: 4.5,
		},
		{
			name: "explicit zero price is honored",
			items: []model.OrderItem{
				{ItemID: "freebie", Price: floatPtr(0), Quantity: intPtr(3)},
			},
			want: 0,
		},
		{
			name:  "empty order",
			items: nil,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := totalAmount(tt.items); got != tt.want {
				t.Fatalf("totalAmount = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateOrder_Success(t *testing.T) {
	repo := &stubRepo{}
	c := &stubCache{}
	p := &stubPublisher{}
	svc := newTestService(repo, c, p)

	order, err := svc.CreateOrder(context.Background(), "cust-1", "7", []model.OrderItem{
		{ItemID: "latte", Price: floatPtr(5), Quantity: intPtr(2)},
		{ItemID: "bagel", Price: floatPtr(3), Quantity: intPtr(1)},
	})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	if order.TotalAmount != 13.0 {
		t.Fatalf("TotalAmount = %v, want 13.0", order.TotalAmount)
	}
	if order.Status != model.OrderStatusPending {
		t.Fatalf("Status = %q, want %q", order.Status, model.OrderStatusPending)
	}
	if order.OrderID == "" {
		t.Fatalf("order id must be generated")
	}
	if order.TTL != order.CreatedAt+86400 {
		t.Fatalf("TTL = %d, want created_at + 24h", order.TTL)
	}

	if len(c.saved) != 1 {
		t.Fatalf("fast store writes = %d, want 1", len(c.saved))
	}
	if len(repo.created) != 1 {
		t.Fatalf("relational writes = %d, want 1", len(repo.created))
	}
	if len(p.events) != 1 {
		t.Fatalf("published events = %d, want 1", len(p.events))
	}
	if p.events[0].CustomerID != "cust-1" || p.events[0].ItemCount != 2 {
		t.Fatalf("unexpected event: %+v", p.events[0])
	}
}

func TestCreateOrder_MissingCustomer(t *testing.T) {
	c := &stubCache{}
	svc := newTestService(&stubRepo{}, c, &stubPublisher{})

	_, err := svc.CreateOrder(context.Background(), "  ", "7", nil)
	if !errors.Is(err, ErrCustomerRequired) {
		t.Fatalf("expected ErrCustomerRequired, got %v", err)
	}
	if len(c.saved) != 0 {
		t.Fatalf("no writes expected for invalid request")
	}
}

func TestCreateOrder_FastStoreFailureAborts(t *testing.T) {
	repo := &stubRepo{}
	c := &stubCache{saveErr: errors.New("redis down")}
	p := &stubPublisher{}
	svc := newTestService(repo, c, p)

	_, err := svc.CreateOrder(context.Background(), "cust-1", "7", nil)
	if err == nil {
		t.Fatalf("expected error when authoritative write fails")
	}
	if len(repo.created) != 0 || len(p.events) != 0 {
		t.Fatalf("no downstream writes expected after fast store failure")
	}
}

func TestCreateOrder_DownstreamFailuresSwallowed(t *testing.T) {
	repo := &stubRepo{createErr: errors.New("rds unavailable")}
	c := &stubCache{}
	p := &stubPublisher{publishErr: errors.New("log unavailable")}
	svc := newTestService(repo, c, p)

	order, err := svc.CreateOrder(context.Background(), "cust-1", "7", []model.OrderItem{{ItemID: "latte"}})
	if err != nil {
		t.Fatalf("CreateOrder must succeed despite downstream failures, got %v", err)
	}
	if order.TotalAmount != 5.0 {
		t.Fatalf("TotalAmount = %v, want default unit price", order.TotalAmount)
	}
}

func TestGetOrder_FastStoreHit(t *testing.T) {
	c := &stubCache{getOrder: &model.OrderRecord{OrderID: "ord-1"}}
	repo := &stubRepo{getErr: errors.New("must not be called")}
	svc := newTestService(repo, c, &stubPublisher{})

	order, err := svc.GetOrder(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("GetOrder error: %v", err)
	}
	if order.OrderID != "ord-1" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestGetOrder_FallsBackToRepository(t *testing.T) {
	c := &stubCache{getErr: cache.ErrOrderNotCached}
	repo := &stubRepo{getOrder: &model.OrderRecord{OrderID: "ord-2"}}
	svc := newTestService(repo, c, &stubPublisher{})

	order, err := svc.GetOrder(context.Background(), "ord-2")
	if err != nil {
		t.Fatalf("GetOrder error: %v", err)
	}
	if order.OrderID != "ord-2" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestGetOrder_NotFoundAnywhere(t *testing.T) {
	c := &stubCache{getErr: cache.ErrOrderNotCached}
	repo := &stubRepo{getErr: repository.ErrOrderNotFound}
	svc := newTestService(repo, c, &stubPublisher{})

	_, err := svc.GetOrder(context.Background(), "missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
