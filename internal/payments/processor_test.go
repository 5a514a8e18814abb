package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/metrics"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
)

type stubStore struct {
	saved   map[string]model.Transaction
	saveErr error
	// failAfter — число успешных сохранений до начала отказов; -1 отключает.
	failAfter int
}

func newStubStore() *stubStore {
	return &stubStore{saved: make(map[string]model.Transaction), failAfter: -1}
}

func (s *stubStore) SaveTransaction(ctx context.Context, txn model.Transaction) error {
	if s.saveErr != nil && (s.failAfter < 0 || len(s.saved) >= s.failAfter) {
		return s.saveErr
	}
	// Повторное сохранение того же идентификатора молча пропускается,
	// как в реальном хранилище.
	if _, ok := s.saved[txn.TransactionID]; ok {
		return nil
	}
	s.saved[txn.TransactionID] = txn
	return nil
}

func newTestProcessor(store TransactionStore) (*Processor, *metrics.Payments) {
	m := metrics.NewPayments("test")
	p := NewProcessor(store, m, zap.NewNop())
	p.scoreFn = func(paymentID string, amount float64) int { return 10 }
	p.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }
	p.cold = false
	return p, m
}

func paymentBody(t *testing.T, msg model.PaymentMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal payment: %v", err)
	}
	return body
}

func testPayment(id string) model.PaymentMessage {
	return model.PaymentMessage{
		PaymentID:     id,
		OrderID:       "ord-1",
		CustomerID:    "cust-1",
		Amount:        25.99,
		PaymentMethod: "credit_card",
	}
}

func TestProcessBatch_Success(t *testing.T) {
	store := newStubStore()
	p, m := newTestProcessor(store)

	bodies := [][]byte{
		paymentBody(t, testPayment("pay-1")),
		paymentBody(t, testPayment("pay-2")),
	}

	res, handled, err := p.ProcessBatch(context.Background(), bodies)
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if handled != 2 || res.Processed != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: handled=%d %+v", handled, res)
	}
	if got := testutil.ToFloat64(m.Processed); got != 2 {
		t.Fatalf("processed metric = %v, want 2", got)
	}

	txn, ok := store.saved["txn-pay-1"]
	if !ok {
		t.Fatalf("transaction txn-pay-1 not stored")
	}
	if txn.Status != model.TransactionStatusCompleted {
		t.Fatalf("status = %q, want completed", txn.Status)
	}
	if len(txn.AuthorizationCode) != 12 {
		t.Fatalf("authorization code length = %d, want 12", len(txn.AuthorizationCode))
	}
}

func TestProcessBatch_DeterministicTransaction(t *testing.T) {
	store := newStubStore()
	p, _ := newTestProcessor(store)

	first := p.buildTransaction(testPayment("pay-7"))
	second := p.buildTransaction(testPayment("pay-7"))

	if first.TransactionID != "txn-pay-7" {
		t.Fatalf("transaction id = %q", first.TransactionID)
	}
	if first.TransactionID != second.TransactionID || first.AuthorizationCode != second.AuthorizationCode {
		t.Fatalf("redelivery must derive the same transaction: %+v vs %+v", first, second)
	}
}

func TestProcessBatch_DuplicateDeliveryStoresOnce(t *testing.T) {
	store := newStubStore()
	p, _ := newTestProcessor(store)

	body := paymentBody(t, testPayment("pay-dup"))

	for i := 0; i < 2; i++ {
		if _, _, err := p.ProcessBatch(context.Background(), [][]byte{body}); err != nil {
			t.Fatalf("ProcessBatch error: %v", err)
		}
	}

	if len(store.saved) != 1 {
		t.Fatalf("stored transactions = %d, want 1", len(store.saved))
	}
}

func TestProcessBatch_HighScoreFlagsTransaction(t *testing.T) {
	store := newStubStore()
	p, _ := newTestProcessor(store)
	p.scoreFn = func(paymentID string, amount float64) int { return 81 }

	if _, _, err := p.ProcessBatch(context.Background(), [][]byte{paymentBody(t, testPayment("pay-risky"))}); err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}

	if got := store.saved["txn-pay-risky"].Status; got != model.TransactionStatusFlagged {
		t.Fatalf("status = %q, want flagged_for_review", got)
	}
}

func TestProcessBatch_ScoreAtThresholdFlagged(t *testing.T) {
	store := newStubStore()
	p, _ := newTestProcessor(store)
	p.scoreFn = func(paymentID string, amount float64) int { return 80 }

	if _, _, err := p.ProcessBatch(context.Background(), [][]byte{paymentBody(t, testPayment("pay-edge"))}); err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}

	if got := store.saved["txn-pay-edge"].Status; got != model.TransactionStatusFlagged {
		t.Fatalf("status = %q, want flagged_for_review: score 80 is already suspicious", got)
	}
}

func TestProcessBatch_ScoreBelowThresholdCompletes(t *testing.T) {
	store := newStubStore()
	p, _ := newTestProcessor(store)
	p.scoreFn = func(paymentID string, amount float64) int { return 79 }

	if _, _, err := p.ProcessBatch(context.Background(), [][]byte{paymentBody(t, testPayment("pay-safe"))}); err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}

	if got := store.saved["txn-pay-safe"].Status; got != model.TransactionStatusCompleted {
		t.Fatalf("status = %q, want completed", got)
	}
}

func TestProcessBatch_InvalidMessagesSkipped(t *testing.T) {
	store := newStubStore()
	p, m := newTestProcessor(store)

	missingAmount := testPayment("pay-no-amount")
	missingAmount.Amount = 0

	bodies := [][]byte{
		[]byte("{not json"),
		paymentBody(t, missingAmount),
		paymentBody(t, testPayment("pay-ok")),
	}

	res, handled, err := p.ProcessBatch(context.Background(), bodies)
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if handled != 3 || res.Processed != 1 || res.Failed != 2 {
		t.Fatalf("unexpected result: handled=%d %+v", handled, res)
	}
	if got := testutil.ToFloat64(m.Failed); got != 2 {
		t.Fatalf("failed metric = %v, want 2", got)
	}
	if _, ok := store.saved["txn-pay-no-amount"]; ok {
		t.Fatalf("invalid payment must not be persisted")
	}
}

func TestProcessBatch_StoreFailureStopsBatch(t *testing.T) {
	store := newStubStore()
	store.saveErr = errors.New("store unavailable")
	store.failAfter = 1
	p, _ := newTestProcessor(store)

	bodies := [][]byte{
		paymentBody(t, testPayment("pay-1")),
		paymentBody(t, testPayment("pay-2")),
		paymentBody(t, testPayment("pay-3")),
	}

	res, handled, err := p.ProcessBatch(context.Background(), bodies)
	if err == nil {
		t.Fatalf("expected error from store failure")
	}
	if handled != 1 {
		t.Fatalf("handled = %d, want 1: only the stored message may be acknowledged", handled)
	}
	if res.Processed != 1 {
		t.Fatalf("processed = %d, want 1", res.Processed)
	}
	if len(store.saved) != 1 {
		t.Fatalf("stored transactions = %d, want 1", len(store.saved))
	}
}

func TestProcessBatch_ColdStartOnce(t *testing.T) {
	store := newStubStore()
	m := metrics.NewPayments("test")
	p := NewProcessor(store, m, zap.NewNop())
	p.scoreFn = func(paymentID string, amount float64) int { return 10 }

	res, _, err := p.ProcessBatch(context.Background(), [][]byte{paymentBody(t, testPayment("pay-1"))})
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if !res.ColdStart {
		t.Fatalf("first batch must report a cold start")
	}

	res, _, err = p.ProcessBatch(context.Background(), [][]byte{paymentBody(t, testPayment("pay-2"))})
	if err != nil {
		t.Fatalf("ProcessBatch error: %v", err)
	}
	if res.ColdStart {
		t.Fatalf("subsequent batches must not report a cold start")
	}
	if got := testutil.ToFloat64(m.ColdStarts); got != 1 {
		t.Fatalf("cold starts metric = %v, want 1", got)
	}
}
