// Package payments реализует обработчик платёжных сообщений: валидацию,
// авторизацию через платёжный шлюз, оценку риска мошенничества и запись
// транзакций в хранилище.
package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/metrics"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
	"github.com/mmeshcher/cloudcafe-pipeline/internal/validation"
)

// Порог оценки риска: транзакции с оценкой не ниже порога отправляются
// на ручную проверку.
const flagThreshold = 80

const warmUpRounds = 100000

// TransactionStore описывает контракт хранилища платёжных транзакций.
// Повторное сохранение транзакции с тем же идентификатором не считается
// ошибкой: идемпотентность обеспечивает хранилище.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txn model.Transaction) error
}

// Result — итог обработки одного пакета платёжных сообщений.
type Result struct {
	Processed int
	Failed    int
	ColdStart bool
	Duration  time.Duration
}

// Processor обрабатывает пакеты платёжных сообщений. Экземпляр не
// потокобезопасен: пакеты подаются последовательно одним потребителем.
type Processor struct {
	store   TransactionStore
	metrics *metrics.Payments
	logger  *zap.Logger

	scoreFn func(paymentID string, amount float64) int
	now     func() time.Time

	cold bool
}

// NewProcessor создаёт обработчик платежей. Первый вызов ProcessBatch
// выполняет холодную инициализацию.
func NewProcessor(store TransactionStore, m *metrics.Payments, logger *zap.Logger) *Processor {
	return &Processor{
		store:   store,
		metrics: m,
		logger:  logger,
		scoreFn: FraudScore,
		now:     time.Now,
		cold:    true,
	}
}

// ProcessBatch обрабатывает пакет тел сообщений по порядку. Сообщения с
// нечитаемым телом или непрошедшие валидацию учитываются как неуспешные и
// пропускаются. Отказ хранилища прерывает пакет: возвращается число
// обработанных к этому моменту сообщений и ошибка, чтобы вызывающий код
// подтвердил только их и завершился для повторной доставки остатка.
func (p *Processor) ProcessBatch(ctx context.Context, bodies [][]byte) (Result, int, error) {
	start := time.Now()

	res := Result{ColdStart: p.cold}
	if p.cold {
		p.cold = false
		p.metrics.ColdStarts.Inc()
		p.warmUp()
	}

	handled := 0
	for _, body := range bodies {
		var msg model.PaymentMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			res.Failed++
			p.metrics.Failed.Inc()
			p.logger.Warn("unreadable payment message skipped", zap.Error(err))
			handled++
			continue
		}

		if err := validation.ValidatePayment(msg); err != nil {
			res.Failed++
			p.metrics.Failed.Inc()
			p.logger.Warn("invalid payment skipped",
				zap.String("payment", msg.PaymentID),
				zap.Error(err),
			)
			handled++
			continue
		}

		txn := p.buildTransaction(msg)
		if err := p.store.SaveTransaction(ctx, txn); err != nil {
			res.Duration = time.Since(start)
			return res, handled, fmt.Errorf("save transaction %s: %w", txn.TransactionID, err)
		}

		res.Processed++
		p.metrics.Processed.Inc()
		handled++

		if txn.Status == model.TransactionStatusFlagged {
			p.logger.Warn("payment flagged for review",
				zap.String("payment", msg.PaymentID),
				zap.Int("fraud_score", txn.FraudScore),
			)
		}
	}

	res.Duration = time.Since(start)
	p.metrics.BatchDuration.Observe(res.Duration.Seconds())
	p.logger.Info("payment batch processed",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Bool("cold_start", res.ColdStart),
		zap.Duration("duration", res.Duration),
	)

	return res, handled, nil
}

// buildTransaction авторизует платёж и собирает запись транзакции.
// Идентификатор транзакции и код авторизации детерминированно выводятся из
// идентификатора платежа, поэтому повторная доставка даёт ту же запись.
func (p *Processor) buildTransaction(msg model.PaymentMessage) model.Transaction {
	sum := sha256.Sum256([]byte(msg.PaymentID))
	authCode := hex.EncodeToString(sum[:])[:12]

	score := p.scoreFn(msg.PaymentID, msg.Amount)
	status := model.TransactionStatusCompleted
	if score >= flagThreshold {
		status = model.TransactionStatusFlagged
	}

	return model.Transaction{
		TransactionID:     "txn-" + msg.PaymentID,
		PaymentID:         msg.PaymentID,
		OrderID:           msg.OrderID,
		CustomerID:        msg.CustomerID,
		Amount:            msg.Amount,
		PaymentMethod:     msg.PaymentMethod,
		AuthorizationCode: authCode,
		FraudScore:        score,
		Status:            status,
		ProcessedAt:       p.now().UTC(),
	}
}

// warmUp выполняет холодную инициализацию: прогрев имитирует загрузку
// моделей оценки риска перед первым пакетом.
func (p *Processor) warmUp() {
	p.logger.Info("cold start: initializing fraud models")
	for i := 0; i < warmUpRounds; i++ {
		sha256.Sum256([]byte(strconv.FormatFloat(rand.Float64(), 'f', -1, 64)))
	}
}
