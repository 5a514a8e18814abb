package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"strconv"
)

const (
	fraudRounds         = 10000
	highAmountRounds    = 1000
	highAmountThreshold = 1000
	highAmountPenalty   = 5
)

// FraudScore вычисляет оценку риска мошенничества в диапазоне [0, 100).
// Алгоритм нарочито тяжёлый по CPU: хеширование атрибутов платежа в цикле
// имитирует полноценный анализ паттернов транзакций.
func FraudScore(paymentID string, amount float64) int {
	score := 0

	for i := 0; i < fraudRounds; i++ {
		data := paymentID + strconv.Itoa(i) + strconv.FormatFloat(rand.Float64(), 'f', -1, 64)
		sum := sha256.Sum256([]byte(data))
		digest := hex.EncodeToString(sum[:])
		for _, c := range digest[:10] {
			if c >= '0' && c <= '9' {
				score++
			}
		}
	}

	if amount > highAmountThreshold {
		encoded := []byte(strconv.FormatFloat(amount, 'f', -1, 64))
		for i := 0; i < highAmountRounds; i++ {
			sha256.Sum256(encoded)
		}
		score += highAmountPenalty
	}

	return score % 100
}
