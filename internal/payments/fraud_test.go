package payments

import "testing"

func TestFraudScore_WithinRange(t *testing.T) {
	payments := []struct {
		id     string
		amount float64
	}{
		{"pay-1", 25.99},
		{"pay-2", 1500},
		{"pay-3", 9999.99},
		{"", 1},
	}

	for _, p := range payments {
		score := FraudScore(p.id, p.amount)
		if score < 0 || score >= 100 {
			t.Fatalf("FraudScore(%q, %v) = %d, want [0, 100)", p.id, p.amount, score)
		}
	}
}
