// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"strings"

	"github.com/mmeshcher/cloudcafe-pipeline/internal/model"
)

// maxPaymentAmount — верхняя граница суммы платежа включительно.
const maxPaymentAmount = 10000

var (
	// ErrMissingField возвращается, если в платёжном сообщении отсутствует
	// обязательное поле.
	ErrMissingField = errors.New("missing required payment field")
	// ErrInvalidAmount возвращается, если сумма платежа вне допустимого
	// диапазона (0, 10000].
	ErrInvalidAmount = errors.New("payment amount out of range")
)

// ValidatePayment проверяет платёжное сообщение: все обязательные поля
// заполнены, сумма строго положительна и не превышает верхнюю границу.
func ValidatePayment(msg model.PaymentMessage) error {
	for _, field := range []string{msg.PaymentID, msg.OrderID, msg.CustomerID, msg.PaymentMethod} {
		if strings.TrimSpace(field) == "" {
			return ErrMissingField
		}
	}
	if msg.Amount <= 0 || msg.Amount > maxPaymentAmount {
		return ErrInvalidAmount
	}
	return nil
}
