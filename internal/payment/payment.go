// Package payment списание и возврат оплаты за занятия
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CaptureRequest списание с одного плательщика
type CaptureRequest struct {
	Amount         int64 // в минимальных единицах валюты
	Currency       string
	PayerRef       string
	IdempotencyKey string
	Metadata       map[string]string
}

// CaptureResult Success == false означает отказ (карта отклонена и т.п.),
// ошибка Capture означает, что результат неизвестен.
type CaptureResult struct {
	Success       bool
	TransactionID string
	Reason        string
}

type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
	Refund(ctx context.Context, transactionID string) error
}

// IdempotencyKey ключ одной попытки оплаты студента за занятие
func IdempotencyKey(sessionID uuid.UUID, studentID int64, attempt int) string {
	return fmt.Sprintf("session:%s:student:%d:attempt:%d", sessionID, studentID, attempt)
}
