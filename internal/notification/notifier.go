// Package notification доставка уведомлений участникам занятий
package notification

import (
	"context"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"go.uber.org/zap"
)

// Ключи Payload
const (
	KeySessionID    = "session_id"
	KeyStart        = "start" // RFC3339
	KeyEnd          = "end"   // RFC3339
	KeyCourse       = "course"
	KeyCounterparty = "counterparty"
	KeyReason       = "reason"
	KeyPrice        = "price" // в минимальных единицах
	KeyCurrency     = "currency"
	KeyAlternatives = "alternatives" // через ";", каждая "start/end" в RFC3339
)

// Notifier отправка без ожидания результата: ошибки доставки только логируются
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Deliverer синхронная доставка с ошибкой, используется воркером очереди
type Deliverer interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// LogNotifier пишет уведомления в лог. Используется, когда токен бота не задан.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg model.Notification) {
	n.logger.Info("Notification",
		zap.Int64("user_id", msg.UserID),
		zap.String("event", string(msg.Event)),
		zap.String("text", Render(msg)))
}

func (n *LogNotifier) Deliver(ctx context.Context, msg model.Notification) error {
	n.Notify(ctx, msg)
	return nil
}
