package notification

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type userLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TelegramNotifier отправляет уведомления сообщениями бота.
// Лимитер держит общую скорость отправки ниже ограничений Telegram.
type TelegramNotifier struct {
	sender  messageSender
	users   userLookup
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewTelegramNotifier(sender messageSender, users userLookup, perSecond float64, logger *zap.Logger) *TelegramNotifier {
	if perSecond <= 0 {
		perSecond = 25
	}
	return &TelegramNotifier{
		sender:  sender,
		users:   users,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

// NewBot создаёт клиента Telegram без обработчиков обновлений: бот только отправляет сообщения
func NewBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, n model.Notification) {
	if err := t.Deliver(ctx, n); err != nil {
		t.logger.Error("Failed to send notification",
			zap.Int64("user_id", n.UserID),
			zap.String("event", string(n.Event)),
			zap.Error(err))
	}
}

func (t *TelegramNotifier) Deliver(ctx context.Context, n model.Notification) error {
	user, err := t.users.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if user == nil || user.TelegramID == 0 {
		t.logger.Warn("Notification recipient has no telegram id",
			zap.Int64("user_id", n.UserID),
			zap.String("event", string(n.Event)))
		return nil
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait rate limiter: %w", err)
	}

	_, err = t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    user.TelegramID,
		Text:      Render(n),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	t.logger.Debug("Notification sent",
		zap.Int64("user_id", n.UserID),
		zap.String("event", string(n.Event)))
	return nil
}
