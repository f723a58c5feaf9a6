package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeNotificationSend = "notification:send"

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier кладёт уведомления в очередь asynq, доставляет воркер
type QueueNotifier struct {
	client enqueuer
	logger *zap.Logger
}

func NewQueueNotifier(client *asynq.Client, logger *zap.Logger) *QueueNotifier {
	return &QueueNotifier{client: client, logger: logger}
}

// NewNotificationTask задача доставки одного уведомления
func NewNotificationTask(n model.Notification) (*asynq.Task, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return asynq.NewTask(TypeNotificationSend, b, asynq.MaxRetry(5)), nil
}

func (q *QueueNotifier) Notify(ctx context.Context, n model.Notification) {
	task, err := NewNotificationTask(n)
	if err != nil {
		q.logger.Error("Failed to build notification task", zap.Error(err))
		return
	}

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		q.logger.Error("Failed to enqueue notification",
			zap.Int64("user_id", n.UserID),
			zap.String("event", string(n.Event)),
			zap.Error(err))
		return
	}

	q.logger.Debug("Notification enqueued",
		zap.String("task_id", info.ID),
		zap.String("event", string(n.Event)))
}

// HandleNotificationTask обработчик задачи. Ошибка доставки возвращается,
// чтобы asynq повторил задачу; битый payload не повторяется.
func HandleNotificationTask(d Deliverer, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var n model.Notification
		if err := json.Unmarshal(task.Payload(), &n); err != nil {
			logger.Error("Invalid notification payload", zap.Error(err))
			return fmt.Errorf("unmarshal notification: %v: %w", err, asynq.SkipRetry)
		}

		return d.Deliver(ctx, n)
	}
}

// Worker воркер очереди уведомлений
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewWorker(redisOpt asynq.RedisClientOpt, d Deliverer, logger *zap.Logger) *Worker {
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"default": 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotificationSend, HandleNotificationTask(d, logger))

	return &Worker{server: server, mux: mux, logger: logger}
}

// Start запускает обработку в фоне
func (w *Worker) Start() error {
	w.logger.Info("Starting notification worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start notification worker: %w", err)
	}
	return nil
}

// Shutdown дожидается активных задач и останавливает воркер
func (w *Worker) Shutdown() {
	w.logger.Info("Stopping notification worker")
	w.server.Shutdown()
}
