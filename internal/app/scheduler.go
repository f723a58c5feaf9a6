package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job фоновая задача, возвращает число обработанных записей
type Job func(ctx context.Context) (int, error)

// Jobs задачи обслуживания занятий
type Jobs interface {
	CompleteFinished(ctx context.Context) (int, error)
	RetryRefunds(ctx context.Context) (int, error)
	ExpireStaleRequests(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler создаёт новый планировщик
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		logger:  logger,
		timeout: 5 * time.Minute,
	}
}

// Register добавляет задачи обслуживания занятий
func (s *Scheduler) Register(jobs Jobs) error {
	entries := []struct {
		spec string
		name string
		job  Job
	}{
		{"@every 5m", "complete_finished", jobs.CompleteFinished},
		{"@every 15m", "retry_refunds", jobs.RetryRefunds},
		{"@every 10m", "expire_requests", jobs.ExpireStaleRequests},
	}

	for _, e := range entries {
		if err := s.Add(e.spec, e.name, e.job); err != nil {
			return err
		}
	}
	return nil
}

// Add регистрирует задачу по cron-выражению
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		s.logger.Error("Failed to schedule job", zap.String("job", name), zap.Error(err))
		return err
	}
	return nil
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler")
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения запущенных задач
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(name string, job Job) {
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	started := time.Now()
	n, err := job(ctx)
	if err != nil {
		s.logger.Error("Background job failed", zap.String("job", name), zap.Error(err))
		return
	}

	if n > 0 {
		s.logger.Info("Background job completed",
			zap.String("job", name),
			zap.Int("processed", n),
			zap.Duration("took", time.Since(started)))
	}
}
