package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notification"
	"github.com/Freeeeeet/tutor_booking/internal/settings"
	"go.uber.org/zap"
)

// Фоновые задачи. Запускаются планировщиком, каждая возвращает число обработанных занятий.

// CompleteFinished переводит в completed принятые занятия, которые уже закончились
func (o *Orchestrator) CompleteFinished(ctx context.Context) (int, error) {
	now := o.clock()
	sessions, err := o.bookings.Find(ctx, model.SessionFilter{
		Statuses:    []model.SessionStatus{model.SessionStatusAccepted},
		EndedBefore: &now,
	})
	if err != nil {
		return 0, fmt.Errorf("find finished sessions: %w", err)
	}

	done := 0
	for _, session := range sessions {
		if _, err := o.Complete(ctx, session.ID); err != nil {
			o.logger.Warn("Failed to complete session",
				zap.String("session_id", session.ID.String()),
				zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

// RetryRefunds повторяет возвраты по занятиям с RefundStatusFailed
func (o *Orchestrator) RetryRefunds(ctx context.Context) (int, error) {
	failed := model.RefundStatusFailed
	sessions, err := o.bookings.Find(ctx, model.SessionFilter{
		Statuses:     []model.SessionStatus{model.SessionStatusCancelled},
		RefundStatus: &failed,
	})
	if err != nil {
		return 0, fmt.Errorf("find failed refunds: %w", err)
	}

	refunded := 0
	for _, session := range sessions {
		if updated := o.refund(ctx, session); updated.RefundStatus == model.RefundStatusRefunded {
			refunded++
		}
	}
	return refunded, nil
}

// ExpireStaleRequests отменяет запросы, на которые учитель не ответил за
// settings.KeyRequestTTL. При нулевом TTL ничего не делает.
func (o *Orchestrator) ExpireStaleRequests(ctx context.Context) (int, error) {
	ttl := o.requestTTL()
	if ttl <= 0 {
		return 0, nil
	}

	cutoff := o.clock().Add(-ttl)
	sessions, err := o.bookings.Find(ctx, model.SessionFilter{
		Statuses:      []model.SessionStatus{model.SessionStatusRequested},
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("find stale requests: %w", err)
	}

	expired := 0
	for _, session := range sessions {
		updated, err := o.bookings.Expire(ctx, session.ID)
		if err != nil {
			o.logger.Warn("Failed to expire request",
				zap.String("session_id", session.ID.String()),
				zap.Error(err))
			continue
		}
		updated = o.refund(ctx, updated)

		recipients := append([]int64{updated.TeacherID}, updated.StudentIDs()...)
		o.notify(ctx, updated, model.EventSessionCancelled, recipients, 0, map[string]string{
			notification.KeyReason: ReasonExpired,
		})
		expired++
	}
	return expired, nil
}

func (o *Orchestrator) requestTTL() time.Duration {
	if o.settings == nil {
		return 0
	}
	return o.settings.Duration(settings.KeyRequestTTL, 0)
}
