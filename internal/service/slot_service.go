package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/schedule"
	"github.com/Freeeeeet/tutor_booking/internal/settings"
	"go.uber.org/zap"
)

// SlotService свободные слоты учителя
type SlotService struct {
	availability *AvailabilityService
	sessions     SessionRepository
	settings     *settings.Settings
	clock        Clock
	logger       *zap.Logger
}

func NewSlotService(
	availability *AvailabilityService,
	sessions SessionRepository,
	cfg *settings.Settings,
	clock Clock,
	logger *zap.Logger,
) *SlotService {
	return &SlotService{
		availability: availability,
		sessions:     sessions,
		settings:     cfg,
		clock:        clock,
		logger:       logger,
	}
}

// HorizonDays горизонт по умолчанию из настроек
func (s *SlotService) HorizonDays() int {
	if s.settings == nil {
		return schedule.DefaultHorizonDays
	}
	if n := s.settings.Int(settings.KeyHorizonDays, schedule.DefaultHorizonDays); n > 0 {
		return n
	}
	return schedule.DefaultHorizonDays
}

// GenerateSlots возвращает ленивую последовательность свободных слотов учителя.
// Каждый обход заново читает доступность и принятые занятия, поэтому повторный
// обход видит текущее состояние. Ошибки чтения возвращаются сразу при вызове;
// если чтение не удалось при повторном обходе, он пишет ошибку в лог и ничего не отдаёт.
// horizonDays <= 0 означает значение из настроек.
func (s *SlotService) GenerateSlots(ctx context.Context, teacherID int64, durationMinutes, horizonDays int) (iter.Seq[model.AvailableSlot], error) {
	if durationMinutes <= 0 || durationMinutes > model.MinutesPerDay {
		return nil, model.NewValidationError("duration_minutes", "must be between 1 and 1440")
	}
	if horizonDays <= 0 {
		horizonDays = s.HorizonDays()
	}

	if _, err := s.options(ctx, teacherID, durationMinutes, horizonDays); err != nil {
		return nil, err
	}

	return func(yield func(model.AvailableSlot) bool) {
		opts, err := s.options(ctx, teacherID, durationMinutes, horizonDays)
		if err != nil {
			s.logger.Error("Failed to load slot state",
				zap.Int64("teacher_id", teacherID),
				zap.Error(err))
			return
		}

		for slot := range schedule.Generate(opts.avail, opts.loc, opts.Options) {
			if !yield(slot) {
				return
			}
		}
	}, nil
}

type slotOptions struct {
	schedule.Options
	avail *model.WeeklyAvailability
	loc   *time.Location
}

// options текущее состояние учителя для генерации слотов
func (s *SlotService) options(ctx context.Context, teacherID int64, durationMinutes, horizonDays int) (*slotOptions, error) {
	avail, err := s.availability.Get(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	loc, err := avail.Location()
	if err != nil {
		return nil, fmt.Errorf("availability location: %w", err)
	}

	now := s.clock()
	busy, err := s.acceptedIntervals(ctx, teacherID, now, horizonDays)
	if err != nil {
		return nil, err
	}

	return &slotOptions{
		Options: schedule.Options{
			DurationMinutes: durationMinutes,
			HorizonDays:     horizonDays,
			Now:             now,
			Busy:            busy,
		},
		avail: avail,
		loc:   loc,
	}, nil
}

func (s *SlotService) acceptedIntervals(ctx context.Context, teacherID int64, now time.Time, horizonDays int) ([]model.Interval, error) {
	// обход может начаться с завтра, плюс сутки на разницу часовых поясов
	to := now.AddDate(0, 0, horizonDays+2)
	sessions, err := s.sessions.Find(ctx, model.SessionFilter{
		TeacherID: &teacherID,
		Statuses:  []model.SessionStatus{model.SessionStatusAccepted},
		From:      &now,
		To:        &to,
	})
	if err != nil {
		return nil, fmt.Errorf("find accepted sessions: %w", err)
	}

	busy := make([]model.Interval, 0, len(sessions))
	for _, session := range sessions {
		busy = append(busy, session.Interval())
	}
	return busy, nil
}
