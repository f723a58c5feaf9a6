package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/schedule"
	"github.com/Freeeeeet/tutor_booking/internal/settings"
	"go.uber.org/zap"
)

// AvailabilityService недельная доступность учителей
type AvailabilityService struct {
	repo     AvailabilityRepository
	settings *settings.Settings
	logger   *zap.Logger
}

func NewAvailabilityService(repo AvailabilityRepository, cfg *settings.Settings, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		repo:     repo,
		settings: cfg,
		logger:   logger,
	}
}

// Get возвращает доступность учителя. Для учителя без сохранённого расписания
// возвращается неделя из выключенных дней.
func (s *AvailabilityService) Get(ctx context.Context, teacherID int64) (*model.WeeklyAvailability, error) {
	avail, err := s.repo.GetByTeacherID(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	if avail == nil {
		return model.DefaultWeeklyAvailability(teacherID, s.defaultTimezone()), nil
	}

	return fillWeek(avail), nil
}

// Set полностью заменяет доступность учителя. При любой ошибке валидации ничего не пишется.
func (s *AvailabilityService) Set(ctx context.Context, teacherID int64, input *model.WeeklyAvailability) (*model.WeeklyAvailability, error) {
	avail, err := s.normalize(teacherID, input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, avail); err != nil {
		return nil, fmt.Errorf("save availability: %w", err)
	}

	s.logger.Info("Availability saved",
		zap.Int64("teacher_id", teacherID),
		zap.String("timezone", avail.Timezone),
		zap.Int("enabled_days", enabledDays(avail)))

	return avail, nil
}

func (s *AvailabilityService) defaultTimezone() string {
	if s.settings == nil {
		return "UTC"
	}
	return s.settings.String(settings.KeyDefaultTimezone, "UTC")
}

// normalize проверяет ввод и приводит его к 7 дням в порядке Пн..Вс с отсортированными интервалами
func (s *AvailabilityService) normalize(teacherID int64, input *model.WeeklyAvailability) (*model.WeeklyAvailability, error) {
	if teacherID <= 0 {
		return nil, model.NewValidationError("teacher_id", "must be positive")
	}
	if input == nil {
		return nil, model.NewValidationError("availability", "is required")
	}

	tz := input.Timezone
	if tz == "" {
		tz = s.defaultTimezone()
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, model.NewValidationError("timezone", fmt.Sprintf("unknown timezone %q", tz))
	}

	byWeekday := make(map[time.Weekday]model.DayAvailability, len(input.Days))
	for i, day := range input.Days {
		field := fmt.Sprintf("days[%d]", i)

		if day.Weekday < time.Sunday || day.Weekday > time.Saturday {
			return nil, model.NewValidationError(field+".weekday", fmt.Sprintf("invalid weekday %d", day.Weekday))
		}
		if _, dup := byWeekday[day.Weekday]; dup {
			return nil, model.NewValidationError(field+".weekday", fmt.Sprintf("duplicate weekday %s", day.Weekday))
		}
		if !day.Enabled && len(day.Ranges) > 0 {
			return nil, model.NewValidationError(field+".ranges", "disabled day must have no ranges")
		}
		if err := schedule.ValidateRanges(field+".ranges", day.Ranges); err != nil {
			return nil, err
		}

		ranges := slices.Clone(day.Ranges)
		slices.SortFunc(ranges, func(a, b model.TimeRange) int { return int(a.Start - b.Start) })
		if ranges == nil {
			ranges = []model.TimeRange{}
		}
		byWeekday[day.Weekday] = model.DayAvailability{
			Weekday: day.Weekday,
			Enabled: day.Enabled,
			Ranges:  ranges,
		}
	}

	avail := model.DefaultWeeklyAvailability(teacherID, tz)
	for i, wd := range model.WeekOrder {
		if day, ok := byWeekday[wd]; ok {
			avail.Days[i] = day
		}
	}
	return avail, nil
}

// fillWeek дополняет сохранённое расписание отсутствующими днями
func fillWeek(stored *model.WeeklyAvailability) *model.WeeklyAvailability {
	avail := model.DefaultWeeklyAvailability(stored.TeacherID, stored.Timezone)
	avail.UpdatedAt = stored.UpdatedAt
	for i, wd := range model.WeekOrder {
		if day, ok := stored.Day(wd); ok {
			if day.Ranges == nil {
				day.Ranges = []model.TimeRange{}
			}
			avail.Days[i] = day
		}
	}
	return avail
}

func enabledDays(avail *model.WeeklyAvailability) int {
	n := 0
	for _, d := range avail.Days {
		if d.Enabled {
			n++
		}
	}
	return n
}
