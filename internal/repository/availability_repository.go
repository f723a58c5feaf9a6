package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AvailabilityRepository недельная доступность учителей, одна строка на учителя
type AvailabilityRepository struct {
	*base.Repository
	logger *zap.Logger
}

// NewAvailabilityRepository создаёт новый репозиторий
func NewAvailabilityRepository(pool *pgxpool.Pool, logger *zap.Logger) *AvailabilityRepository {
	return &AvailabilityRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

// GetByTeacherID возвращает nil, nil если учитель ещё не сохранял расписание
func (r *AvailabilityRepository) GetByTeacherID(ctx context.Context, teacherID int64) (*model.WeeklyAvailability, error) {
	query := `
		SELECT teacher_id, timezone, days, updated_at
		FROM teacher_availability
		WHERE teacher_id = $1
	`

	var avail model.WeeklyAvailability
	err := r.Pool().QueryRow(ctx, query, teacherID).Scan(
		&avail.TeacherID,
		&avail.Timezone,
		&avail.Days,
		&avail.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability: %w", err)
	}

	return &avail, nil
}

// Upsert полностью заменяет расписание учителя
func (r *AvailabilityRepository) Upsert(ctx context.Context, avail *model.WeeklyAvailability) error {
	query := `
		INSERT INTO teacher_availability (teacher_id, timezone, days, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (teacher_id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
			days = EXCLUDED.days,
			updated_at = NOW()
		RETURNING updated_at
	`

	err := r.Pool().QueryRow(ctx, query, avail.TeacherID, avail.Timezone, avail.Days).Scan(&avail.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert availability",
			zap.Int64("teacher_id", avail.TeacherID),
			zap.Error(err))
		return fmt.Errorf("upsert availability: %w", err)
	}

	return nil
}
