package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CourseRepository struct {
	*base.Repository
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{Repository: base.NewRepository(pool)}
}

// GetByID получает курс по ID
func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*model.Course, error) {
	query := `
		SELECT id, teacher_id, name, price, currency, duration_minutes, capacity, session_type, is_active, created_at
		FROM courses
		WHERE id = $1
	`

	var course model.Course
	err := r.Pool().QueryRow(ctx, query, id).Scan(
		&course.ID,
		&course.TeacherID,
		&course.Name,
		&course.Price,
		&course.Currency,
		&course.DurationMinutes,
		&course.Capacity,
		&course.SessionType,
		&course.IsActive,
		&course.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get course by id: %w", err)
	}

	return &course, nil
}
