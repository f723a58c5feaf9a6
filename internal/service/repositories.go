package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/google/uuid"
)

// Репозитории, которые нужны сервисам. Реализации: internal/repository (PostgreSQL)
// и internal/repository/memory.

type AvailabilityRepository interface {
	GetByTeacherID(ctx context.Context, teacherID int64) (*model.WeeklyAvailability, error)
	Upsert(ctx context.Context, avail *model.WeeklyAvailability) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	Find(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error)
	CompareAndSet(ctx context.Context, session *model.Session) error
	Supersede(ctx context.Context, old, child *model.Session) error
}

type CourseRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Course, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// Clock источник текущего времени
type Clock func() time.Time
