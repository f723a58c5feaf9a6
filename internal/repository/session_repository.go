package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const sessionColumns = `id, teacher_id, student_id, course_id, start_time, end_time, capacity,
	enrolled, status, session_type, alternatives, price, currency, payment_attempts,
	refund_status, cancel_reason, parent_id, superseded_by, version, created_at, updated_at`

// SessionRepository хранит занятия. Все обновления идут через CompareAndSet по version.
type SessionRepository struct {
	*base.Repository
	logger *zap.Logger
}

func NewSessionRepository(pool *pgxpool.Pool, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

// Create сохраняет новое занятие с version = 1
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	return insertSession(ctx, r.Pool(), session)
}

// GetByID получает занятие по ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return session, nil
}

// Find выбирает занятия по фильтру, по возрастанию start_time
func (r *SessionRepository) Find(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.TeacherID != nil {
		add("teacher_id = $%d", *filter.TeacherID)
	}
	if filter.StudentID != nil {
		// инициатор или любой записанный студент
		args = append(args, *filter.StudentID)
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(student_id = $%d OR enrolled @> jsonb_build_array(jsonb_build_object('student_id', $%d::bigint)))", n, n))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if filter.From != nil {
		add("end_time > $%d", *filter.From)
	}
	if filter.To != nil {
		add("start_time < $%d", *filter.To)
	}
	if filter.EndedBefore != nil {
		add("end_time <= $%d", *filter.EndedBefore)
	}
	if filter.CreatedBefore != nil {
		add("created_at < $%d", *filter.CreatedBefore)
	}
	if filter.RefundStatus != nil {
		add("refund_status = $%d", string(*filter.RefundStatus))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time ASC"

	rows, err := r.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// CompareAndSet записывает занятие, если в базе та же version, что в session.
// При успехе session.Version увеличивается.
func (r *SessionRepository) CompareAndSet(ctx context.Context, session *model.Session) error {
	return updateSession(ctx, r.Pool(), session)
}

// Supersede в одной транзакции обновляет исходное занятие и создаёт новое
func (r *SessionRepository) Supersede(ctx context.Context, old, child *model.Session) error {
	return r.InTx(ctx, func(tx pgx.Tx) error {
		if err := updateSession(ctx, tx, old); err != nil {
			return err
		}
		return insertSession(ctx, tx, child)
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertSession(ctx context.Context, q querier, s *model.Session) error {
	query := `
		INSERT INTO sessions (id, teacher_id, student_id, course_id, start_time, end_time, capacity,
			enrolled, status, session_type, alternatives, price, currency, payment_attempts,
			refund_status, cancel_reason, parent_id, superseded_by, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1)
		RETURNING version, created_at, updated_at
	`

	err := q.QueryRow(
		ctx, query,
		s.ID,
		s.TeacherID,
		s.StudentID,
		s.CourseID,
		s.StartTime,
		s.EndTime,
		s.Capacity,
		nonNilEnrolled(s.Enrolled),
		s.Status,
		s.SessionType,
		nonNilIntervals(s.Alternatives),
		s.Price,
		s.Currency,
		s.PaymentAttempts,
		s.RefundStatus,
		s.CancelReason,
		s.ParentID,
		s.SupersededBy,
	).Scan(&s.Version, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		if base.IsExclusionViolation(err) {
			return model.ErrSlotUnavailable
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func updateSession(ctx context.Context, q querier, s *model.Session) error {
	query := `
		UPDATE sessions
		SET student_id = $3,
			start_time = $4,
			end_time = $5,
			capacity = $6,
			enrolled = $7,
			status = $8,
			alternatives = $9,
			price = $10,
			currency = $11,
			payment_attempts = $12,
			refund_status = $13,
			cancel_reason = $14,
			superseded_by = $15,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := q.QueryRow(
		ctx, query,
		s.ID,
		s.Version,
		s.StudentID,
		s.StartTime,
		s.EndTime,
		s.Capacity,
		nonNilEnrolled(s.Enrolled),
		s.Status,
		nonNilIntervals(s.Alternatives),
		s.Price,
		s.Currency,
		s.PaymentAttempts,
		s.RefundStatus,
		s.CancelReason,
		s.SupersededBy,
	).Scan(&s.Version, &s.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return model.ErrVersionConflict
		}
		if base.IsExclusionViolation(err) {
			return model.ErrSlotUnavailable
		}
		return fmt.Errorf("update session: %w", err)
	}

	return nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.TeacherID,
		&s.StudentID,
		&s.CourseID,
		&s.StartTime,
		&s.EndTime,
		&s.Capacity,
		&s.Enrolled,
		&s.Status,
		&s.SessionType,
		&s.Alternatives,
		&s.Price,
		&s.Currency,
		&s.PaymentAttempts,
		&s.RefundStatus,
		&s.CancelReason,
		&s.ParentID,
		&s.SupersededBy,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func nonNilEnrolled(items []model.Enrollment) []model.Enrollment {
	if items == nil {
		return []model.Enrollment{}
	}
	return items
}

func nonNilIntervals(items []model.Interval) []model.Interval {
	if items == nil {
		return []model.Interval{}
	}
	return items
}
