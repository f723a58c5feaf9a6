package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/lock"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReasonExpired причина отмены запроса, на который учитель не ответил вовремя
const ReasonExpired = "expired"

// CaptureFunc списывает оплату со студентов studentIDs и проставляет PaymentTxnID
// в их записях session. Успешные списания остаются в session даже при ошибке.
type CaptureFunc func(ctx context.Context, session *model.Session, studentIDs []int64) error

// casRetries сколько раз перечитываем занятие при конфликте версий
const casRetries = 3

// BookingService жизненный цикл занятия. Все изменения, которые могут создать
// пересечение, выполняются под блокировкой учителя и пишутся через CompareAndSet.
type BookingService struct {
	sessions SessionRepository
	courses  CourseRepository
	slots    *SlotService
	locker   lock.Locker
	clock    Clock
	logger   *zap.Logger
}

func NewBookingService(
	sessions SessionRepository,
	courses CourseRepository,
	slots *SlotService,
	locker lock.Locker,
	clock Clock,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		sessions: sessions,
		courses:  courses,
		slots:    slots,
		locker:   locker,
		clock:    clock,
		logger:   logger,
	}
}

// Get занятие по ID, ErrSessionNotFound если его нет
func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, model.ErrSessionNotFound
	}
	return session, nil
}

// Find занятия по фильтру
func (s *BookingService) Find(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	sessions, err := s.sessions.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	return sessions, nil
}

// Request создаёт запрос на занятие в статусе requested или записывает
// студента в существующее групповое занятие (p.SessionID).
// capture вызывается только при записи в уже принятое занятие.
func (s *BookingService) Request(ctx context.Context, p RequestParams, capture CaptureFunc) (*model.Session, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	course, err := s.courses.GetByID(ctx, p.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, model.ErrCourseNotFound
	}
	if course.TeacherID != p.TeacherID {
		return nil, model.NewValidationError("course_id", "course belongs to another teacher")
	}
	if !course.IsActive {
		return nil, model.NewValidationError("course_id", "course is not active")
	}

	requested := model.Interval{Start: p.Start, End: p.End}
	if requested.Duration() != time.Duration(course.DurationMinutes)*time.Minute {
		return nil, model.NewValidationError("end", fmt.Sprintf("slot must last %d minutes", course.DurationMinutes))
	}

	unlock, err := s.locker.Lock(ctx, lock.TeacherKey(p.TeacherID))
	if err != nil {
		return nil, fmt.Errorf("lock teacher: %w", err)
	}
	defer unlock()

	if p.SessionID != nil {
		return s.join(ctx, p, requested, capture)
	}

	slots, err := s.slots.GenerateSlots(ctx, p.TeacherID, course.DurationMinutes, 0)
	if err != nil {
		return nil, err
	}
	if !schedule.Contains(slots, requested) {
		return nil, model.ErrSlotUnavailable
	}

	busy, err := s.activeOverlapping(ctx, p.TeacherID, requested, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if len(busy) > 0 {
		return nil, model.ErrSlotUnavailable
	}

	capacity := course.Capacity
	if course.SessionType != model.SessionTypeGroup || capacity <= 0 {
		capacity = 1
	}

	now := s.clock()
	studentID := p.StudentID
	session := &model.Session{
		ID:           uuid.New(),
		TeacherID:    p.TeacherID,
		StudentID:    &studentID,
		CourseID:     course.ID,
		StartTime:    p.Start,
		EndTime:      p.End,
		Capacity:     capacity,
		Enrolled:     []model.Enrollment{{StudentID: studentID, Attendance: model.AttendancePending, EnrolledAt: now}},
		Status:       model.SessionStatusRequested,
		SessionType:  course.SessionType,
		Price:        course.Price,
		Currency:     course.Currency,
		RefundStatus: model.RefundStatusNone,
	}
	if session.SessionType == "" {
		session.SessionType = model.SessionTypeIndividual
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session requested",
		zap.String("session_id", session.ID.String()),
		zap.Int64("teacher_id", session.TeacherID),
		zap.Int64("student_id", studentID),
		zap.Time("start", session.StartTime))

	return session, nil
}

// join записывает студента в существующее занятие. Вызывается под блокировкой учителя.
func (s *BookingService) join(ctx context.Context, p RequestParams, requested model.Interval, capture CaptureFunc) (*model.Session, error) {
	session, err := s.Get(ctx, *p.SessionID)
	if err != nil {
		return nil, err
	}
	if session.TeacherID != p.TeacherID || session.CourseID != p.CourseID {
		return nil, model.NewValidationError("session_id", "session belongs to another teacher or course")
	}
	if !session.Status.IsActive() {
		return nil, &model.InvalidTransitionError{From: session.Status, Action: "join"}
	}
	if !session.Interval().Equal(requested) {
		return nil, model.ErrSlotUnavailable
	}
	if session.IsEnrolled(p.StudentID) {
		return nil, model.ErrAlreadyEnrolled
	}
	if session.IsFull() {
		return nil, model.ErrCapacityExceeded
	}

	session.Enrolled = append(session.Enrolled, model.Enrollment{
		StudentID:  p.StudentID,
		Attendance: model.AttendancePending,
		EnrolledAt: s.clock(),
	})

	if session.Status == model.SessionStatusAccepted && session.Price > 0 {
		if err := capture(ctx, session, []int64{p.StudentID}); err != nil {
			session.Enrolled = session.Enrolled[:len(session.Enrolled)-1]
			if !model.IsPaymentDeclined(err) {
				return nil, err
			}
			session.PaymentAttempts++
			if casErr := s.sessions.CompareAndSet(ctx, session); casErr != nil {
				s.logger.Error("Failed to save payment attempt",
					zap.String("session_id", session.ID.String()),
					zap.Error(casErr))
			}
			return nil, err
		}
	}

	if err := s.sessions.CompareAndSet(ctx, session); err != nil {
		return nil, fmt.Errorf("enroll student: %w", err)
	}

	s.logger.Info("Student joined session",
		zap.String("session_id", session.ID.String()),
		zap.Int64("student_id", p.StudentID),
		zap.Int("enrolled", len(session.Enrolled)),
		zap.Int("capacity", session.Capacity))

	return session, nil
}

// Respond ответ учителя: принять (с оплатой) или отклонить, возможно с альтернативами
func (s *BookingService) Respond(ctx context.Context, p RespondParams, capture CaptureFunc) (*model.Session, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	if p.Accept {
		if len(p.Alternatives) > 0 {
			return nil, model.NewValidationError("alternatives", "must be empty when accepting")
		}
		return s.Accept(ctx, p.SessionID, p.TeacherID, capture)
	}
	return s.Refuse(ctx, p.SessionID, p.TeacherID, p.Alternatives)
}

// Accept requested -> accepted. Сначала списывается оплата со всех записанных
// студентов без транзакции; если хотя бы одно списание не прошло, занятие
// остаётся в requested, успешные списания сохраняются. Счётчик попыток растёт
// только при явном отказе, при неизвестном исходе повтор идёт с прежним ключом.
func (s *BookingService) Accept(ctx context.Context, sessionID uuid.UUID, teacherID int64, capture CaptureFunc) (*model.Session, error) {
	session, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if session.TeacherID != teacherID {
		return nil, model.ErrPermissionDenied
	}
	if session.Status != model.SessionStatusRequested {
		return nil, &model.InvalidTransitionError{From: session.Status, Action: "accept"}
	}

	conflicts, err := s.acceptedOverlapping(ctx, session.TeacherID, session.Interval(), session.ID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, model.ErrSlotUnavailable
	}

	var unpaid []int64
	for _, e := range session.Enrolled {
		if e.PaymentTxnID == "" {
			unpaid = append(unpaid, e.StudentID)
		}
	}

	if session.Price > 0 && len(unpaid) > 0 {
		captureErr := capture(ctx, session, unpaid)
		if model.IsPaymentDeclined(captureErr) {
			session.PaymentAttempts++
		}
		// списания сохраняются до смены статуса, чтобы повторное принятие их не дублировало
		if err := s.sessions.CompareAndSet(ctx, session); err != nil {
			s.logger.Error("Failed to save captured payments",
				zap.String("session_id", session.ID.String()),
				zap.Strings("txns", session.CapturedTransactions()),
				zap.Error(err))
			if captureErr != nil {
				return nil, captureErr
			}
			return nil, fmt.Errorf("save payments: %w", err)
		}
		if captureErr != nil {
			s.logger.Warn("Payment failed, session stays requested",
				zap.String("session_id", session.ID.String()),
				zap.Int("attempts", session.PaymentAttempts),
				zap.Error(captureErr))
			return nil, captureErr
		}
	}

	session.Status = model.SessionStatusAccepted
	if err := s.sessions.CompareAndSet(ctx, session); err != nil {
		return nil, fmt.Errorf("accept session: %w", err)
	}

	s.logger.Info("Session accepted",
		zap.String("session_id", session.ID.String()),
		zap.Int64("teacher_id", session.TeacherID),
		zap.Int("enrolled", len(session.Enrolled)))

	return session, nil
}

// Refuse requested -> refused, или countered, если предложены альтернативы.
// Альтернативы не должны пересекаться с принятыми занятиями учителя.
func (s *BookingService) Refuse(ctx context.Context, sessionID uuid.UUID, teacherID int64, alternatives []model.Interval) (*model.Session, error) {
	session, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if session.TeacherID != teacherID {
		return nil, model.ErrPermissionDenied
	}
	if session.Status != model.SessionStatusRequested {
		return nil, &model.InvalidTransitionError{From: session.Status, Action: "refuse"}
	}

	alternatives = schedule.DedupIntervals(alternatives)
	if len(alternatives) > 0 {
		if err := s.validateAlternatives(ctx, session, alternatives); err != nil {
			return nil, err
		}
		session.Status = model.SessionStatusCountered
		session.Alternatives = alternatives
	} else {
		session.Status = model.SessionStatusRefused
	}

	if err := s.sessions.CompareAndSet(ctx, session); err != nil {
		return nil, fmt.Errorf("refuse session: %w", err)
	}

	s.logger.Info("Session refused",
		zap.String("session_id", session.ID.String()),
		zap.String("status", string(session.Status)),
		zap.Int("alternatives", len(session.Alternatives)))

	return session, nil
}

func (s *BookingService) validateAlternatives(ctx context.Context, session *model.Session, alternatives []model.Interval) error {
	now := s.clock()

	var from, to time.Time
	for i, alt := range alternatives {
		field := fmt.Sprintf("alternatives[%d]", i)
		if !alt.Valid() {
			return model.NewValidationError(field, "end must be after start")
		}
		if alt.Start.Before(now) {
			return model.NewValidationError(field, "must be in the future")
		}
		if alt.Equal(session.Interval()) {
			return model.NewValidationError(field, "must differ from the requested time")
		}
		if from.IsZero() || alt.Start.Before(from) {
			from = alt.Start
		}
		if alt.End.After(to) {
			to = alt.End
		}
	}

	accepted, err := s.sessions.Find(ctx, model.SessionFilter{
		TeacherID: &session.TeacherID,
		Statuses:  []model.SessionStatus{model.SessionStatusAccepted},
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return fmt.Errorf("find accepted sessions: %w", err)
	}
	busy := intervals(accepted)

	for i, alt := range alternatives {
		if len(schedule.Conflicts(alt, busy)) > 0 {
			return model.NewValidationError(fmt.Sprintf("alternatives[%d]", i), "overlaps an accepted session")
		}
	}
	return nil
}

// ChooseAlternative countered -> новое занятие в requested на выбранное время.
// Исходное занятие остаётся countered и получает SupersededBy.
func (s *BookingService) ChooseAlternative(ctx context.Context, p AlternativeParams) (*model.Session, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	session, unlock, err := s.lockSession(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !isParticipant(session, p.StudentID) {
		return nil, model.ErrPermissionDenied
	}
	if session.Status != model.SessionStatusCountered {
		return nil, &model.InvalidTransitionError{From: session.Status, Action: "choose alternative"}
	}
	if session.SupersededBy != nil {
		return nil, &model.InvalidTransitionError{From: session.Status, Action: "choose alternative twice"}
	}

	idx := slices.IndexFunc(session.Alternatives, p.Alternative.Equal)
	if idx < 0 {
		return nil, model.ErrAlternativeMissing
	}
	chosen := session.Alternatives[idx]
	if chosen.Start.Before(s.clock()) {
		return nil, model.ErrSlotUnavailable
	}

	busy, err := s.activeOverlapping(ctx, session.TeacherID, chosen, session.ID)
	if err != nil {
		return nil, err
	}
	if len(busy) > 0 {
		return nil, model.ErrSlotUnavailable
	}

	now := s.clock()
	parentID := session.ID
	child := &model.Session{
		ID:           uuid.New(),
		TeacherID:    session.TeacherID,
		StudentID:    session.StudentID,
		CourseID:     session.CourseID,
		StartTime:    chosen.Start,
		EndTime:      chosen.End,
		Capacity:     session.Capacity,
		Status:       model.SessionStatusRequested,
		SessionType:  session.SessionType,
		Price:        session.Price,
		Currency:     session.Currency,
		RefundStatus: model.RefundStatusNone,
		ParentID:     &parentID,
	}
	for _, e := range session.Enrolled {
		child.Enrolled = append(child.Enrolled, model.Enrollment{
			StudentID:  e.StudentID,
			Attendance: model.AttendancePending,
			EnrolledAt: now,
		})
	}

	childID := child.ID
	session.SupersededBy = &childID

	if err := s.sessions.Supersede(ctx, session, child); err != nil {
		return nil, fmt.Errorf("supersede session: %w", err)
	}

	s.logger.Info("Alternative chosen",
		zap.String("session_id", session.ID.String()),
		zap.String("new_session_id", child.ID.String()),
		zap.Time("start", child.StartTime))

	return child, nil
}

// DeclineAlternatives countered -> refused
func (s *BookingService) DeclineAlternatives(ctx context.Context, sessionID uuid.UUID, studentID int64) (*model.Session, error) {
	session, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !isParticipant(session, studentID) {
		return nil, model.ErrPermissionDenied
	}
	if session.Status != model.SessionStatusCountered || session.SupersededBy != nil {
		return nil, &model.InvalidTransitionError{From: session.Status, Action: "decline alternatives"}
	}

	session.Status = model.SessionStatusRefused
	if err := s.sessions.CompareAndSet(ctx, session); err != nil {
		return nil, fmt.Errorf("decline alternatives: %w", err)
	}

	s.logger.Info("Alternatives declined",
		zap.String("session_id", session.ID.String()),
		zap.Int64("student_id", studentID))

	return session, nil
}

// RecordAttendance отмечает посещение студента в принятом или завершённом занятии
func (s *BookingService) RecordAttendance(ctx context.Context, p AttendanceParams) (*model.Session, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	session, err := s.update(ctx, p.SessionID, func(session *model.Session) error {
		if session.TeacherID != p.TeacherID {
			return model.ErrPermissionDenied
		}
		if session.Status != model.SessionStatusAccepted && session.Status != model.SessionStatusCompleted {
			return &model.InvalidTransitionError{From: session.Status, Action: "record attendance"}
		}
		idx := session.EnrollmentIndex(p.StudentID)
		if idx < 0 {
			return fmt.Errorf("student %d: %w", p.StudentID, model.ErrNotEnrolled)
		}
		session.Enrolled[idx].Attendance = p.Attendance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Attendance recorded",
		zap.String("session_id", session.ID.String()),
		zap.Int64("student_id", p.StudentID),
		zap.String("attendance", string(p.Attendance)))

	return session, nil
}

// Complete accepted -> completed, не раньше начала занятия
func (s *BookingService) Complete(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.update(ctx, sessionID, func(session *model.Session) error {
		if session.Status != model.SessionStatusAccepted {
			return &model.InvalidTransitionError{From: session.Status, Action: "complete"}
		}
		if s.clock().Before(session.StartTime) {
			return &model.InvalidTransitionError{From: session.Status, Action: "complete before start"}
		}
		session.Status = model.SessionStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session completed", zap.String("session_id", session.ID.String()))
	return session, nil
}

// Cancel requested|accepted -> cancelled. Отменить может учитель или инициатор запроса.
func (s *BookingService) Cancel(ctx context.Context, p CancelParams) (*model.Session, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	return s.cancel(ctx, p.SessionID, p.Reason, func(session *model.Session) error {
		if session.TeacherID == p.ActorID {
			return nil
		}
		if session.StudentID != nil && *session.StudentID == p.ActorID {
			return nil
		}
		return model.ErrPermissionDenied
	})
}

// Expire отменяет запрос без ответа учителя с причиной ReasonExpired
func (s *BookingService) Expire(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	return s.cancel(ctx, sessionID, ReasonExpired, func(session *model.Session) error {
		if session.Status != model.SessionStatusRequested {
			return &model.InvalidTransitionError{From: session.Status, Action: "expire"}
		}
		return nil
	})
}

func (s *BookingService) cancel(ctx context.Context, sessionID uuid.UUID, reason string, allow func(*model.Session) error) (*model.Session, error) {
	session, unlock, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := allow(session); err != nil {
		return nil, err
	}
	if !session.Status.IsActive() {
		return nil, &model.InvalidTransitionError{From: session.Status, Action: "cancel"}
	}

	session.Status = model.SessionStatusCancelled
	session.CancelReason = reason
	if err := s.sessions.CompareAndSet(ctx, session); err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}

	s.logger.Info("Session cancelled",
		zap.String("session_id", session.ID.String()),
		zap.String("reason", reason),
		zap.Int("captured", len(session.CapturedTransactions())))

	return session, nil
}

// MarkRefund записывает итог возврата оплаты по отменённому занятию
func (s *BookingService) MarkRefund(ctx context.Context, sessionID uuid.UUID, status model.RefundStatus) (*model.Session, error) {
	return s.update(ctx, sessionID, func(session *model.Session) error {
		if session.Status != model.SessionStatusCancelled {
			return &model.InvalidTransitionError{From: session.Status, Action: "refund"}
		}
		session.RefundStatus = status
		return nil
	})
}

// lockSession захватывает блокировку учителя и перечитывает занятие под ней
func (s *BookingService) lockSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, func(), error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.TeacherKey(session.TeacherID))
	if err != nil {
		return nil, nil, fmt.Errorf("lock teacher: %w", err)
	}

	session, err = s.Get(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return session, unlock, nil
}

// update применяет mutate к свежей копии занятия и пишет её через CompareAndSet,
// повторяя при конфликте версий. Для изменений, которые не влияют на занятость учителя.
func (s *BookingService) update(ctx context.Context, sessionID uuid.UUID, mutate func(*model.Session) error) (*model.Session, error) {
	var lastErr error
	for range casRetries {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if err := mutate(session); err != nil {
			return nil, err
		}

		err = s.sessions.CompareAndSet(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, fmt.Errorf("update session: %w", err)
		}
		lastErr = err
	}
	return nil, lastErr
}

// activeOverlapping requested и accepted занятия учителя, пересекающиеся с interval
func (s *BookingService) activeOverlapping(ctx context.Context, teacherID int64, interval model.Interval, exclude uuid.UUID) ([]*model.Session, error) {
	return s.overlapping(ctx, teacherID, interval, exclude,
		model.SessionStatusRequested, model.SessionStatusAccepted)
}

func (s *BookingService) acceptedOverlapping(ctx context.Context, teacherID int64, interval model.Interval, exclude uuid.UUID) ([]*model.Session, error) {
	return s.overlapping(ctx, teacherID, interval, exclude, model.SessionStatusAccepted)
}

func (s *BookingService) overlapping(ctx context.Context, teacherID int64, interval model.Interval, exclude uuid.UUID, statuses ...model.SessionStatus) ([]*model.Session, error) {
	sessions, err := s.sessions.Find(ctx, model.SessionFilter{
		TeacherID: &teacherID,
		Statuses:  statuses,
		From:      &interval.Start,
		To:        &interval.End,
	})
	if err != nil {
		return nil, fmt.Errorf("find overlapping sessions: %w", err)
	}

	result := sessions[:0]
	for _, session := range sessions {
		if session.ID != exclude && session.Interval().Overlaps(interval) {
			result = append(result, session)
		}
	}
	return result, nil
}

// isParticipant инициатор запроса или записанный студент
func isParticipant(session *model.Session, studentID int64) bool {
	if session.StudentID != nil && *session.StudentID == studentID {
		return true
	}
	return session.IsEnrolled(studentID)
}

func intervals(sessions []*model.Session) []model.Interval {
	result := make([]model.Interval, 0, len(sessions))
	for _, session := range sessions {
		result = append(result, session.Interval())
	}
	return result
}
