package service

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/notification"
	"github.com/Freeeeeet/tutor_booking/internal/payment"
	"github.com/Freeeeeet/tutor_booking/internal/settings"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator точка входа для клиентов: связывает доступность, слоты и
// жизненный цикл занятий с платежами и уведомлениями.
type Orchestrator struct {
	availability *AvailabilityService
	slots        *SlotService
	bookings     *BookingService
	courses      CourseRepository
	users        UserRepository
	payments     payment.Gateway
	notifier     notification.Notifier
	settings     *settings.Settings
	clock        Clock
	logger       *zap.Logger
}

func NewOrchestrator(
	availability *AvailabilityService,
	slots *SlotService,
	bookings *BookingService,
	courses CourseRepository,
	users UserRepository,
	payments payment.Gateway,
	notifier notification.Notifier,
	cfg *settings.Settings,
	clock Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		availability: availability,
		slots:        slots,
		bookings:     bookings,
		courses:      courses,
		users:        users,
		payments:     payments,
		notifier:     notifier,
		settings:     cfg,
		clock:        clock,
		logger:       logger,
	}
}

// currency валюта курса, иначе валюта по умолчанию
func (o *Orchestrator) currency(session *model.Session) string {
	if session.Currency != "" || o.settings == nil {
		return session.Currency
	}
	return o.settings.String(settings.KeyCurrency, "")
}

// Settings настройки, переданные при создании
func (o *Orchestrator) Settings() *settings.Settings {
	return o.settings
}

func (o *Orchestrator) GetAvailability(ctx context.Context, teacherID int64) (*model.WeeklyAvailability, error) {
	return o.availability.Get(ctx, teacherID)
}

func (o *Orchestrator) SaveAvailability(ctx context.Context, teacherID int64, avail *model.WeeklyAvailability) (*model.WeeklyAvailability, error) {
	return o.availability.Set(ctx, teacherID, avail)
}

// ListSlots слоты для курса: длительность берётся из курса
func (o *Orchestrator) ListSlots(ctx context.Context, courseID int64, horizonDays int) (iter.Seq[model.AvailableSlot], error) {
	course, err := o.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, model.ErrCourseNotFound
	}
	return o.slots.GenerateSlots(ctx, course.TeacherID, course.DurationMinutes, horizonDays)
}

func (o *Orchestrator) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return o.bookings.Get(ctx, id)
}

// ListSessions занятия по фильтру, например все занятия студента
func (o *Orchestrator) ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	return o.bookings.Find(ctx, filter)
}

// RequestSession создаёт запрос или записывает в групповое занятие.
// Учитель уведомляется о новом запросе.
func (o *Orchestrator) RequestSession(ctx context.Context, p RequestParams) (*model.Session, error) {
	session, err := o.bookings.Request(ctx, p, o.capture)
	if err != nil {
		return nil, err
	}

	o.notify(ctx, session, model.EventSessionRequested, []int64{session.TeacherID}, p.StudentID, nil)
	return session, nil
}

// Accept принимает запрос, списав оплату. При отказе платежа возвращает
// *model.PaymentFailedError, занятие остаётся в requested.
func (o *Orchestrator) Accept(ctx context.Context, sessionID uuid.UUID, teacherID int64) (*model.Session, error) {
	session, err := o.bookings.Accept(ctx, sessionID, teacherID, o.capture)
	if err != nil {
		return nil, err
	}

	o.notify(ctx, session, model.EventSessionAccepted, session.StudentIDs(), session.TeacherID, nil)
	return session, nil
}

// Refuse отклоняет запрос. С альтернативами занятие переходит в countered.
func (o *Orchestrator) Refuse(ctx context.Context, sessionID uuid.UUID, teacherID int64, alternatives []model.Interval) (*model.Session, error) {
	session, err := o.bookings.Respond(ctx, RespondParams{
		SessionID:    sessionID,
		TeacherID:    teacherID,
		Alternatives: alternatives,
	}, o.capture)
	if err != nil {
		return nil, err
	}

	if session.Status == model.SessionStatusCountered {
		extra := map[string]string{notification.KeyAlternatives: notification.FormatAlternatives(session.Alternatives)}
		o.notify(ctx, session, model.EventSessionCountered, session.StudentIDs(), session.TeacherID, extra)
	} else {
		o.notify(ctx, session, model.EventSessionRefused, session.StudentIDs(), session.TeacherID, nil)
	}
	return session, nil
}

// ChooseAlternative студент выбирает предложенное время, учитель получает новый запрос
func (o *Orchestrator) ChooseAlternative(ctx context.Context, p AlternativeParams) (*model.Session, error) {
	session, err := o.bookings.ChooseAlternative(ctx, p)
	if err != nil {
		return nil, err
	}

	o.notify(ctx, session, model.EventSessionRequested, []int64{session.TeacherID}, p.StudentID, nil)
	return session, nil
}

func (o *Orchestrator) DeclineAlternatives(ctx context.Context, sessionID uuid.UUID, studentID int64) (*model.Session, error) {
	session, err := o.bookings.DeclineAlternatives(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}

	o.notify(ctx, session, model.EventSessionRefused, []int64{session.TeacherID}, studentID, nil)
	return session, nil
}

func (o *Orchestrator) RecordAttendance(ctx context.Context, p AttendanceParams) (*model.Session, error) {
	return o.bookings.RecordAttendance(ctx, p)
}

func (o *Orchestrator) Complete(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, err := o.bookings.Complete(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	o.notify(ctx, session, model.EventSessionCompleted, session.StudentIDs(), session.TeacherID, nil)
	return session, nil
}

// Cancel отменяет занятие и возвращает все списанные платежи.
// Неудачный возврат помечается RefundStatusFailed и повторяется фоновой задачей.
func (o *Orchestrator) Cancel(ctx context.Context, p CancelParams) (*model.Session, error) {
	session, err := o.bookings.Cancel(ctx, p)
	if err != nil {
		return nil, err
	}

	session = o.refund(ctx, session)

	var recipients []int64
	if p.ActorID == session.TeacherID {
		recipients = session.StudentIDs()
	} else {
		recipients = []int64{session.TeacherID}
	}
	o.notify(ctx, session, model.EventSessionCancelled, recipients, p.ActorID, map[string]string{
		notification.KeyReason: session.CancelReason,
	})
	return session, nil
}

// capture списывает цену занятия с каждого студента. Ключ идемпотентности
// включает номер попытки: после отказа шлюза попытка увеличивается, после ошибки
// связи нет, и повтор воспроизводит то же списание.
func (o *Orchestrator) capture(ctx context.Context, session *model.Session, studentIDs []int64) error {
	var (
		failure *model.PaymentFailedError
		unknown bool
	)
	for _, studentID := range studentIDs {
		idx := session.EnrollmentIndex(studentID)
		if idx < 0 || session.Enrolled[idx].PaymentTxnID != "" {
			continue
		}

		payer, err := o.users.GetByID(ctx, studentID)
		if err != nil {
			o.logger.Error("Failed to load payer", zap.Int64("student_id", studentID), zap.Error(err))
			if failure == nil {
				failure = &model.PaymentFailedError{StudentID: studentID, Reason: "payer lookup failed"}
			}
			continue
		}
		var payerRef string
		if payer != nil {
			payerRef = payer.PaymentRef
		}

		res, err := o.payments.Capture(ctx, payment.CaptureRequest{
			Amount:         session.Price,
			Currency:       o.currency(session),
			PayerRef:       payerRef,
			IdempotencyKey: payment.IdempotencyKey(session.ID, studentID, session.PaymentAttempts),
			Metadata: map[string]string{
				"session_id": session.ID.String(),
				"student_id": strconv.FormatInt(studentID, 10),
				"teacher_id": strconv.FormatInt(session.TeacherID, 10),
			},
		})
		if err != nil {
			o.logger.Error("Payment capture error",
				zap.String("session_id", session.ID.String()),
				zap.Int64("student_id", studentID),
				zap.Error(err))
			unknown = true
			if failure == nil {
				failure = &model.PaymentFailedError{StudentID: studentID, Reason: err.Error()}
			}
			continue
		}
		if !res.Success {
			if failure == nil {
				failure = &model.PaymentFailedError{StudentID: studentID, Reason: res.Reason}
			}
			continue
		}

		session.Enrolled[idx].PaymentTxnID = res.TransactionID
		o.logger.Info("Payment captured",
			zap.String("session_id", session.ID.String()),
			zap.Int64("student_id", studentID),
			zap.String("txn", res.TransactionID))
	}

	if failure == nil {
		return nil
	}
	failure.OutcomeUnknown = unknown
	return failure
}

// refund возвращает все списания отменённого занятия и сохраняет итог
func (o *Orchestrator) refund(ctx context.Context, session *model.Session) *model.Session {
	txns := session.CapturedTransactions()
	if len(txns) == 0 {
		return session
	}

	status := model.RefundStatusRefunded
	for _, txn := range txns {
		if err := o.payments.Refund(ctx, txn); err != nil {
			o.logger.Error("Refund failed",
				zap.String("session_id", session.ID.String()),
				zap.String("txn", txn),
				zap.Error(err))
			status = model.RefundStatusFailed
		}
	}

	updated, err := o.bookings.MarkRefund(ctx, session.ID, status)
	if err != nil {
		o.logger.Error("Failed to save refund status",
			zap.String("session_id", session.ID.String()),
			zap.String("refund_status", string(status)),
			zap.Error(err))
		session.RefundStatus = status
		return session
	}
	return updated
}

// notify отправляет событие каждому получателю. actorID участник, совершивший
// действие: его имя попадает в текст как собеседник.
func (o *Orchestrator) notify(ctx context.Context, session *model.Session, event model.EventType, recipients []int64, actorID int64, extra map[string]string) {
	base := map[string]string{
		notification.KeySessionID: session.ID.String(),
		notification.KeyStart:     session.StartTime.Format(time.RFC3339),
		notification.KeyEnd:       session.EndTime.Format(time.RFC3339),
		notification.KeyPrice:     strconv.FormatInt(session.Price, 10),
		notification.KeyCurrency:  session.Currency,
	}

	if course, err := o.courses.GetByID(ctx, session.CourseID); err == nil && course != nil {
		base[notification.KeyCourse] = course.Name
	}
	if actorID > 0 {
		if actor, err := o.users.GetByID(ctx, actorID); err == nil && actor != nil {
			base[notification.KeyCounterparty] = actor.DisplayName()
		}
	}
	for k, v := range extra {
		base[k] = v
	}

	for _, userID := range recipients {
		if userID == actorID {
			continue
		}
		payload := make(map[string]string, len(base))
		for k, v := range base {
			payload[k] = v
		}
		o.notifier.Notify(ctx, model.Notification{UserID: userID, Event: event, Payload: payload})
	}
}
