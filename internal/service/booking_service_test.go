package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_CreatesRequestedSession(t *testing.T) {
	f := newFixture(t)

	session := f.requestAt(t, studentA, courseSolo, 9)

	assert.Equal(t, model.SessionStatusRequested, session.Status)
	assert.Equal(t, teacherID, session.TeacherID)
	require.NotNil(t, session.StudentID)
	assert.Equal(t, studentA, *session.StudentID)
	assert.Equal(t, 1, session.Capacity)
	assert.Equal(t, soloPrice, session.Price)
	assert.Equal(t, []int64{studentA}, session.StudentIDs())
	assert.Equal(t, int64(1), session.Version)

	notes := f.notifier.For(teacherID, model.EventSessionRequested)
	require.Len(t, notes, 1)
	assert.Equal(t, session.ID.String(), notes[0].Payload["session_id"])
	assert.Equal(t, "Анна", notes[0].Payload["counterparty"])
}

func TestRequest_SlotNotGenerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]time.Time{
		"outside availability": nextMonday(14),
		"misaligned start":     nextMonday(9).Add(30 * time.Minute),
		"tuesday":              nextMonday(9).AddDate(0, 0, 1),
		"beyond horizon":       nextMonday(9).AddDate(0, 0, 35),
	}
	for name, start := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.orchestrator.RequestSession(ctx, requestParams(studentA, courseSolo, start))
			assert.ErrorIs(t, err, model.ErrSlotUnavailable)
		})
	}
}

func TestRequest_PendingRequestBlocksSlot(t *testing.T) {
	f := newFixture(t)

	f.requestAt(t, studentA, courseSolo, 10)

	_, err := f.orchestrator.RequestSession(context.Background(), requestParams(studentB, courseSolo, nextMonday(10)))
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)

	// соседний слот свободен
	f.requestAt(t, studentB, courseSolo, 11)
}

func TestRequest_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := requestParams(studentA, courseSolo, nextMonday(9))
	p.StudentID = 0
	_, err := f.orchestrator.RequestSession(ctx, p)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "student_id", verr.Field)

	p = requestParams(studentA, courseSolo, nextMonday(9))
	p.End = p.Start
	_, err = f.orchestrator.RequestSession(ctx, p)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end", verr.Field)

	p = requestParams(studentA, courseSolo, nextMonday(9))
	p.End = p.Start.Add(90 * time.Minute)
	_, err = f.orchestrator.RequestSession(ctx, p)
	assert.ErrorIs(t, err, model.ErrValidation)

	p = requestParams(studentA, courseOther, nextMonday(9))
	_, err = f.orchestrator.RequestSession(ctx, p)
	assert.ErrorIs(t, err, model.ErrValidation, "course of another teacher")

	p = requestParams(studentA, 999, nextMonday(9))
	_, err = f.orchestrator.RequestSession(ctx, p)
	assert.ErrorIs(t, err, model.ErrCourseNotFound)

	assert.Empty(t, f.notifier.sent)
}

func TestRequest_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)
	for i := range workers {
		wg.Add(1)
		go func(studentID int64) {
			defer wg.Done()
			_, err := f.orchestrator.RequestSession(ctx, requestParams(studentID, courseSolo, nextMonday(9)))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			errs = append(errs, err)
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, errs, workers-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, model.ErrSlotUnavailable)
	}
}

func TestAccept_CapturesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseSolo, 9)
	accepted, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusAccepted, accepted.Status)
	require.Len(t, accepted.Enrolled, 1)
	assert.NotEmpty(t, accepted.Enrolled[0].PaymentTxnID)

	calls := f.gateway.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, soloPrice, calls[0].Amount)
	assert.Equal(t, "cus_a:pm_a", calls[0].PayerRef)
	assert.Equal(t, "session:"+session.ID.String()+":student:10:attempt:0", calls[0].IdempotencyKey)

	assert.Len(t, f.notifier.For(studentA, model.EventSessionAccepted), 1)
}

func TestAccept_PaymentFailureKeepsRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseSolo, 9)
	f.gateway.Decline("cus_a:pm_a", "insufficient funds")

	_, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.ErrorIs(t, err, model.ErrPaymentFailed)

	var perr *model.PaymentFailedError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable())
	assert.Equal(t, studentA, perr.StudentID)
	assert.Equal(t, "insufficient funds", perr.Reason)

	stored := f.load(t, session.ID)
	assert.Equal(t, model.SessionStatusRequested, stored.Status)
	assert.Equal(t, 1, stored.PaymentAttempts)
	assert.Empty(t, stored.CapturedTransactions())
	assert.Empty(t, f.notifier.For(studentA, model.EventSessionAccepted))

	// повтор после пополнения карты использует новый ключ идемпотентности
	f.gateway.Allow("cus_a:pm_a")
	accepted, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusAccepted, accepted.Status)

	calls := f.gateway.Calls()
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}

func TestAccept_LostCaptureResponseReplaysSameCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseSolo, 9)
	f.gateway.LoseNextResponse()

	_, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.ErrorIs(t, err, model.ErrPaymentFailed)
	var perr *model.PaymentFailedError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.OutcomeUnknown)

	stored := f.load(t, session.ID)
	assert.Equal(t, model.SessionStatusRequested, stored.Status)
	assert.Equal(t, 0, stored.PaymentAttempts, "unknown outcome keeps the attempt")

	accepted, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.NoError(t, err)

	calls := f.gateway.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].IdempotencyKey, calls[1].IdempotencyKey)
	assert.Equal(t, "session:"+session.ID.String()+":student:10:attempt:0", calls[1].IdempotencyKey)

	txns := f.gateway.Txns()
	require.Len(t, txns, 2)
	assert.Equal(t, txns[0], txns[1], "retry replays the first charge")
	assert.Equal(t, txns[0], accepted.Enrolled[0].PaymentTxnID)
}

func TestGroupSession_JoinLostResponseKeepsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseGroup, 9)
	_, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.NoError(t, err)

	p := requestParams(studentB, courseGroup, nextMonday(9))
	p.SessionID = &session.ID
	f.gateway.LoseNextResponse()
	_, err = f.orchestrator.RequestSession(ctx, p)
	require.ErrorIs(t, err, model.ErrPaymentFailed)

	stored := f.load(t, session.ID)
	assert.False(t, stored.IsEnrolled(studentB))
	assert.Equal(t, 0, stored.PaymentAttempts)

	joined, err := f.orchestrator.RequestSession(ctx, p)
	require.NoError(t, err)
	require.True(t, joined.IsEnrolled(studentB))

	calls := f.gateway.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, calls[1].IdempotencyKey, calls[2].IdempotencyKey)
}

func TestAccept_PartialCaptureIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseGroup, 9)
	p := requestParams(studentB, courseGroup, nextMonday(9))
	p.SessionID = &session.ID
	_, err := f.orchestrator.RequestSession(ctx, p)
	require.NoError(t, err)

	f.gateway.Decline("cus_b:pm_b", "card expired")
	_, err = f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.ErrorIs(t, err, model.ErrPaymentFailed)

	stored := f.load(t, session.ID)
	assert.Equal(t, model.SessionStatusRequested, stored.Status)
	require.Len(t, stored.CapturedTransactions(), 1)
	paidA := stored.Enrolled[stored.EnrollmentIndex(studentA)].PaymentTxnID
	assert.NotEmpty(t, paidA)

	f.gateway.Allow("cus_b:pm_b")
	accepted, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.NoError(t, err)
	assert.Equal(t, paidA, accepted.Enrolled[accepted.EnrollmentIndex(studentA)].PaymentTxnID, "student A not charged twice")
	assert.Len(t, accepted.CapturedTransactions(), 2)
	assert.Len(t, f.gateway.Calls(), 3)
}

func TestAccept_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseSolo, 9)

	_, err := f.orchestrator.Accept(ctx, session.ID, otherTeacher)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	_, err = f.orchestrator.Accept(ctx, uuid.New(), teacherID)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestRefuse_WithoutAlternatives(t *testing.T) {
	f := newFixture(t)

	session := f.requestAt(t, studentA, courseSolo, 9)
	refused, err := f.orchestrator.Refuse(context.Background(), session.ID, teacherID, nil)
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusRefused, refused.Status)
	assert.Len(t, f.notifier.For(studentA, model.EventSessionRefused), 1)
}

func TestRefuse_WithTuesdayAlternative(t *testing.T) {
	f := newFixture(t)

	session := f.requestAt(t, studentA, courseSolo, 9)
	tuesday := model.Interval{Start: nextMonday(15).AddDate(0, 0, 1), End: nextMonday(16).AddDate(0, 0, 1)}

	countered, err := f.orchestrator.Refuse(context.Background(), session.ID, teacherID, []model.Interval{tuesday, tuesday})
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusCountered, countered.Status)
	require.Len(t, countered.Alternatives, 1, "duplicates removed")
	assert.True(t, countered.Alternatives[0].Equal(tuesday))

	notes := f.notifier.For(studentA, model.EventSessionCountered)
	require.Len(t, notes, 1)
	assert.NotEmpty(t, notes[0].Payload["alternatives"])
}

func TestRefuse_AlternativeOverlapsAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.acceptedAt(t, studentB, 10)
	session := f.requestAt(t, studentA, courseSolo, 9)

	alt := model.Interval{Start: nextMonday(10).Add(30 * time.Minute), End: nextMonday(11).Add(30 * time.Minute)}
	_, err := f.orchestrator.Refuse(ctx, session.ID, teacherID, []model.Interval{alt})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "alternatives[0]", verr.Field)
	assert.Equal(t, model.SessionStatusRequested, f.load(t, session.ID).Status)
}

func TestRefuse_InvalidAlternatives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.requestAt(t, studentA, courseSolo, 9)

	past := model.Interval{Start: wednesday.Add(-2 * time.Hour), End: wednesday.Add(-time.Hour)}
	_, err := f.orchestrator.Refuse(ctx, session.ID, teacherID, []model.Interval{past})
	assert.ErrorIs(t, err, model.ErrValidation)

	reversed := model.Interval{Start: nextMonday(15), End: nextMonday(14)}
	_, err = f.orchestrator.Refuse(ctx, session.ID, teacherID, []model.Interval{reversed})
	assert.ErrorIs(t, err, model.ErrValidation)

	same := session.Interval()
	_, err = f.orchestrator.Refuse(ctx, session.ID, teacherID, []model.Interval{same})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRespond_AcceptWithAlternativesRejected(t *testing.T) {
	f := newFixture(t)
	session := f.requestAt(t, studentA, courseSolo, 9)

	_, err := f.bookings.Respond(context.Background(), RespondParams{
		SessionID:    session.ID,
		TeacherID:    teacherID,
		Accept:       true,
		Alternatives: []model.Interval{{Start: nextMonday(15), End: nextMonday(16)}},
	}, f.orchestrator.capture)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func counteredSession(t *testing.T, f *fixture) (*model.Session, model.Interval) {
	t.Helper()
	session := f.requestAt(t, studentA, courseSolo, 9)
	alt := model.Interval{Start: nextMonday(15).AddDate(0, 0, 1), End: nextMonday(16).AddDate(0, 0, 1)}
	countered, err := f.orchestrator.Refuse(context.Background(), session.ID, teacherID, []model.Interval{alt})
	require.NoError(t, err)
	return countered, alt
}

func TestChooseAlternative_CreatesNewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	countered, alt := counteredSession(t, f)

	child, err := f.orchestrator.ChooseAlternative(ctx, AlternativeParams{
		SessionID:   countered.ID,
		StudentID:   studentA,
		Alternative: alt,
	})
	require.NoError(t, err)

	assert.NotEqual(t, countered.ID, child.ID)
	assert.Equal(t, model.SessionStatusRequested, child.Status)
	assert.True(t, child.Interval().Equal(alt))
	require.NotNil(t, child.ParentID)
	assert.Equal(t, countered.ID, *child.ParentID)
	assert.Equal(t, []int64{studentA}, child.StudentIDs())

	parent := f.load(t, countered.ID)
	assert.Equal(t, model.SessionStatusCountered, parent.Status)
	require.NotNil(t, parent.SupersededBy)
	assert.Equal(t, child.ID, *parent.SupersededBy)

	_, err = f.orchestrator.ChooseAlternative(ctx, AlternativeParams{SessionID: countered.ID, StudentID: studentA, Alternative: alt})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.orchestrator.DeclineAlternatives(ctx, countered.ID, studentA)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// новое занятие проходит обычный цикл
	accepted, err := f.orchestrator.Accept(ctx, child.ID, teacherID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusAccepted, accepted.Status)
}

func TestChooseAlternative_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	countered, alt := counteredSession(t, f)

	_, err := f.orchestrator.ChooseAlternative(ctx, AlternativeParams{
		SessionID:   countered.ID,
		StudentID:   studentA,
		Alternative: model.Interval{Start: alt.Start.Add(time.Hour), End: alt.End.Add(time.Hour)},
	})
	assert.ErrorIs(t, err, model.ErrAlternativeMissing)

	_, err = f.orchestrator.ChooseAlternative(ctx, AlternativeParams{SessionID: countered.ID, StudentID: studentB, Alternative: alt})
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	requested := f.requestAt(t, studentB, courseSolo, 10)
	_, err = f.orchestrator.ChooseAlternative(ctx, AlternativeParams{SessionID: requested.ID, StudentID: studentB, Alternative: alt})
	var terr *model.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.SessionStatusRequested, terr.From)
}

func TestDeclineAlternatives(t *testing.T) {
	f := newFixture(t)
	countered, _ := counteredSession(t, f)

	refused, err := f.orchestrator.DeclineAlternatives(context.Background(), countered.ID, studentA)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusRefused, refused.Status)
	assert.Len(t, f.notifier.For(teacherID, model.EventSessionRefused), 1)
}

func TestRecordAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requested := f.requestAt(t, studentB, courseSolo, 11)
	_, err := f.orchestrator.RecordAttendance(ctx, AttendanceParams{
		SessionID: requested.ID, TeacherID: teacherID, StudentID: studentB, Attendance: model.AttendancePresent,
	})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	session := f.acceptedAt(t, studentA, 9)

	_, err = f.orchestrator.RecordAttendance(ctx, AttendanceParams{
		SessionID: session.ID, TeacherID: teacherID, StudentID: studentC, Attendance: model.AttendancePresent,
	})
	require.ErrorIs(t, err, model.ErrNotEnrolled)
	stored := f.load(t, session.ID)
	assert.Equal(t, session.Enrolled, stored.Enrolled)
	assert.Equal(t, session.Version, stored.Version)

	_, err = f.orchestrator.RecordAttendance(ctx, AttendanceParams{
		SessionID: session.ID, TeacherID: teacherID, StudentID: studentA, Attendance: "late",
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.orchestrator.RecordAttendance(ctx, AttendanceParams{
		SessionID: session.ID, TeacherID: otherTeacher, StudentID: studentA, Attendance: model.AttendancePresent,
	})
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	updated, err := f.orchestrator.RecordAttendance(ctx, AttendanceParams{
		SessionID: session.ID, TeacherID: teacherID, StudentID: studentA, Attendance: model.AttendancePresent,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AttendancePresent, updated.Enrolled[0].Attendance)

	// после завершения отметку можно исправить
	f.clock.Set(nextMonday(10))
	_, err = f.orchestrator.Complete(ctx, session.ID)
	require.NoError(t, err)
	updated, err = f.orchestrator.RecordAttendance(ctx, AttendanceParams{
		SessionID: session.ID, TeacherID: teacherID, StudentID: studentA, Attendance: model.AttendanceAbsent,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AttendanceAbsent, updated.Enrolled[0].Attendance)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.acceptedAt(t, studentA, 9)

	_, err := f.orchestrator.Complete(ctx, session.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "not started yet")

	f.clock.Set(nextMonday(9).Add(10 * time.Minute))
	completed, err := f.orchestrator.Complete(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, completed.Status)
	assert.Len(t, f.notifier.For(studentA, model.EventSessionCompleted), 1)

	_, err = f.orchestrator.Complete(ctx, session.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCancel_RefundsCapturedPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.acceptedAt(t, studentA, 9)
	txn := session.Enrolled[0].PaymentTxnID

	cancelled, err := f.orchestrator.Cancel(ctx, CancelParams{SessionID: session.ID, ActorID: teacherID, Reason: "болезнь"})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, cancelled.Status)
	assert.Equal(t, "болезнь", cancelled.CancelReason)
	assert.Equal(t, model.RefundStatusRefunded, cancelled.RefundStatus)
	assert.True(t, f.gateway.Refunded(txn))

	notes := f.notifier.For(studentA, model.EventSessionCancelled)
	require.Len(t, notes, 1)
	assert.Equal(t, "болезнь", notes[0].Payload["reason"])

	// слот снова свободен
	f.requestAt(t, studentB, courseSolo, 9)
}

func TestCancel_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseSolo, 9)

	_, err := f.orchestrator.Cancel(ctx, CancelParams{SessionID: session.ID, ActorID: studentB})
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	cancelled, err := f.orchestrator.Cancel(ctx, CancelParams{SessionID: session.ID, ActorID: studentA})
	require.NoError(t, err)
	assert.Equal(t, model.RefundStatusNone, cancelled.RefundStatus)
	assert.Len(t, f.notifier.For(teacherID, model.EventSessionCancelled), 1)

	_, err = f.orchestrator.Cancel(ctx, CancelParams{SessionID: session.ID, ActorID: studentA})
	var terr *model.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.SessionStatusCancelled, terr.From)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	refused := f.requestAt(t, studentA, courseSolo, 9)
	_, err := f.orchestrator.Refuse(ctx, refused.ID, teacherID, nil)
	require.NoError(t, err)

	_, err = f.orchestrator.Accept(ctx, refused.ID, teacherID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.orchestrator.Refuse(ctx, refused.ID, teacherID, nil)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.orchestrator.Complete(ctx, refused.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.orchestrator.Cancel(ctx, CancelParams{SessionID: refused.ID, ActorID: teacherID})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = f.orchestrator.DeclineAlternatives(ctx, refused.ID, studentA)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestGroupSession_Join(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseGroup, 10)
	assert.Equal(t, 2, session.Capacity)
	assert.Equal(t, model.SessionTypeGroup, session.SessionType)

	join := func(studentID int64) (*model.Session, error) {
		p := requestParams(studentID, courseGroup, nextMonday(10))
		p.SessionID = &session.ID
		return f.orchestrator.RequestSession(ctx, p)
	}

	_, err := join(studentA)
	assert.ErrorIs(t, err, model.ErrAlreadyEnrolled)

	joined, err := join(studentB)
	require.NoError(t, err)
	assert.Equal(t, []int64{studentA, studentB}, joined.StudentIDs())

	_, err = join(studentC)
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	stored := f.load(t, session.ID)
	assert.Len(t, stored.Enrolled, 2)
}

func TestGroupSession_JoinAcceptedCapturesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := f.requestAt(t, studentA, courseGroup, 10)
	_, err := f.orchestrator.Accept(ctx, session.ID, teacherID)
	require.NoError(t, err)

	p := requestParams(studentB, courseGroup, nextMonday(10))
	p.SessionID = &session.ID

	f.gateway.Decline("cus_b:pm_b", "declined")
	_, err = f.orchestrator.RequestSession(ctx, p)
	require.ErrorIs(t, err, model.ErrPaymentFailed)
	stored := f.load(t, session.ID)
	assert.False(t, stored.IsEnrolled(studentB))
	assert.Equal(t, model.SessionStatusAccepted, stored.Status)

	f.gateway.Allow("cus_b:pm_b")
	joined, err := f.orchestrator.RequestSession(ctx, p)
	require.NoError(t, err)
	idx := joined.EnrollmentIndex(studentB)
	require.GreaterOrEqual(t, idx, 0)
	assert.NotEmpty(t, joined.Enrolled[idx].PaymentTxnID)
}

func TestGroupSession_JoinWrongTime(t *testing.T) {
	f := newFixture(t)

	session := f.requestAt(t, studentA, courseGroup, 10)
	p := requestParams(studentB, courseGroup, nextMonday(11))
	p.SessionID = &session.ID

	_, err := f.orchestrator.RequestSession(context.Background(), p)
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)
}
