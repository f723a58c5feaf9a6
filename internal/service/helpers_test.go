package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/lock"
	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/payment"
	"github.com/Freeeeeet/tutor_booking/internal/repository/memory"
	"github.com/Freeeeeet/tutor_booking/internal/settings"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	teacherID     = int64(1)
	otherTeacher  = int64(2)
	studentA      = int64(10)
	studentB      = int64(11)
	studentC      = int64(12)
	courseSolo    = int64(100)
	courseGroup   = int64(200)
	courseOther   = int64(300)
	soloPrice     = int64(150000)
	groupPrice    = int64(50000)
	lessonMinutes = 60
)

// wednesday 2026-10-14 08:00 UTC, ближайший понедельник 19.10
var wednesday = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func nextMonday(hour int) time.Time {
	return time.Date(2026, 10, 19, hour, 0, 0, 0, time.UTC)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) For(userID int64, event model.EventType) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.sent {
		if n.UserID == userID && n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

// countingGateway считает вызовы Capture поверх SimulatedGateway
type countingGateway struct {
	*payment.SimulatedGateway
	mu       sync.Mutex
	requests []payment.CaptureRequest
	txns     []string // транзакции, созданные шлюзом, включая потерянные ответы
	loseNext bool
}

func (g *countingGateway) Capture(ctx context.Context, req payment.CaptureRequest) (*payment.CaptureResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	res, err := g.SimulatedGateway.Capture(ctx, req)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil && res.Success {
		g.txns = append(g.txns, res.TransactionID)
	}
	if g.loseNext {
		g.loseNext = false
		return nil, errors.New("connection reset by peer")
	}
	return res, err
}

// LoseNextResponse следующее списание пройдёт, но ответ не дойдёт до вызывающего
func (g *countingGateway) LoseNextResponse() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loseNext = true
}

func (g *countingGateway) Txns() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.txns...)
}

func (g *countingGateway) Calls() []payment.CaptureRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payment.CaptureRequest(nil), g.requests...)
}

type fixture struct {
	clock        *fakeClock
	sessions     *memory.SessionRepository
	availability *AvailabilityService
	slots        *SlotService
	bookings     *BookingService
	orchestrator *Orchestrator
	gateway      *countingGateway
	notifier     *recordingNotifier
	settings     *settings.Settings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	clk := &fakeClock{now: wednesday}
	sessions := memory.NewSessionRepository().WithClock(clk.Now)
	courses := memory.NewCourseRepository(
		&model.Course{ID: courseSolo, TeacherID: teacherID, Name: "Математика", Price: soloPrice, Currency: "rub",
			DurationMinutes: lessonMinutes, Capacity: 1, SessionType: model.SessionTypeIndividual, IsActive: true},
		&model.Course{ID: courseGroup, TeacherID: teacherID, Name: "Английский в группе", Price: groupPrice, Currency: "rub",
			DurationMinutes: lessonMinutes, Capacity: 2, SessionType: model.SessionTypeGroup, IsActive: true},
		&model.Course{ID: courseOther, TeacherID: otherTeacher, Name: "Физика", Price: 0, Currency: "rub",
			DurationMinutes: lessonMinutes, Capacity: 1, SessionType: model.SessionTypeIndividual, IsActive: true},
	)
	users := memory.NewUserRepository(
		&model.User{ID: teacherID, TelegramID: 1001, FirstName: "Мария", IsTeacher: true},
		&model.User{ID: otherTeacher, TelegramID: 1002, FirstName: "Олег", IsTeacher: true},
		&model.User{ID: studentA, TelegramID: 2010, FirstName: "Анна", PaymentRef: "cus_a:pm_a"},
		&model.User{ID: studentB, TelegramID: 2011, FirstName: "Борис", PaymentRef: "cus_b:pm_b"},
		&model.User{ID: studentC, TelegramID: 2012, FirstName: "Вера", PaymentRef: "cus_c:pm_c"},
	)

	cfg, err := settings.Load(ctx, memory.NewSettingsRepository(), "booking")
	require.NoError(t, err)
	cfg.SetDefault(settings.KeyDefaultTimezone, "UTC")

	gateway := &countingGateway{SimulatedGateway: payment.NewSimulatedGateway(logger)}
	notifier := &recordingNotifier{}

	availability := NewAvailabilityService(memory.NewAvailabilityRepository(), cfg, logger)
	slots := NewSlotService(availability, sessions, cfg, clk.Now, logger)
	bookings := NewBookingService(sessions, courses, slots, lock.NewKeyedMutex(), clk.Now, logger)
	orchestrator := NewOrchestrator(availability, slots, bookings, courses, users, gateway, notifier, cfg, clk.Now, logger)

	_, err = availability.Set(ctx, teacherID, mondayMorning())
	require.NoError(t, err)

	return &fixture{
		clock:        clk,
		sessions:     sessions,
		availability: availability,
		slots:        slots,
		bookings:     bookings,
		orchestrator: orchestrator,
		gateway:      gateway,
		notifier:     notifier,
		settings:     cfg,
	}
}

// mondayMorning понедельник 09:00-12:00 UTC
func mondayMorning() *model.WeeklyAvailability {
	return &model.WeeklyAvailability{
		Timezone: "UTC",
		Days: []model.DayAvailability{{
			Weekday: time.Monday,
			Enabled: true,
			Ranges:  []model.TimeRange{{Start: model.MustClockTime("09:00"), End: model.MustClockTime("12:00")}},
		}},
	}
}

func requestParams(studentID, courseID int64, start time.Time) RequestParams {
	return RequestParams{
		TeacherID: teacherID,
		StudentID: studentID,
		CourseID:  courseID,
		Start:     start,
		End:       start.Add(lessonMinutes * time.Minute),
	}
}

// requestAt создаёт запрос на занятие в понедельник в hour:00
func (f *fixture) requestAt(t *testing.T, studentID, courseID int64, hour int) *model.Session {
	t.Helper()
	session, err := f.orchestrator.RequestSession(context.Background(), requestParams(studentID, courseID, nextMonday(hour)))
	require.NoError(t, err)
	return session
}

func (f *fixture) acceptedAt(t *testing.T, studentID int64, hour int) *model.Session {
	t.Helper()
	session := f.requestAt(t, studentID, courseSolo, hour)
	accepted, err := f.orchestrator.Accept(context.Background(), session.ID, teacherID)
	require.NoError(t, err)
	return accepted
}

func (f *fixture) load(t *testing.T, id uuid.UUID) *model.Session {
	t.Helper()
	session, err := f.orchestrator.GetSession(context.Background(), id)
	require.NoError(t, err)
	return session
}
