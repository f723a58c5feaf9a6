package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusRequested SessionStatus = "requested" // Ожидает ответа учителя
	SessionStatusAccepted  SessionStatus = "accepted"  // Принято и оплачено
	SessionStatusRefused   SessionStatus = "refused"   // Отклонено
	SessionStatusCountered SessionStatus = "countered" // Отклонено с предложением другого времени
	SessionStatusCompleted SessionStatus = "completed" // Проведено
	SessionStatusCancelled SessionStatus = "cancelled" // Отменено одной из сторон
)

// IsTerminal из терминальных статусов переходов нет
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusRefused, SessionStatusCancelled, SessionStatusCompleted:
		return true
	}
	return false
}

// IsActive занимает ли занятие время учителя для новых запросов
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusRequested || s == SessionStatusAccepted
}

type SessionType string

const (
	SessionTypeIndividual SessionType = "individual"
	SessionTypeGroup      SessionType = "group"
)

type Attendance string

const (
	AttendancePending Attendance = "pending"
	AttendancePresent Attendance = "present"
	AttendanceAbsent  Attendance = "absent"
)

func (a Attendance) Valid() bool {
	switch a {
	case AttendancePending, AttendancePresent, AttendanceAbsent:
		return true
	}
	return false
}

type RefundStatus string

const (
	RefundStatusNone     RefundStatus = "none"
	RefundStatusRefunded RefundStatus = "refunded"
	RefundStatusFailed   RefundStatus = "failed"
)

// Enrollment запись студента на занятие
type Enrollment struct {
	StudentID    int64      `json:"student_id"`
	Attendance   Attendance `json:"attendance"`
	PaymentTxnID string     `json:"payment_txn_id,omitempty"`
	EnrolledAt   time.Time  `json:"enrolled_at"`
}

// Interval абсолютный интервал времени [Start, End)
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Valid() bool {
	return !i.Start.IsZero() && i.End.After(i.Start)
}

// Overlaps касание концами пересечением не считается
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

func (i Interval) Equal(other Interval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Session конкретное занятие учителя
type Session struct {
	ID              uuid.UUID     `json:"id"`
	TeacherID       int64         `json:"teacher_id"`
	StudentID       *int64        `json:"student_id"` // инициатор запроса
	CourseID        int64         `json:"course_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Capacity        int           `json:"capacity"`
	Enrolled        []Enrollment  `json:"enrolled"`
	Status          SessionStatus `json:"status"`
	SessionType     SessionType   `json:"session_type"`
	Alternatives    []Interval    `json:"alternatives,omitempty"`
	Price           int64         `json:"price"` // в копейках/центах, за одного студента
	Currency        string        `json:"currency"`
	PaymentAttempts int           `json:"payment_attempts"`
	RefundStatus    RefundStatus  `json:"refund_status"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	ParentID        *uuid.UUID    `json:"parent_id,omitempty"`     // занятие, из альтернатив которого создано это
	SupersededBy    *uuid.UUID    `json:"superseded_by,omitempty"` // занятие, созданное из выбранной альтернативы
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (s *Session) Interval() Interval {
	return Interval{Start: s.StartTime, End: s.EndTime}
}

// EnrollmentIndex индекс записи студента или -1
func (s *Session) EnrollmentIndex(studentID int64) int {
	for i, e := range s.Enrolled {
		if e.StudentID == studentID {
			return i
		}
	}
	return -1
}

func (s *Session) IsEnrolled(studentID int64) bool {
	return s.EnrollmentIndex(studentID) >= 0
}

func (s *Session) IsFull() bool {
	return len(s.Enrolled) >= s.Capacity
}

// CapturedTransactions идентификаторы успешных платежей по всем записям
func (s *Session) CapturedTransactions() []string {
	var txns []string
	for _, e := range s.Enrolled {
		if e.PaymentTxnID != "" {
			txns = append(txns, e.PaymentTxnID)
		}
	}
	return txns
}

// StudentIDs все записанные студенты
func (s *Session) StudentIDs() []int64 {
	ids := make([]int64, 0, len(s.Enrolled))
	for _, e := range s.Enrolled {
		ids = append(ids, e.StudentID)
	}
	return ids
}

// Clone глубокая копия. Сервисы мутируют копию и пишут её через CompareAndSet.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Enrolled = append([]Enrollment(nil), s.Enrolled...)
	cp.Alternatives = append([]Interval(nil), s.Alternatives...)
	if s.StudentID != nil {
		id := *s.StudentID
		cp.StudentID = &id
	}
	if s.ParentID != nil {
		id := *s.ParentID
		cp.ParentID = &id
	}
	if s.SupersededBy != nil {
		id := *s.SupersededBy
		cp.SupersededBy = &id
	}
	return &cp
}

// SessionFilter условия выборки занятий. Пустые поля не ограничивают выборку.
type SessionFilter struct {
	TeacherID     *int64
	StudentID     *int64
	Statuses      []SessionStatus
	From          *time.Time // занятие заканчивается после From
	To            *time.Time // занятие начинается до To
	EndedBefore   *time.Time
	CreatedBefore *time.Time
	RefundStatus  *RefundStatus
}
