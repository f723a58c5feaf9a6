// Package memory хранилища в памяти процесса. Используются в тестах и
// при локальном запуске без PostgreSQL.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/google/uuid"
)

// AvailabilityRepository доступность учителей
type AvailabilityRepository struct {
	mu    sync.RWMutex
	items map[int64]*model.WeeklyAvailability
}

func NewAvailabilityRepository() *AvailabilityRepository {
	return &AvailabilityRepository{items: make(map[int64]*model.WeeklyAvailability)}
}

func (r *AvailabilityRepository) GetByTeacherID(_ context.Context, teacherID int64) (*model.WeeklyAvailability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	avail, ok := r.items[teacherID]
	if !ok {
		return nil, nil
	}
	return avail.Clone(), nil
}

func (r *AvailabilityRepository) Upsert(_ context.Context, avail *model.WeeklyAvailability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	avail.UpdatedAt = time.Now()
	r.items[avail.TeacherID] = avail.Clone()
	return nil
}

// SessionRepository занятия с проверкой version при записи
type SessionRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*model.Session
	now   func() time.Time
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		items: make(map[uuid.UUID]*model.Session),
		now:   time.Now,
	}
}

// WithClock задаёт источник времени для CreatedAt и UpdatedAt
func (r *SessionRepository) WithClock(now func() time.Time) *SessionRepository {
	r.now = now
	return r
}

func (r *SessionRepository) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.insert(session)
}

func (r *SessionRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return session.Clone(), nil
}

func (r *SessionRepository) Find(_ context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Session
	for _, s := range r.items {
		if matches(s, filter) {
			result = append(result, s.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *model.Session) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return result, nil
}

func (r *SessionRepository) CompareAndSet(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.update(session)
}

// Supersede обе записи проверяются до того, как применяется любая из них
func (r *SessionRepository) Supersede(_ context.Context, old, child *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUpdate(old); err != nil {
		return err
	}
	if err := r.checkInsert(child); err != nil {
		return err
	}

	r.applyUpdate(old)
	r.applyInsert(child)
	return nil
}

func (r *SessionRepository) insert(session *model.Session) error {
	if err := r.checkInsert(session); err != nil {
		return err
	}
	r.applyInsert(session)
	return nil
}

func (r *SessionRepository) update(session *model.Session) error {
	if err := r.checkUpdate(session); err != nil {
		return err
	}
	r.applyUpdate(session)
	return nil
}

func (r *SessionRepository) checkInsert(session *model.Session) error {
	if _, exists := r.items[session.ID]; exists {
		return model.ErrVersionConflict
	}
	if session.Status == model.SessionStatusAccepted && r.overlapsAccepted(session) {
		return model.ErrSlotUnavailable
	}
	return nil
}

func (r *SessionRepository) checkUpdate(session *model.Session) error {
	current, ok := r.items[session.ID]
	if !ok || current.Version != session.Version {
		return model.ErrVersionConflict
	}
	if session.Status == model.SessionStatusAccepted && r.overlapsAccepted(session) {
		return model.ErrSlotUnavailable
	}
	return nil
}

func (r *SessionRepository) applyInsert(session *model.Session) {
	now := r.now()
	session.Version = 1
	session.CreatedAt = now
	session.UpdatedAt = now
	r.items[session.ID] = session.Clone()
}

func (r *SessionRepository) applyUpdate(session *model.Session) {
	session.Version++
	session.UpdatedAt = r.now()
	r.items[session.ID] = session.Clone()
}

// overlapsAccepted то же ограничение, что EXCLUDE в таблице sessions
func (r *SessionRepository) overlapsAccepted(session *model.Session) bool {
	for _, other := range r.items {
		if other.ID == session.ID || other.TeacherID != session.TeacherID {
			continue
		}
		if other.Status == model.SessionStatusAccepted && other.Interval().Overlaps(session.Interval()) {
			return true
		}
	}
	return false
}

func matches(s *model.Session, f model.SessionFilter) bool {
	if f.TeacherID != nil && s.TeacherID != *f.TeacherID {
		return false
	}
	if f.StudentID != nil {
		initiator := s.StudentID != nil && *s.StudentID == *f.StudentID
		if !initiator && !s.IsEnrolled(*f.StudentID) {
			return false
		}
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, s.Status) {
		return false
	}
	if f.From != nil && !s.EndTime.After(*f.From) {
		return false
	}
	if f.To != nil && !s.StartTime.Before(*f.To) {
		return false
	}
	if f.EndedBefore != nil && s.EndTime.After(*f.EndedBefore) {
		return false
	}
	if f.CreatedBefore != nil && !s.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	if f.RefundStatus != nil && s.RefundStatus != *f.RefundStatus {
		return false
	}
	return true
}

// CourseRepository каталог курсов
type CourseRepository struct {
	mu    sync.RWMutex
	items map[int64]*model.Course
}

func NewCourseRepository(courses ...*model.Course) *CourseRepository {
	r := &CourseRepository{items: make(map[int64]*model.Course)}
	for _, c := range courses {
		r.Put(c)
	}
	return r
}

// Put добавляет или заменяет курс
func (r *CourseRepository) Put(course *model.Course) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *course
	r.items[course.ID] = &cp
}

func (r *CourseRepository) GetByID(_ context.Context, id int64) (*model.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	course, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *course
	return &cp, nil
}

// UserRepository справочник пользователей
type UserRepository struct {
	mu    sync.RWMutex
	items map[int64]*model.User
}

func NewUserRepository(users ...*model.User) *UserRepository {
	r := &UserRepository{items: make(map[int64]*model.User)}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

// Put добавляет или заменяет пользователя
func (r *UserRepository) Put(user *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *user
	r.items[user.ID] = &cp
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

// SettingsRepository значения настроек по scope
type SettingsRepository struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{scopes: make(map[string]map[string]string)}
}

func (r *SettingsRepository) Load(_ context.Context, scope string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make(map[string]string)
	maps.Copy(values, r.scopes[scope])
	return values, nil
}

func (r *SettingsRepository) Save(_ context.Context, scope string, values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scopes[scope] = maps.Clone(values)
	return nil
}
