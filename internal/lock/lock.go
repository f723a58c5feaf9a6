// Package lock сериализует изменения набора занятий одного учителя.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// Locker захватывает именованную блокировку. Возвращаемая функция освобождает её,
// повторный вызов безопасен.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TeacherKey ключ блокировки для набора занятий учителя
func TeacherKey(teacherID int64) string {
	return fmt.Sprintf("teacher:%d", teacherID)
}

// KeyedMutex блокировки внутри одного процесса
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock ждёт освобождения ключа или отмены контекста
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.ch
				m.release(key, entry)
			})
		}, nil
	case <-ctx.Done():
		m.release(key, entry)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

// Len количество ключей, которые сейчас захвачены или ожидаются
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *KeyedMutex) release(key string, entry *keyedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
}
