// Package settings настройки бронирования, которые можно менять без перезапуска.
// Значения загружаются один раз и пишутся в хранилище только явным Save.
package settings

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"
)

const (
	KeyHorizonDays     = "slots.horizon_days"
	KeyRequestTTL      = "requests.ttl"
	KeyDefaultTimezone = "availability.default_timezone"
	KeyCurrency        = "payments.currency"
)

// Store хранилище значений по scope
type Store interface {
	Load(ctx context.Context, scope string) (map[string]string, error)
	Save(ctx context.Context, scope string, values map[string]string) error
}

type Settings struct {
	mu       sync.RWMutex
	store    Store
	scope    string
	values   map[string]string
	defaults map[string]string
	dirty    bool
}

// Load читает все значения scope из хранилища
func Load(ctx context.Context, store Store, scope string) (*Settings, error) {
	values, err := store.Load(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load settings %q: %w", scope, err)
	}
	if values == nil {
		values = make(map[string]string)
	}

	return &Settings{
		store:    store,
		scope:    scope,
		values:   values,
		defaults: make(map[string]string),
	}, nil
}

// SetDefault значение, которое возвращается, пока ключ не задан явно. В хранилище не пишется.
func (s *Settings) SetDefault(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[key] = value
}

func (s *Settings) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[key]; ok {
		return v, true
	}
	v, ok := s.defaults[key]
	return v, ok
}

// String значение или fallback
func (s *Settings) String(key, fallback string) string {
	if v, ok := s.Get(key); ok && v != "" {
		return v
	}
	return fallback
}

// Int некорректное значение трактуется как отсутствующее
func (s *Settings) Int(key string, fallback int) int {
	v, ok := s.Get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Duration значение в формате time.ParseDuration
func (s *Settings) Duration(key string, fallback time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func (s *Settings) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

func (s *Settings) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// Dirty есть несохранённые изменения
func (s *Settings) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Save записывает значения в хранилище, если они менялись
func (s *Settings) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if err := s.store.Save(ctx, s.scope, maps.Clone(s.values)); err != nil {
		return fmt.Errorf("save settings %q: %w", s.scope, err)
	}
	s.dirty = false
	return nil
}
