package model

import "time"

// Course курс учителя (каталог курсов внешний, здесь только чтение)
type Course struct {
	ID              int64       `json:"id"`
	TeacherID       int64       `json:"teacher_id"`
	Name            string      `json:"name"`
	Price           int64       `json:"price"` // в копейках/центах
	Currency        string      `json:"currency"`
	DurationMinutes int         `json:"duration_minutes"`
	Capacity        int         `json:"capacity"`
	SessionType     SessionType `json:"session_type"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"`
}
