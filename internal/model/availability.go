package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MinutesPerDay верхняя граница ClockTime (24:00 допускается только как конец интервала)
const MinutesPerDay = 24 * 60

// ClockTime время суток в минутах от полуночи
type ClockTime int

// NewClockTime создаёт время суток из часов и минут
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime разбирает строку формата "HH:MM"
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	minute, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}

	if minute < 0 || minute > 59 || hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("invalid clock time %q: out of range", s)
	}

	return NewClockTime(hour, minute), nil
}

// MustClockTime как ParseClockTime, но паникует на ошибке. Для констант и тестов.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On возвращает момент времени в дне day (в его часовом поясе)
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, day.Location())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeRange интервал времени суток [Start, End) внутри одного дня
type TimeRange struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// Valid проверяет границы: 00:00 <= Start < End <= 24:00
func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.Start < r.End && r.End <= MinutesPerDay
}

func (r TimeRange) Minutes() int {
	return int(r.End - r.Start)
}

// Overlaps касание концами пересечением не считается
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// DayAvailability доступность учителя в конкретный день недели
type DayAvailability struct {
	Weekday time.Weekday `json:"weekday"` // 0 = Sunday, 6 = Saturday
	Enabled bool         `json:"enabled"`
	Ranges  []TimeRange  `json:"ranges"`
}

// WeekOrder порядок дней в WeeklyAvailability
var WeekOrder = [7]time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

// WeeklyAvailability регулярное недельное расписание учителя
type WeeklyAvailability struct {
	TeacherID int64             `json:"teacher_id"`
	Timezone  string            `json:"timezone"` // IANA, например "Europe/Moscow"
	Days      []DayAvailability `json:"days"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DefaultWeeklyAvailability возвращает расписание, где все дни выключены
func DefaultWeeklyAvailability(teacherID int64, timezone string) *WeeklyAvailability {
	days := make([]DayAvailability, 0, len(WeekOrder))
	for _, wd := range WeekOrder {
		days = append(days, DayAvailability{Weekday: wd, Ranges: []TimeRange{}})
	}
	return &WeeklyAvailability{
		TeacherID: teacherID,
		Timezone:  timezone,
		Days:      days,
	}
}

// Day возвращает настройки для дня недели
func (w *WeeklyAvailability) Day(weekday time.Weekday) (DayAvailability, bool) {
	for _, d := range w.Days {
		if d.Weekday == weekday {
			return d, true
		}
	}
	return DayAvailability{}, false
}

// IsEmpty true, если нет ни одного включённого дня с интервалами
func (w *WeeklyAvailability) IsEmpty() bool {
	for _, d := range w.Days {
		if d.Enabled && len(d.Ranges) > 0 {
			return false
		}
	}
	return true
}

// Location часовой пояс расписания, UTC если не задан
func (w *WeeklyAvailability) Location() (*time.Location, error) {
	if w.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", w.Timezone, err)
	}
	return loc, nil
}

// Clone глубокая копия, чтобы хранилища не делили слайсы с вызывающим кодом
func (w *WeeklyAvailability) Clone() *WeeklyAvailability {
	cp := *w
	cp.Days = make([]DayAvailability, len(w.Days))
	for i, d := range w.Days {
		d.Ranges = append([]TimeRange(nil), d.Ranges...)
		if d.Ranges == nil {
			d.Ranges = []TimeRange{}
		}
		cp.Days[i] = d
	}
	return &cp
}
