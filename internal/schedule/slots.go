package schedule

import (
	"iter"
	"slices"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// DefaultHorizonDays на сколько дней вперёд показываем слоты
const DefaultHorizonDays = 28

// Options параметры генерации слотов
type Options struct {
	DurationMinutes int
	HorizonDays     int
	Now             time.Time
	// Busy занятые интервалы учителя; слоты, пересекающиеся с ними, пропускаются
	Busy []model.Interval
}

// Generate лениво разворачивает недельную доступность в слоты длиной DurationMinutes.
//
// Обход идёт по HorizonDays календарным дням в часовом поясе loc. Сегодняшний день
// входит в обход, только если now раньше последнего возможного начала слота сегодня,
// иначе обход начинается с завтра.
// Каждый интервал дня режется на слоты встык, остаток короче длительности отбрасывается.
// Прошедшие слоты и слоты, пересекающиеся с Busy, пропускаются.
// Последовательность можно обходить повторно: состояние берётся только из аргументов.
func Generate(avail *model.WeeklyAvailability, loc *time.Location, opts Options) iter.Seq[model.AvailableSlot] {
	return func(yield func(model.AvailableSlot) bool) {
		if avail == nil || avail.IsEmpty() || opts.DurationMinutes <= 0 || opts.HorizonDays <= 0 {
			return
		}
		if loc == nil {
			loc = time.UTC
		}

		duration := model.ClockTime(opts.DurationMinutes)
		now := opts.Now.In(loc)
		first := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		if last, ok := lastStart(avail, first.Weekday(), duration); !ok || !now.Before(last.On(first)) {
			first = first.AddDate(0, 0, 1)
		}

		for i := range opts.HorizonDays {
			day := first.AddDate(0, 0, i)

			dayAvail, ok := avail.Day(day.Weekday())
			if !ok || !dayAvail.Enabled {
				continue
			}

			for _, r := range sortedRanges(dayAvail.Ranges) {
				for start := r.Start; start+duration <= r.End; start += duration {
					slot := model.AvailableSlot{
						Start: start.On(day),
						End:   (start + duration).On(day),
					}

					if slot.Start.Before(now) {
						continue
					}
					if len(Conflicts(slot.Interval(), opts.Busy)) > 0 {
						continue
					}

					slot.Label = model.SlotLabel(slot.Start, slot.End)
					if !yield(slot) {
						return
					}
				}
			}
		}
	}
}

// Collect собирает не больше limit слотов (limit <= 0 без ограничения)
func Collect(seq iter.Seq[model.AvailableSlot], limit int) []model.AvailableSlot {
	slots := []model.AvailableSlot{}
	for slot := range seq {
		slots = append(slots, slot)
		if limit > 0 && len(slots) >= limit {
			break
		}
	}
	return slots
}

// Contains есть ли в последовательности слот с точно такими границами.
// Обход останавливается, как только слот найден или пройден.
func Contains(seq iter.Seq[model.AvailableSlot], target model.Interval) bool {
	for slot := range seq {
		if slot.Interval().Equal(target) {
			return true
		}
		if slot.Start.After(target.Start) {
			return false
		}
	}
	return false
}

// lastStart последнее начало слота длиной duration в этот день недели
func lastStart(avail *model.WeeklyAvailability, weekday time.Weekday, duration model.ClockTime) (model.ClockTime, bool) {
	day, ok := avail.Day(weekday)
	if !ok || !day.Enabled {
		return 0, false
	}

	var (
		last  model.ClockTime
		found bool
	)
	for _, r := range day.Ranges {
		if r.End-r.Start < duration {
			continue
		}
		// слоты режутся встык от начала интервала
		start := r.Start + (r.End-r.Start)/duration*duration - duration
		if !found || start > last {
			last, found = start, true
		}
	}
	return last, found
}

func sortedRanges(ranges []model.TimeRange) []model.TimeRange {
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b model.TimeRange) int {
		return int(a.Start - b.Start)
	})
	return sorted
}
