package model

import "time"

// AvailableSlot вычисляемый свободный слот, в базе не хранится
type AvailableSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

func (s AvailableSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// SlotLabel форматирует слот для показа пользователю: "Mon 05.01 09:00-10:00"
func SlotLabel(start, end time.Time) string {
	return start.Format("Mon 02.01 15:04") + "-" + end.Format("15:04")
}
