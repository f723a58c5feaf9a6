// Package schedule содержит чистые функции работы с расписанием:
// проверку пересечений интервалов и разбиение недельной доступности на слоты.
package schedule

import (
	"fmt"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// overlapper интервал, умеющий проверять пересечение с интервалом того же типа
type overlapper[T any] interface {
	Overlaps(T) bool
}

// Overlaps a.Start < b.End && b.Start < a.End, касание концами не пересечение
func Overlaps(a, b model.TimeRange) bool {
	return a.Overlaps(b)
}

// HasOverlap есть ли в наборе хотя бы одна пара пересекающихся интервалов
func HasOverlap[T overlapper[T]](items []T) bool {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if items[i].Overlaps(items[j]) {
				return true
			}
		}
	}
	return false
}

// Conflicts возвращает интервалы из existing, пересекающиеся с candidate
func Conflicts[T overlapper[T]](candidate T, existing []T) []T {
	var conflicts []T
	for _, e := range existing {
		if candidate.Overlaps(e) {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts
}

// ValidateRanges проверяет интервалы одного дня: Start < End и отсутствие пересечений.
// field используется как префикс в ValidationError.
func ValidateRanges(field string, ranges []model.TimeRange) error {
	for i, r := range ranges {
		if !r.Valid() {
			return model.NewValidationError(
				fmt.Sprintf("%s[%d]", field, i),
				fmt.Sprintf("range %s must satisfy 00:00 <= start < end <= 24:00", r),
			)
		}
	}

	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].Overlaps(ranges[j]) {
				return model.NewValidationError(
					fmt.Sprintf("%s[%d]", field, j),
					fmt.Sprintf("range %s overlaps %s", ranges[j], ranges[i]),
				)
			}
		}
	}

	return nil
}

// DedupIntervals убирает точные дубликаты, сохраняя порядок первого вхождения
func DedupIntervals(items []model.Interval) []model.Interval {
	result := make([]model.Interval, 0, len(items))
	for _, it := range items {
		duplicate := false
		for _, seen := range result {
			if seen.Equal(it) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			result = append(result, it)
		}
	}
	return result
}
