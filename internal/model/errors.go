package model

import (
	"errors"
	"fmt"
)

// Ошибки бронирования. Все ошибки восстановимы: вызывающий код
// перечитывает состояние (слоты, занятие) и повторяет операцию.
var (
	ErrValidation         = errors.New("validation failed")
	ErrSlotUnavailable    = errors.New("slot is no longer available")
	ErrCapacityExceeded   = errors.New("session capacity exceeded")
	ErrPaymentFailed      = errors.New("payment failed")
	ErrNotEnrolled        = errors.New("student is not enrolled in session")
	ErrInvalidTransition  = errors.New("invalid session status transition")
	ErrSessionNotFound    = errors.New("session not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrVersionConflict    = errors.New("session was modified concurrently")
	ErrPermissionDenied   = errors.New("no permission for this session")
	ErrAlreadyEnrolled    = errors.New("student is already enrolled in session")
	ErrAlternativeMissing = errors.New("alternative was not proposed for this session")
)

// ValidationError некорректные входные данные, ничего не записано
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidTransitionError действие недопустимо из текущего статуса
type InvalidTransitionError struct {
	From   SessionStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session status transition: cannot %s from %q", e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// PaymentFailedError платёж не прошёл, занятие осталось в requested. Можно повторить.
// OutcomeUnknown означает, что шлюз не ответил и списание могло пройти: повтор
// должен идти с тем же ключом идемпотентности.
type PaymentFailedError struct {
	StudentID      int64
	Reason         string
	OutcomeUnknown bool
}

func (e *PaymentFailedError) Error() string {
	return fmt.Sprintf("payment failed for student %d: %s", e.StudentID, e.Reason)
}

func (e *PaymentFailedError) Unwrap() error { return ErrPaymentFailed }

// Retryable повтор принятия имеет смысл
func (e *PaymentFailedError) Retryable() bool { return true }

// IsPaymentDeclined шлюз явно отказал и ни одно списание не осталось с неизвестным
// исходом: следующая попытка может идти с новым ключом идемпотентности
func IsPaymentDeclined(err error) bool {
	var pfe *PaymentFailedError
	return errors.As(err, &pfe) && !pfe.OutcomeUnknown
}
