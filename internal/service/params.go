package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RequestParams запрос занятия студентом. Если SessionID задан,
// студент записывается в существующее групповое занятие.
type RequestParams struct {
	TeacherID int64      `json:"teacher_id" validate:"required,gt=0"`
	StudentID int64      `json:"student_id" validate:"required,gt=0"`
	CourseID  int64      `json:"course_id" validate:"required,gt=0"`
	Start     time.Time  `json:"start" validate:"required"`
	End       time.Time  `json:"end" validate:"required,gtfield=Start"`
	SessionID *uuid.UUID `json:"session_id"`
}

// RespondParams ответ учителя на запрос
type RespondParams struct {
	SessionID    uuid.UUID        `json:"session_id" validate:"required"`
	TeacherID    int64            `json:"teacher_id" validate:"required,gt=0"`
	Accept       bool             `json:"accept"`
	Alternatives []model.Interval `json:"alternatives" validate:"max=10"`
}

type AlternativeParams struct {
	SessionID   uuid.UUID      `json:"session_id" validate:"required"`
	StudentID   int64          `json:"student_id" validate:"required,gt=0"`
	Alternative model.Interval `json:"alternative"`
}

type AttendanceParams struct {
	SessionID  uuid.UUID        `json:"session_id" validate:"required"`
	TeacherID  int64            `json:"teacher_id" validate:"required,gt=0"`
	StudentID  int64            `json:"student_id" validate:"required,gt=0"`
	Attendance model.Attendance `json:"attendance" validate:"required,oneof=pending present absent"`
}

type CancelParams struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
	ActorID   int64     `json:"actor_id" validate:"required,gt=0"`
	Reason    string    `json:"reason" validate:"max=500"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateParams переводит ошибки validator в *model.ValidationError
func validateParams(params any) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("failed %q check (%s)", fe.Tag(), fe.Param())
		}
		return model.NewValidationError(fe.Field(), reason)
	}
	return model.NewValidationError("", err.Error())
}
