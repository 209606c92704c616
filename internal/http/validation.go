package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/recurrence"
)

var (
	requestValidatorOnce sync.Once
	requestValidator     *validator.Validate
)

// validatorInstance returns the shared validator. Field names in reports follow json tags and
// two custom tags are registered: "clock" for HH:MM values and "isodate" for YYYY-MM-DD.
func validatorInstance() *validator.Validate {
	requestValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			switch name {
			case "-":
				return ""
			case "":
				return field.Name
			}
			return name
		})
		mustRegister(v, "clock", func(fl validator.FieldLevel) bool {
			_, err := recurrence.ParseTimeOfDay(fl.Field().String())
			return err == nil
		})
		mustRegister(v, "isodate", func(fl validator.FieldLevel) bool {
			_, err := recurrence.ParseDate(fl.Field().String())
			return err == nil
		})
		requestValidator = v
	})
	return requestValidator
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("http: register %s validation: %v", tag, err))
	}
}

// validateRequest checks req against its struct tags. Tag failures come back as an
// *application.ValidationError so they share the 422 rendering of service validation.
func validateRequest(req any) error {
	err := validatorInstance().Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	vErr := &application.ValidationError{FieldErrors: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if _, exists := vErr.FieldErrors[field]; exists {
			continue
		}
		vErr.FieldErrors[field] = fieldMessage(field, fe)
	}
	return vErr
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "clock":
		return field + " must be HH:MM"
	case "isodate":
		return field + " must be YYYY-MM-DD"
	default:
		return field + " is invalid"
	}
}
