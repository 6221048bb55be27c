// Package validation wraps go-playground/validator with the service's field error format
// and the text sanitisation rules applied to user supplied content.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/libris-hub/libris/internal/shared"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// New creates a validator with the custom tags registered.
func New() *Validator {
	return NewWithClock(time.Now)
}

// NewWithClock creates a validator whose notfuture tag compares against now().
func NewWithClock(now func() time.Time) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	out := &Validator{v: v, now: now}
	_ = v.RegisterValidation("notfuture", out.notFutureYear)
	_ = v.RegisterValidation("safetext", func(fl validator.FieldLevel) bool {
		return CheckMarkup(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("richtext", func(fl validator.FieldLevel) bool {
		return CheckRichText(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return out
}

// Validate validates a struct and returns a *shared.Error carrying field messages.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// CurrentYear reports the calendar year used by the notfuture tag.
func (v *Validator) CurrentYear() int {
	return v.now().Year()
}

func (v *Validator) notFutureYear(fl validator.FieldLevel) bool {
	return fl.Field().Int() <= int64(v.CurrentYear())
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		if _, seen := fields[e.Field()]; seen {
			continue
		}
		fields[e.Field()] = v.friendlyMessage(e)
	}
	return shared.Validation(fields)
}

//nolint:gocyclo // one case per supported tag.
func (v *Validator) friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("ensure this field has at least %s characters", e.Param())
		}
		return "ensure this value is greater than or equal to " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("ensure this field has no more than %s characters", e.Param())
		}
		return "ensure this value is less than or equal to " + e.Param()
	case "gt":
		return "ensure this value is greater than " + e.Param()
	case "gte":
		return "ensure this value is greater than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "alphanumunicode":
		return "may contain only letters and digits"
	case "username":
		return "may contain only letters, digits and @/./+/-/_ characters"
	case "url":
		return "enter a valid URL"
	case "notfuture":
		return fmt.Sprintf("publication year cannot be in the future; current year is %d", v.CurrentYear())
	case "safetext":
		return messageFor(CheckMarkup(stringValue(e.Value())))
	case "richtext":
		return messageFor(CheckRichText(stringValue(e.Value())))
	default:
		return "is invalid"
	}
}

func stringValue(v any) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return fmt.Sprint(v)
}

func messageFor(err error) string {
	if err == nil {
		return "is invalid"
	}
	return err.Error()
}
