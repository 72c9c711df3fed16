// Package validator checks decoded request bodies against their validate tags
// and describes failures using the JSON field names clients sent.
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// notificationTypePattern matches categories such as "payment" or "booking.confirmed".
var notificationTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

var engine = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("json_payload", validJSONPayload)
	_ = v.RegisterValidation("notification_type", validNotificationType)
	return v
})

// FieldError is one failed rule on one field.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// Message renders the failure for API clients, e.g. "title is required".
func (e FieldError) Message() string {
	field := strings.ToLower(strings.ReplaceAll(e.Field, "_", " "))
	if field == "" {
		field = "field"
	}

	switch e.Tag {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param)
	case "uuid", "uuid4":
		return field + " must be a valid UUID"
	case "json_payload":
		return field + " must be valid JSON"
	case "notification_type":
		return field + " must be lowercase words joined by dots"
	}
	if e.Param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, e.Tag)
}

// Errors lists every failed rule of a struct.
type Errors []FieldError

func (v Errors) Error() string {
	if len(v) == 0 {
		return "invalid request payload"
	}
	messages := make([]string, len(v))
	for i, failure := range v {
		messages[i] = failure.Message()
	}
	return strings.Join(messages, "; ")
}

// Struct validates s. Rule failures come back as Errors; anything else means
// s could not be validated at all.
func Struct(s any) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}

	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return err
	}
	out := make(Errors, 0, len(failures))
	for _, fe := range failures {
		out = append(out, FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

// validJSONPayload accepts an absent payload or any well-formed JSON document.
func validJSONPayload(fl validator.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(json.RawMessage)
	if !ok {
		return false
	}
	if strings.TrimSpace(string(raw)) == "" {
		return true
	}
	return json.Valid(raw)
}

func validNotificationType(fl validator.FieldLevel) bool {
	return notificationTypePattern.MatchString(fl.Field().String())
}
