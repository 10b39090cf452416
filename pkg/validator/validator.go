package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var setupOnce sync.Once

// Setup makes gin's validator report fields by their JSON name.
func Setup() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(jsonTagName)
		}
	})
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// FieldError is a decode failure on a named request field.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Field, e.Reason, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Nest places a decode error from a nested object under parent, so a bad
// exercise_id inside exercises[2] reports as "exercises[2].exercise_id".
func Nest(parent string, err error) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		return &FieldError{Field: parent + "." + fe.Field, Reason: fe.Reason, Err: fe.Err}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &FieldError{Field: parent + "." + typeErr.Field, Reason: "has an invalid type", Err: err}
	}
	return &FieldError{Field: parent, Reason: "is invalid", Err: err}
}

// Message renders a binding error as a single sentence naming each failing
// field, e.g. "patient_id is required; title must be at most 255 characters".
func Message(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field + " " + fe.Reason
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return strings.Join(msgs, "; ")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s has an invalid type", typeErr.Field)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "request body is not valid JSON"
	}

	if err != nil && err.Error() == "EOF" {
		return "request body is required"
	}
	return "invalid request body"
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// fieldPath drops the top-level struct name from the namespace so nested
// fields read as "exercises[1].exercise_id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
