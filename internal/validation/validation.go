package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CodeTag is the struct tag that checks domain and standard codes.
const CodeTag = "stdcode"

var codeRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON field names, not Go names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(CodeTag, func(fl validator.FieldLevel) bool {
		return ValidCode(fl.Field().String())
	})
	return v
}

// ValidCode reports whether code only uses letters, digits, dots, underscores and hyphens.
func ValidCode(code string) bool {
	return codeRegex.MatchString(code)
}

// FieldError points at a single offending field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is returned when a struct fails its validate tags.
type Error struct {
	Err    error
	Fields []FieldError
}

// ErrInvalid is the cause of every *Error produced by Struct.
var ErrInvalid = errors.New("validation failed")

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return fmt.Sprintf("%s: %s", e.Err, strings.Join(parts, "; "))
}

func (e *Error) Unwrap() error { return e.Err }

// Struct validates s and converts validator failures into *Error.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe), Error: message(fe)})
	}
	return &Error{Err: ErrInvalid, Fields: fields}
}

// NewError builds a single-field *Error.
func NewError(field, msg string) error {
	return &Error{Err: ErrInvalid, Fields: []FieldError{{Field: field, Error: msg}}}
}

// fieldPath drops the root struct name from the namespace, e.g.
// "Request.domains[0].code" becomes "domains[0].code".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case CodeTag:
		return "only letters, digits, '.', '_' and '-' are allowed"
	case "min":
		return fmt.Sprintf("must contain at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s", fe.Param())
	default:
		return "is invalid"
	}
}
