package leadcapture

import (
	"regexp"
	"strings"
)

// Field names a form input.
type Field string

const (
	FieldName     Field = "name"
	FieldEmail    Field = "email"
	FieldIndustry Field = "industry"
)

// Fields lists the form inputs in display order.
func Fields() []Field {
	return []Field{FieldName, FieldEmail, FieldIndustry}
}

// ParseField maps a raw field name to a Field.
func ParseField(s string) (Field, bool) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldName, FieldEmail, FieldIndustry:
		return f, true
	}
	return "", false
}

// ErrorKind classifies a field-level validation failure.
type ErrorKind string

const (
	KindRequired      ErrorKind = "required"
	KindInvalidFormat ErrorKind = "invalid_format"
)

// ValidationError is a validation failure attributed to one field.
type ValidationError struct {
	Field   Field     `json:"field"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ValidationErrors holds at most one error per field.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, string(e.Field)+": "+e.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Field returns the error recorded for f, if any.
func (ve ValidationErrors) Field(f Field) (ValidationError, bool) {
	for _, e := range ve {
		if e.Field == f {
			return e, true
		}
	}
	return ValidationError{}, false
}

const (
	msgNameRequired    = "Name is required"
	msgEmailRequired   = "Email is required"
	msgEmailInvalid    = "Please enter a valid email address"
	msgIndustryMissing = "Please select your industry"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks in and returns the field errors it finds, in field order.
// An empty result means the input can be submitted.
func Validate(in FormInput) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(in.Name) == "" {
		errs = append(errs, ValidationError{Field: FieldName, Kind: KindRequired, Message: msgNameRequired})
	}

	email := strings.TrimSpace(in.Email)
	switch {
	case email == "":
		errs = append(errs, ValidationError{Field: FieldEmail, Kind: KindRequired, Message: msgEmailRequired})
	case !emailPattern.MatchString(email):
		errs = append(errs, ValidationError{Field: FieldEmail, Kind: KindInvalidFormat, Message: msgEmailInvalid})
	}

	if !IsIndustry(in.Industry) {
		errs = append(errs, ValidationError{Field: FieldIndustry, Kind: KindRequired, Message: msgIndustryMissing})
	}

	return errs
}
