// Package validation wraps go-playground/validator with the custom tags the
// service configuration needs.
package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/visitors"
)

// Validator validates structs using struct tags. Field names in messages come
// from the env tag, then the json tag, then the Go field name.
type Validator struct {
	validate *validator.Validate
}

// FieldError represents a single validation failure
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// a1Range matches sheet-qualified A1 ranges such as "carteirinhas_ok!A2:D"
// or "'Sheet 1'!A:D"
var a1Range = regexp.MustCompile(`^('[^']+'|[^!'\s][^!']*)![A-Za-z]{1,3}[0-9]*(:[A-Za-z]{1,3}[0-9]*)?$`)

// New creates a validator with the custom tags registered
func New() *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"env", "json"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	// Standard five-field cron expressions and descriptors like @hourly
	_ = v.RegisterValidation("cron_expression", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})

	_ = v.RegisterValidation("key_policy", func(fl validator.FieldLevel) bool {
		_, err := visitors.ParseKeyPolicy(fl.Field().String())
		return err == nil
	})

	_ = v.RegisterValidation("sheet_range", func(fl validator.FieldLevel) bool {
		return a1Range.MatchString(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Struct validates s and returns a configuration error listing every failure
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrors := v.Errors(err)
	messages := make([]string, len(fieldErrors))
	for i, e := range fieldErrors {
		messages[i] = e.Message
	}
	return errors.ConfigError(fmt.Sprintf("invalid configuration: %s", strings.Join(messages, "; ")))
}

// Var validates a single value against tag
func (v *Validator) Var(field interface{}, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return errors.ConfigError(v.Errors(err)[0].Message)
	}
	return nil
}

// Errors converts a validator error into structured field errors
func (v *Validator) Errors(err error) []FieldError {
	var validationErrs validator.ValidationErrors
	if !stderrors.As(err, &validationErrs) {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprintf("%v", fe.Value()),
			Message: message(fe),
			Param:   fe.Param(),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must be a number", fe.Field())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", fe.Field())
	case "cron_expression":
		return fmt.Sprintf("%s must be a valid cron expression", fe.Field())
	case "key_policy":
		return fmt.Sprintf("%s must be one of: numeric, strip-zeros, opaque", fe.Field())
	case "sheet_range":
		return fmt.Sprintf("%s must be an A1 range with a sheet name, e.g. Sheet1!A2:D", fe.Field())
	default:
		return fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}
}

var global = New()

// ValidateStruct validates s with the shared validator
func ValidateStruct(s interface{}) error {
	return global.Struct(s)
}

// ValidateVar validates a single value with the shared validator
func ValidateVar(field interface{}, tag string) error {
	return global.Var(field, tag)
}
