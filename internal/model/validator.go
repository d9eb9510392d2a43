package model

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var voicePattern = regexp.MustCompile(`^[A-Za-z0-9+_-]{1,32}$`)

// NewValidator returns a validator that reports fields by their JSON name and
// knows the "voice" rule for synthesis language identifiers.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("voice", func(fl validator.FieldLevel) bool {
		return voicePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidationDetails maps each failing field to the rule it broke.
func ValidationDetails(err error) map[string]string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		details[e.Field()] = e.Tag()
	}
	return details
}

// ValidationMessage renders a validation error as one line of text.
func ValidationMessage(err error) string {
	details := ValidationDetails(err)
	if len(details) == 0 {
		return "Validation failed"
	}
	fields := make([]string, 0, len(details))
	for f := range details {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s: %s", f, details[f])
	}
	return "Validation failed (" + strings.Join(parts, ", ") + ")"
}
