// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide; it caches struct
// metadata and is safe for concurrent use. Field names in messages use the
// json tag so they match what callers sent on the wire.
//
// Custom tags:
//   - channel: video, audio, screen or navigation
//   - severity: low, medium or high
//   - incident_status: a known incident review status
//   - command: a known Session Control command
//
// Example usage:
//
//	type SubmitSignalRequest struct {
//	    SessionID string  `json:"session_id" validate:"required,max=128"`
//	    Channel   string  `json:"channel" validate:"required,channel"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    return verr.ToDomainError()
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/TheInvigilator-dev/theinvigilator-mvp-sub000/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError is a single field failure.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the wire name of the field that failed.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter, e.g. "128" for "max=128".
func (e *ValidationError) Param() string { return e.param }

// Value returns the rejected value.
func (e *ValidationError) Value() interface{} { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every field failure of one request.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field failures.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}

	messages := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ToDomainError converts the failure into a malformed_request domain error.
func (ve *RequestValidationError) ToDomainError() *models.Error {
	return models.Errorf(models.ErrMalformedRequest, "%s", ve.Error())
}

// Details returns per-field details for an API error body.
func (ve *RequestValidationError) Details() []map[string]interface{} {
	out := make([]map[string]interface{}, len(ve.errors))
	for i, err := range ve.errors {
		out[i] = map[string]interface{}{
			"field":   err.field,
			"tag":     err.tag,
			"message": err.message,
		}
	}
	return out
}

// GetValidator returns the singleton validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		mustRegister("channel", func(fl validator.FieldLevel) bool {
			return models.Channel(fl.Field().String()).Valid()
		})
		mustRegister("severity", func(fl validator.FieldLevel) bool {
			return models.Severity(fl.Field().String()).Valid()
		})
		mustRegister("incident_status", func(fl validator.FieldLevel) bool {
			return models.IncidentStatus(fl.Field().String()).Valid()
		})
		mustRegister("command", func(fl validator.FieldLevel) bool {
			return models.CommandType(fl.Field().String()).Valid()
		})
		mustRegister("entity_id", func(fl validator.FieldLevel) bool {
			return validEntityID(fl.Field().String())
		})
	})

	return validate
}

// validEntityID rejects control characters. Stores use NUL as a key
// separator after IDs.
func validEntityID(id string) bool {
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// ValidateStruct validates s. It returns nil on success.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fieldErr.Field(),
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			value:   fieldErr.Value(),
			message: translateError(fieldErr),
		}
	}

	return &RequestValidationError{errors: fieldErrors}
}

// errorMessageTemplates maps tags to templates taking the field name.
var errorMessageTemplates = map[string]string{
	"required":        "%s is required",
	"channel":         "%s must be one of: video audio screen navigation",
	"severity":        "%s must be one of: low medium high",
	"incident_status": "%s must be a known incident status",
	"command":         "%s must be a known command",
	"entity_id":       "%s must not contain control characters",
	"uuid":            "%s must be a valid UUID",
}

// errorMessageWithParam maps tags to templates taking field and param.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError) string {
	field := fe.Field()
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}
	return translateMinMax(fe, field, tag, param)
}

func translateMinMax(fe validator.FieldError, field, tag, param string) string {
	isString := fe.Kind() == reflect.String
	isSlice := fe.Kind() == reflect.Slice

	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		if isSlice {
			return fmt.Sprintf("%s must contain at least %s items", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		if isSlice {
			return fmt.Sprintf("%s must contain at most %s items", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
