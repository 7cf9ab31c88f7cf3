// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes a single failed struct-tag rule.
type FieldError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Param   string      `json:"param,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// Error implements error.
func (e *FieldError) Error() string {
	return e.Message
}

// StructError collects every failed rule for one struct.
type StructError struct {
	Fields []FieldError
}

// Error joins the field messages.
func (e *StructError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i := range e.Fields {
		msgs[i] = e.Fields[i].Message
	}
	return strings.Join(msgs, "; ")
}

// GetValidator returns the process-wide validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates s against its `validate` tags.
// Returns nil when s is valid.
func ValidateStruct(s interface{}) *StructError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}
	return toStructError(err)
}

// ValidateVar validates a single value against a tag expression such as "gte=1,lte=9".
// field names the value in the returned message.
func ValidateVar(field string, value interface{}, tag string) *StructError {
	err := GetValidator().Var(value, tag)
	if err == nil {
		return nil
	}
	se := toStructError(err)
	for i := range se.Fields {
		se.Fields[i].Field = field
		se.Fields[i].Message = translate(field, se.Fields[i].Tag, se.Fields[i].Param)
	}
	return se
}

func toStructError(err error) *StructError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &StructError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}
	out := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: translate(fe.Field(), fe.Tag(), fe.Param()),
		}
	}
	return &StructError{Fields: out}
}

var messageTemplates = map[string]string{
	"required": "%s is required",
	"gt":       "%s must be greater than %s",
	"gte":      "%s must be greater than or equal to %s",
	"lt":       "%s must be less than %s",
	"lte":      "%s must be less than or equal to %s",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"oneof":    "%s must be one of: %s",
	"dive":     "%s contains an invalid element",
}

func translate(field, tag, param string) string {
	tmpl, ok := messageTemplates[tag]
	if !ok {
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
	if strings.Count(tmpl, "%s") == 1 {
		return fmt.Sprintf(tmpl, field)
	}
	return fmt.Sprintf(tmpl, field, param)
}
