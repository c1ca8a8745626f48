// Package apperror classifies failures into the categories reported to API
// callers.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-oriented failure category.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindAuth       Kind = "auth_error"
	KindStorage    Kind = "storage_error"
	KindAnalysis   Kind = "analysis_error"
	KindDatabase   Kind = "database_error"
	KindUnexpected Kind = "unexpected_error"
)

// Error annotates an error with its category and where it occurred.
type Error struct {
	Kind      Kind
	Operation string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s %s (request_id=%s): %v", e.Kind, e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New wraps err with a category and operation metadata. It returns nil when
// err is nil.
func New(kind Kind, operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Operation: operation, RequestID: requestID, Err: err}
}

// Validation is a shorthand for a validation failure built from a message.
func Validation(operation, message string) error {
	return New(KindValidation, operation, "", errors.New(message))
}

// KindOf reports the category of err. Errors that were never classified are
// unexpected.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindUnexpected
}

// Details returns the human readable part of err without operation names or
// request identifiers.
func Details(err error) string {
	if err == nil {
		return ""
	}
	detail := err
	var appErr *Error
	for errors.As(detail, &appErr) && appErr.Err != nil {
		detail = appErr.Err
	}
	return detail.Error()
}

// Response is the JSON body of every failed API request.
type Response struct {
	Error   Kind   `json:"error"`
	Details string `json:"details"`
}

// ResponseFor builds the API body for err.
func ResponseFor(err error) Response {
	return Response{Error: KindOf(err), Details: Details(err)}
}
