// Package apperror defines the error taxonomy shared by the client core and the
// backend. Every failure a caller may want to react to differently maps to one
// sentinel; AppError carries the sentinel together with a human-readable message.
//
// WHY SENTINELS + A STRUCT?
// Callers branch with errors.Is(err, apperror.ErrUpload) and never parse strings.
// The struct keeps the user-facing message separate from the wrapped cause, so a
// notification can show "Failed to upload image: disk full" while logs still see
// the full chain.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUnauthenticated means no valid session exists for the operation.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPermission means the platform refused a capability (location, camera roll).
	ErrPermission = errors.New("permission denied")
	// ErrUpload means an image could not be read or stored.
	ErrUpload = errors.New("upload failed")
	// ErrPersistence means the relational store rejected a read or write.
	ErrPersistence = errors.New("persistence failed")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is returned when an operation needs a signed-in user.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func PermissionDenied(message string) *AppError {
	return &AppError{
		Err:     ErrPermission,
		Message: message,
	}
}

// UploadFailed wraps a storage or read failure. The message is what the user sees.
func UploadFailed(cause error) *AppError {
	msg := "Failed to upload image"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &AppError{
		Err:     ErrUpload,
		Message: msg,
		Cause:   cause,
	}
}

// ImageRejected reports a picked image that fails the size or type rule.
// Nothing was uploaded.
func ImageRejected(field, message string) *AppError {
	return &AppError{
		Err:     ErrUpload,
		Message: message,
		Field:   field,
	}
}

func PersistenceFailed(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: message,
		Cause:   cause,
	}
}

// FieldErrors collects per-field validation messages. It matches ErrValidation.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for k := range f {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, k := range fields {
		msgs = append(msgs, f[k])
	}
	return strings.Join(msgs, "; ")
}

func (f FieldErrors) Unwrap() error {
	return ErrValidation
}

// MessageOf returns the human-readable message carried by err, or fallback when
// err carries none.
func MessageOf(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
