// Package huberrors provides sentinel and custom error types for the application.
package huberrors

import (
	"strings"
)

// ErrNotFound represents a "not found" error.
// Use when a requested form (or other resource) doesn't exist.
var ErrNotFound = &NotFoundError{}

// ErrFormNotFound is returned when a submission targets a form that does not exist or was deleted.
// It matches ErrNotFound too.
var ErrFormNotFound = &NotFoundError{Resource: "form", Message: "form not found"}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is matches any NotFoundError target without a resource, or one naming the same resource.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)

	return ok && (t.Resource == "" || t.Resource == e.Resource)
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ValidationErrors collects one ValidationError per offending field.
// errors.Is(errs, ErrValidation) is true when the slice is non-empty.
type ValidationErrors []*ValidationError

// Error joins the field messages.
func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		if e.Field != "" {
			msgs = append(msgs, e.Field+": "+e.Error())
		} else {
			msgs = append(msgs, e.Error())
		}
	}

	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual field errors to errors.Is and errors.As.
func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, len(v))
	for i, e := range v {
		errs[i] = e
	}

	return errs
}

// Fields returns the offending field names in order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, len(v))
	for i, e := range v {
		fields[i] = e.Field
	}

	return fields
}

// ErrForbidden is the sentinel for ownership violations.
var ErrForbidden = &ForbiddenError{}

// ForbiddenError is returned when the caller does not own the resource.
type ForbiddenError struct {
	Message string
}

// NewForbiddenError creates a ForbiddenError with a custom message.
func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{Message: message}
}

// Error implements the error interface.
func (e *ForbiddenError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "forbidden"
}

// Is implements the error interface for error comparison.
func (e *ForbiddenError) Is(target error) bool {
	_, ok := target.(*ForbiddenError)

	return ok
}

// ErrStoreWrite is the sentinel for persistence failures on create/update/delete.
var ErrStoreWrite = &StoreWriteError{}

// StoreWriteError wraps the underlying storage failure of a write.
type StoreWriteError struct {
	Op  string
	Err error
}

// NewStoreWriteError wraps err for the named operation.
func NewStoreWriteError(op string, err error) *StoreWriteError {
	return &StoreWriteError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *StoreWriteError) Error() string {
	if e.Err == nil {
		return "store write failed"
	}

	if e.Op == "" {
		return "store write failed: " + e.Err.Error()
	}

	return "failed to " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the storage error.
func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *StoreWriteError) Is(target error) bool {
	_, ok := target.(*StoreWriteError)

	return ok
}

// ErrIndexMissing is the sentinel for queries rejected because a required index or relation is absent.
var ErrIndexMissing = &IndexMissingError{}

// IndexMissingError carries the storage diagnostic so operators can create the missing index.
type IndexMissingError struct {
	Index  string
	Detail string
}

// NewIndexMissingError creates an IndexMissingError.
func NewIndexMissingError(index, detail string) *IndexMissingError {
	return &IndexMissingError{Index: index, Detail: detail}
}

// Error implements the error interface.
func (e *IndexMissingError) Error() string {
	msg := "required index missing"
	if e.Index != "" {
		msg += " (" + e.Index + ")"
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

// Is matches ErrIndexMissing and ErrStoreWrite: a missing index is a kind of store failure.
func (e *IndexMissingError) Is(target error) bool {
	switch target.(type) {
	case *IndexMissingError, *StoreWriteError:
		return true
	default:
		return false
	}
}

// ErrIncomplete is the sentinel for submissions missing required answers.
var ErrIncomplete = &IncompleteError{}

// IncompleteError lists the text of every required question left unanswered.
type IncompleteError struct {
	Missing []string
}

// NewIncompleteError creates an IncompleteError.
func NewIncompleteError(missing []string) *IncompleteError {
	return &IncompleteError{Missing: missing}
}

// Error implements the error interface.
func (e *IncompleteError) Error() string {
	if len(e.Missing) == 0 {
		return "required questions unanswered"
	}

	return "required questions unanswered: " + strings.Join(e.Missing, ", ")
}

// Is implements the error interface for error comparison.
func (e *IncompleteError) Is(target error) bool {
	_, ok := target.(*IncompleteError)

	return ok
}

// ErrResponsePersist is the sentinel for a submission whose response could not be stored.
// The caller may retry with the same answers.
var ErrResponsePersist = &ResponsePersistError{}

// ResponsePersistError wraps the append failure.
type ResponsePersistError struct {
	Err error
}

// NewResponsePersistError wraps err.
func NewResponsePersistError(err error) *ResponsePersistError {
	return &ResponsePersistError{Err: err}
}

// Error implements the error interface.
func (e *ResponsePersistError) Error() string {
	if e.Err == nil {
		return "failed to persist response"
	}

	return "failed to persist response: " + e.Err.Error()
}

// Unwrap returns the store error.
func (e *ResponsePersistError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *ResponsePersistError) Is(target error) bool {
	_, ok := target.(*ResponsePersistError)

	return ok
}

// ErrNotification is the sentinel for a failed notification delivery. Never fatal to a submission.
var ErrNotification = &NotificationError{}

// NotificationError records which channel failed.
type NotificationError struct {
	Channel string
	Err     error
}

// NewNotificationError wraps err for channel.
func NewNotificationError(channel string, err error) *NotificationError {
	return &NotificationError{Channel: channel, Err: err}
}

// Error implements the error interface.
func (e *NotificationError) Error() string {
	msg := "notification failed"
	if e.Channel != "" {
		msg = e.Channel + " " + msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the transport error.
func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *NotificationError) Is(target error) bool {
	_, ok := target.(*NotificationError)

	return ok
}
