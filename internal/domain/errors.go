// Package domain defines core types, interfaces, and errors for the ETL orchestrator.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., a pipeline that is already running).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ValidationError indicates that transformed data does not conform to its
// TableModel. It fails the whole batch.
type ValidationError struct {
	Model   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Model == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for model %q: %s", e.Model, e.Message)
}

// ConfigurationError indicates a malformed pipeline, model or config declaration,
// or a transform whose output does not line up with its declared models.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Message }

// ExtractionError wraps a failure raised by a pipeline's extract step.
type ExtractionError struct {
	Pipeline string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q: %v", e.Pipeline, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError wraps a failure from blob I/O or a table create/write/merge/scan.
type StorageError struct {
	Op     string // e.g. "create", "overwrite", "upload"
	Target string // table path or blob key
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError for the given model with a formatted message.
func ErrValidation(model, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Model: model, Message: fmt.Sprintf(format, args...)}
}

// ErrConfiguration creates a ConfigurationError with a formatted message.
func ErrConfiguration(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ErrStorage wraps err as a StorageError. It returns nil when err is nil and
// leaves an existing StorageError untouched.
func ErrStorage(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*StorageError); ok {
		return se
	}
	return &StorageError{Op: op, Target: target, Err: err}
}
