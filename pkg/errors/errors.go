package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so predefined values work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Error codes shared by the engine, the job runner and the CLI exit mapping.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeModelBuild           = "MODEL_BUILD_ERROR"
	CodeSolverInfeasible     = "SOLVER_INFEASIBLE"
	CodeSolverTimeout        = "SOLVER_TIMEOUT"
	CodeConflictUnresolvable = "CONFLICT_UNRESOLVABLE"
	CodePersistence          = "PERSISTENCE_ERROR"
)

// Predefined errors for common scenarios.
var (
	ErrNotFound             = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict             = New("CONFLICT", http.StatusConflict, "conflict")
	ErrForbidden            = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrValidation           = New(CodeValidation, http.StatusBadRequest, "validation failed")
	ErrModelBuild           = New(CodeModelBuild, http.StatusUnprocessableEntity, "failed to build solver model")
	ErrSolverInfeasible     = New(CodeSolverInfeasible, http.StatusUnprocessableEntity, "no feasible timetable exists for the given constraints")
	ErrSolverTimeout        = New(CodeSolverTimeout, http.StatusGatewayTimeout, "solver time budget exhausted without a proven status")
	ErrConflictUnresolvable = New(CodeConflictUnresolvable, http.StatusConflict, "edit conflicts could not be resolved automatically")
	ErrPersistence          = New(CodePersistence, http.StatusServiceUnavailable, "persistence failure")
	ErrInternal             = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss            = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WrapAs wraps err using the code and status of a predefined error.
func WrapAs(base *Error, err error, message string) *Error {
	if base == nil {
		base = ErrInternal
	}
	if message == "" {
		message = base.Message
	}
	return Wrap(err, base.Code, base.Status, message)
}

// IsCode reports whether err carries the provided code anywhere in its chain.
func IsCode(err error, code string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsTransient reports whether the failure is worth retrying by the task runner.
func IsTransient(err error) bool {
	return IsCode(err, CodePersistence)
}
