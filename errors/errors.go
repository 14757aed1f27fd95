package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	KindTechnical          = "TECHNICAL"
	KindBadRequest         = "BAD_REQUEST"
	KindSourceNotFound     = "SOURCE_NOT_FOUND"
	KindConnectionFailure  = "CONNECTION_FAILURE"
	KindConflict           = "CONFLICT"
	KindTypeConflict       = "TYPE_CONFLICT"
	KindNotFound           = "NOT_FOUND"
	KindUnsupportedFeature = "UNSUPPORTED_FEATURE"
)

// Sentinels to use with errors.Is. Matching is done on Kind only.
var (
	ErrTechnical          = &CustomError{Kind: KindTechnical}
	ErrBadRequest         = &CustomError{Kind: KindBadRequest}
	ErrSourceNotFound     = &CustomError{Kind: KindSourceNotFound}
	ErrConnectionFailure  = &CustomError{Kind: KindConnectionFailure}
	ErrConflict           = &CustomError{Kind: KindConflict}
	ErrTypeConflict       = &CustomError{Kind: KindTypeConflict}
	ErrNotFound           = &CustomError{Kind: KindNotFound}
	ErrUnsupportedFeature = &CustomError{Kind: KindUnsupportedFeature}
)

type CustomError struct {
	Code    int
	Kind    string
	Message string
	Cause   error
}

func (e *CustomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Cause
}

func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

func newError(code int, kind string, format string, args ...any) *CustomError {
	return &CustomError{
		Code:    code,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

func Technical(format string, args ...any) error {
	return newError(http.StatusInternalServerError, KindTechnical, format, args...)
}

func BadRequest(format string, args ...any) error {
	return newError(http.StatusBadRequest, KindBadRequest, format, args...)
}

func SourceNotFound(sourceId string) error {
	return newError(http.StatusNotFound, KindSourceNotFound, "data source %s not found", sourceId)
}

func ConnectionFailure(cause error, format string, args ...any) error {
	err := newError(http.StatusServiceUnavailable, KindConnectionFailure, format, args...)
	err.Cause = cause
	return err
}

func Conflict(format string, args ...any) error {
	return newError(http.StatusConflict, KindConflict, format, args...)
}

func TypeConflict(format string, args ...any) error {
	return newError(http.StatusConflict, KindTypeConflict, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(http.StatusNotFound, KindNotFound, format, args...)
}

func UnsupportedFeature(format string, args ...any) error {
	return newError(http.StatusNotImplemented, KindUnsupportedFeature, format, args...)
}

// Wrap attaches a database or I/O failure to a technical error.
func Wrap(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	var ce *CustomError
	if errors.As(cause, &ce) {
		return cause
	}
	err := newError(http.StatusInternalServerError, KindTechnical, format, args...)
	err.Cause = cause
	return err
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return http.StatusInternalServerError
}

// GetKind returns the error kind, or KindTechnical for foreign errors.
func GetKind(err error) string {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTechnical
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func New(message string) error {
	return errors.New(message)
}
