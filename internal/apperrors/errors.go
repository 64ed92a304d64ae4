// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. All kinds map to 4xx responses; none is
// retryable inside the core.
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindAuthorization Kind = "AUTHORIZATION_ERROR"
	KindState         Kind = "STATE_ERROR"
	KindBusinessRule  Kind = "BUSINESS_RULE_ERROR"
	KindNotFound      Kind = "NOT_FOUND"
)

// Error carries the failure kind plus the offending field so the API layer
// can build a precise 4xx response.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func Validation(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func State(format string, args ...interface{}) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

func BusinessRule(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindBusinessRule, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Field: resource, Message: resource + " not found"}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// AsError unwraps err into an *Error, if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
