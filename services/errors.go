package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrInvalidSession        = errors.New("invalid or expired session")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidOrExpiredOTP   = errors.New("invalid or expired code")
	ErrUnauthorized          = errors.New("authentication required")
	ErrBlocked               = errors.New("account is blocked")
	ErrForbidden             = errors.New("forbidden")
	ErrEmailNotVerified      = errors.New("email address not verified")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrSoldOut               = errors.New("not enough seats left")
	ErrUnavailable           = errors.New("feature not configured")
)

// ValidationError lists the offending fields. It matches ErrValidation with
// errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Err returns nil when no field was added.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, msg string) error {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}
