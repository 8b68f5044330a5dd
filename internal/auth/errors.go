package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation     = errors.New("auth: validation failed")
	ErrConflict       = errors.New("auth: email already registered")
	ErrAuthentication = errors.New("auth: unauthenticated")
	ErrNotFound       = errors.New("auth: not found")
	ErrStorage        = errors.New("auth: storage failure")

	// ErrInvalidCredentials is returned for both unknown email and wrong password.
	ErrInvalidCredentials = fmt.Errorf("%w: unable to login", ErrAuthentication)
)

// ValidationError lists field problems. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Rejection reasons reported by Authenticate.
const (
	ReasonMissingToken     = "missing token"
	ReasonBadScheme        = "bad scheme"
	ReasonInvalidSignature = "invalid signature"
	ReasonUnknownIdentity  = "unknown identity"
	ReasonRevoked          = "revoked token"
)

// RejectionError explains why a bearer token was refused. It matches ErrAuthentication.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "auth: unauthenticated: " + e.Reason }

func (e *RejectionError) Unwrap() error { return ErrAuthentication }

// RejectionReason extracts the reason from err, or "" when err is not a rejection.
func RejectionReason(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

// storageFailure wraps unexpected repository errors in ErrStorage. Domain kinds pass through.
func storageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
