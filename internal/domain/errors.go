package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AuthorizationError reports an actor attempting something their role does
// not permit. Nothing is mutated when it is returned.
type AuthorizationError struct {
	Actor  string
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("only admins can %s requests", e.Action)
}

// InvalidTransitionError reports an action that is not legal from the
// request's current status.
type InvalidTransitionError struct {
	From   Status
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a request that is %s", e.Action, e.From.Label())
}

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StoreUnavailableError wraps a backend failure. Callers keep their last
// known good snapshot when they see it.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("document store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// ConflictError reports a write against a stale version of a request.
type ConflictError struct {
	RequestID string
	Expected  int
	Actual    int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request %s was modified by someone else (version %d, now %d)", e.RequestID, e.Expected, e.Actual)
}

// CompositionError is recorded when a certificate input such as the
// letterhead logo cannot be loaded. Composition continues without it.
type CompositionError struct {
	Asset string
	Err   error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("certificate asset %s unavailable: %v", e.Asset, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsStoreUnavailable(err error) bool {
	var target *StoreUnavailableError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
