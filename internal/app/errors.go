package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"barangay/api/internal/auth"
	"barangay/api/internal/domain"
	"barangay/api/internal/export"
	"barangay/api/internal/register"
	"barangay/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var authz *domain.AuthorizationError
	var invalid *domain.InvalidTransitionError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var unavailable *domain.StoreUnavailableError
	switch {
	case errors.As(err, &authz):
		return http.StatusForbidden, "FORBIDDEN", authz.Error(), nil
	case errors.As(err, &invalid):
		return http.StatusConflict, "INVALID_TRANSITION", invalid.Error(), map[string]any{"status": invalid.From, "action": invalid.Action}
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", validation.Fields
	case errors.As(err, &conflict):
		return http.StatusConflict, "CONFLICT", conflict.Error(), map[string]any{"version": conflict.Actual}
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "The records service is unavailable, try again", nil
	case errors.Is(err, store.ErrNotFound) || errors.Is(err, register.ErrNoEntry):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
