// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/libris-hub/libris/internal/shared"
)

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code shared.Code) int {
	switch code {
	case shared.CodeValidation:
		return http.StatusBadRequest
	case shared.CodeUnauthenticated:
		return http.StatusUnauthorized
	case shared.CodeForbidden:
		return http.StatusForbidden
	case shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Errors outside the domain taxonomy are logged and rendered without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var domainErr *shared.Error
	if !errors.As(err, &domainErr) || domainErr.Code == shared.CodeInternal {
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	status := StatusFor(domainErr.Code)
	JSON(w, status, ProblemDetail{
		Type:   string(domainErr.Code),
		Title:  http.StatusText(status),
		Status: status,
		Detail: domainErr.Message,
		Errors: domainErr.Fields,
	})
}
