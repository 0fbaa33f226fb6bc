package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"propdash/internal/domain"
)

// errorBody is the envelope every failed request receives.
type errorBody struct {
	Error      errorDetail `json:"error"`
	RetryAfter *int        `json:"retry_after,omitempty"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var processing *domain.ProcessingError
	var storage *domain.StorageError
	var rateLimit *domain.RateLimitError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &processing):
		if processing.Code == domain.CodeFileTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case errors.As(err, &storage):
		return http.StatusServiceUnavailable
	case errors.As(err, &rateLimit):
		return http.StatusTooManyRequests
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorCode returns the stable machine code carried by err.
func errorCode(err error) string {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var processing *domain.ProcessingError
	var storage *domain.StorageError
	var rateLimit *domain.RateLimitError

	switch {
	case errors.As(err, &validation):
		return validation.Code
	case errors.As(err, &processing):
		return processing.Code
	case errors.As(err, &storage):
		return storage.Code
	case errors.As(err, &rateLimit):
		return domain.CodeRateLimitExceeded
	case errors.As(err, &notFound):
		return domain.CodeSessionExpired
	default:
		return domain.CodeInternal
	}
}

// errorMessage returns the caller-facing message. Unclassified and storage
// errors never leak their internals.
func errorMessage(err error) string {
	var validation *domain.ValidationError
	var processing *domain.ProcessingError
	var storage *domain.StorageError
	var rateLimit *domain.RateLimitError
	var notFound *domain.NotFoundError

	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &processing):
		return processing.Message
	case errors.As(err, &storage):
		return "Session storage is temporarily unavailable. Please try again."
	case errors.As(err, &rateLimit):
		return rateLimit.Error()
	case errors.As(err, &notFound):
		return notFound.Message
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// writeError renders err in the error envelope with its mapped status.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := httpStatusFromDomainError(err)
	body := errorBody{Error: errorDetail{
		Code:      errorCode(err),
		Message:   errorMessage(err),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}

	var rateLimit *domain.RateLimitError
	if errors.As(err, &rateLimit) {
		secs := max(int(rateLimit.RetryAfter.Round(time.Second)/time.Second), 1)
		body.RetryAfter = &secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "code", body.Error.Code, "error", err)
	default:
		logger.Info("request rejected", "status", status, "code", body.Error.Code, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
