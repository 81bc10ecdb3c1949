// Package httpx holds the JSON envelope shared by the REST handlers.
//
// Successful list and lookup responses are wrapped as {"data": ..., "meta": ...};
// failures as {"error": {"code", "message"}, "correlationId"}.
package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"bunko/internal/middleware"
)

// Error codes returned in the envelope.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error         ErrorBody `json:"error"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

type Envelope struct {
	Data any `json:"data"`
	Meta any `json:"meta,omitempty"`
}

// JSON writes v with the given status.
func JSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// Data writes a 200 envelope.
func Data(ctx context.Context, w http.ResponseWriter, data, meta any) {
	JSON(ctx, w, http.StatusOK, Envelope{Data: data, Meta: meta})
}

// Error writes the error envelope stamped with the request's correlation ID.
func Error(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	JSON(ctx, w, status, ErrorResponse{
		Error:         ErrorBody{Code: code, Message: message},
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
}
