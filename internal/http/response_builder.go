// Package http provides HTTP server and handler implementations.
//
// This file implements a small builder for JSON responses and the mapping
// from ledger errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.data)
}

type errorBody struct {
	Error string `json:"error"`
	Index *int   `json:"index,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(errorBody{Error: message})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	ErrorResponse(statusCode, message).Write(w)
}

// validationErrors are rejected inputs rather than server faults.
var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrInvalidDate,
	core.ErrEmptyDescription,
	core.ErrDescriptionTooLong,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StoreErrorResponse maps an error from the ledger store to a response:
// malformed import files are 400, rejected records 422, the rest 500.
func StoreErrorResponse(err error) *JSONResponseBuilder {
	var importErr *ledger.ImportError
	switch {
	case errors.Is(err, ledger.ErrImportFormat):
		return ErrorResponse(http.StatusBadRequest, err.Error())
	case errors.As(err, &importErr):
		idx := importErr.Index
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Data(errorBody{Error: importErr.Error(), Index: &idx})
	case isValidationError(err):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	default:
		return ErrorResponse(http.StatusInternalServerError, "failed to save transactions")
	}
}
