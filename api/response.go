package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/batch"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/feedback"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/query"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/training"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code. Encoding
// happens into a buffer first so headers are only sent after a
// successful encode.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("encoding JSON response failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("writing response body failed", "error", err)
	}
}

// writeError writes the uniform error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeDomainError maps a domain error onto an HTTP status and envelope.
// Unknown errors become an opaque 500; the details stay in the log.
func writeDomainError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, query.ErrEmptyQuery),
		errors.Is(err, tier.ErrInvalidTier),
		errors.Is(err, training.ErrValidation),
		errors.Is(err, batch.ErrValidation),
		errors.Is(err, feedback.ErrInvalidFeedback):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, training.ErrNotFound),
		errors.Is(err, batch.ErrNotFound),
		errors.Is(err, feedback.ErrQueryNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, training.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, training.ErrClosed), errors.Is(err, batch.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeJSON decodes a request body into dst, rejecting unknown fields
// and trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
