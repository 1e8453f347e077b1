package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/anstrom/scanvault/internal/api/middleware"
	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/storage"
)

// ErrorResponse represents a standard API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// httpStatus maps an error to the HTTP status reported for it.
func httpStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeMalformedDocument, errors.CodeMissingField, errors.CodeInvalidValue,
		errors.CodeInvalidEnum, errors.CodeNoScan:
		return http.StatusUnprocessableEntity
	case errors.CodeDocumentTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.CodeConflict, errors.CodeDuplicateScan:
		return http.StatusConflict
	case errors.CodeTimeout, errors.CodeServiceTimeout, errors.CodeDatabaseTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeServiceUnavailable, errors.CodeDatabaseConnection:
		return http.StatusServiceUnavailable
	case errors.CodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the code reported to clients; a body cut off by the request
// size limit reads as an oversized document.
func errorCode(err error) errors.ErrorCode {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.CodeDocumentTooLarge
	}
	return errors.GetCode(err)
}

// clientMessage hides the details of internal failures.
func clientMessage(err error, status int) string {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable &&
		status != http.StatusGatewayTimeout {
		return "internal server error"
	}
	return err.Error()
}

// writeError writes a standardized error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	fields := []any{
		"request_id", middleware.GetRequestID(r),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("API error", fields...)
	} else {
		s.logger.Debug("API request rejected", fields...)
	}

	s.writeJSON(w, r, status, ErrorResponse{
		Error:     clientMessage(err, status),
		Code:      string(errorCode(err)),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response",
			"error", err,
			"path", r.URL.Path,
			"method", r.Method)
	}
}

// pageRequest reads a page request from the query string. Unset values are
// filled in by the store.
func pageRequest(r *http.Request) (storage.PageRequest, error) {
	query := r.URL.Query()
	var page storage.PageRequest

	for _, field := range []struct {
		key string
		dst *int
	}{
		{"page_number", &page.PageNumber},
		{"items_per_page", &page.ItemsPerPage},
	} {
		raw := query.Get(field.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, errors.NewReportValueError(errors.CodeValidation, field.key+" must be an integer", raw)
		}
		*field.dst = n
	}

	page.SortColumn = query.Get("sort_column")
	if raw := query.Get("sort_ascending"); raw != "" {
		asc, err := strconv.ParseBool(raw)
		if err != nil {
			return page, errors.NewReportValueError(errors.CodeValidation, "sort_ascending must be a boolean", raw)
		}
		page.SortAscending = asc
	}
	return page, nil
}
