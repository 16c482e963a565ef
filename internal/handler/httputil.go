// Package handler implements the JSON HTTP API over the ledger.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/lease"
	"github.com/matthewbaird/immo/internal/payment"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("writeJSON encode error", zap.Error(err))
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes and validates the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}

// parseUUID extracts and validates a UUID path parameter.
func parseUUID(w http.ResponseWriter, r *http.Request, paramName string) (string, bool) {
	raw := chi.URLParam(r, paramName)
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "invalid UUID: "+raw)
		return "", false
	}
	return id.String(), true
}

// parseDate parses an optional YYYY-MM-DD value. Empty input yields the zero
// time.
func parseDate(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination extracts page_size and offset from query params.
func parsePagination(r *http.Request) Pagination {
	p := Pagination{Limit: 20, Offset: 0}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	return p
}

// storeErrorToHTTP maps domain and store errors to HTTP responses.
func storeErrorToHTTP(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, payment.ErrInvalidInput), errors.Is(err, lease.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, rental.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, "OUT_OF_RANGE", err.Error())
	case errors.Is(err, rental.ErrEmptySelection):
		writeError(w, http.StatusUnprocessableEntity, "EMPTY_SELECTION", err.Error())
	case errors.Is(err, rental.ErrSelectionGap), errors.Is(err, rental.ErrOutsideWindow):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_SELECTION", err.Error())
	case errors.Is(err, rental.ErrMonthPaid):
		writeError(w, http.StatusConflict, "MONTH_PAID", err.Error())
	case errors.Is(err, rental.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, rental.ErrNotLongTerm), errors.Is(err, rental.ErrNotShortTerm), errors.Is(err, rental.ErrNotActive):
		writeError(w, http.StatusConflict, "WRONG_CONTRACT_STATE", err.Error())
	case errors.Is(err, store.ErrUnitUnavailable):
		writeError(w, http.StatusConflict, "UNIT_UNAVAILABLE", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	default:
		zap.L().Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// parseAuditContext extracts audit metadata from request headers.
func parseAuditContext(w http.ResponseWriter, r *http.Request) (types.AuditInfo, bool) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACTOR", "X-Actor header is required")
		return types.AuditInfo{}, false
	}
	source := r.Header.Get("X-Source")
	if source == "" {
		source = "user"
	}
	info := types.AuditInfo{
		Actor:  actor,
		Source: source,
	}
	if cid := r.Header.Get("X-Correlation-ID"); cid != "" {
		info.CorrelationID = &cid
	}
	return info, true
}
