package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/lease"
	"github.com/matthewbaird/immo/internal/payment"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
)

func TestStoreErrorToHTTP(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("contract x: %w", store.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("v2: %w", store.ErrConflict), http.StatusConflict, "CONFLICT"},
		{store.ErrUnitUnavailable, http.StatusConflict, "UNIT_UNAVAILABLE"},
		{rental.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{rental.ErrEmptySelection, http.StatusUnprocessableEntity, "EMPTY_SELECTION"},
		{rental.ErrSelectionGap, http.StatusUnprocessableEntity, "INVALID_SELECTION"},
		{fmt.Errorf("%w: 2024-12", rental.ErrOutsideWindow), http.StatusUnprocessableEntity, "INVALID_SELECTION"},
		{rental.ErrMonthPaid, http.StatusConflict, "MONTH_PAID"},
		{rental.ErrIndexOutOfRange, http.StatusBadRequest, "OUT_OF_RANGE"},
		{fmt.Errorf("%w: amount", payment.ErrInvalidInput), http.StatusBadRequest, "VALIDATION_ERROR"},
		{lease.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR"},
		{rental.ErrNotLongTerm, http.StatusConflict, "WRONG_CONTRACT_STATE"},
		{rental.ErrNotShortTerm, http.StatusConflict, "WRONG_CONTRACT_STATE"},
		{rental.ErrNotActive, http.StatusConflict, "WRONG_CONTRACT_STATE"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			storeErrorToHTTP(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestStoreErrorToHTTP_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	storeErrorToHTTP(rec, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestParseAuditContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Actor", "agent-7")
	r.Header.Set("X-Correlation-ID", "corr-1")
	info, ok := parseAuditContext(httptest.NewRecorder(), r)
	require.True(t, ok)
	assert.Equal(t, "agent-7", info.Actor)
	assert.Equal(t, "user", info.Source)
	require.NotNil(t, info.CorrelationID)
	assert.Equal(t, "corr-1", *info.CorrelationID)

	rec := httptest.NewRecorder()
	_, ok = parseAuditContext(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_ACTOR")
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", 20, 0},
		{"?page_size=5&offset=10", 5, 10},
		{"?page_size=1000", 100, 0},
		{"?page_size=-1&offset=-3", 20, 0},
	}
	for _, tt := range tests {
		p := parsePagination(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
		assert.Equal(t, tt.limit, p.Limit, tt.query)
		assert.Equal(t, tt.offset, p.Offset, tt.query)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
