package handler

import (
	"context"
	"net/http"

	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

// UnitStore is the unit persistence behind UnitHandler.
type UnitStore interface {
	CreateUnit(ctx context.Context, u rental.Unit, audit types.AuditInfo) (*rental.Unit, error)
	GetUnit(ctx context.Context, id string) (*rental.Unit, error)
	ListUnits(ctx context.Context, f store.UnitFilter) ([]*rental.Unit, error)
}

// UnitHandler implements HTTP handlers for units.
type UnitHandler struct {
	store UnitStore
}

// NewUnitHandler creates a new UnitHandler.
func NewUnitHandler(s UnitStore) *UnitHandler {
	return &UnitHandler{store: s}
}

type createUnitRequest struct {
	AgencyID  string `json:"agency_id" validate:"required,max=64"`
	Reference string `json:"reference" validate:"required,max=64"`
	Title     string `json:"title" validate:"max=200"`
}

// CreateUnit handles POST /v1/units.
func (h *UnitHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req createUnitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.store.CreateUnit(r.Context(), rental.Unit{
		AgencyID:  req.AgencyID,
		Reference: req.Reference,
		Title:     req.Title,
	}, audit)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// GetUnit handles GET /v1/units/{id}.
func (h *UnitHandler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.store.GetUnit(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListUnits handles GET /v1/units.
func (h *UnitHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	q := r.URL.Query()
	units, err := h.store.ListUnits(r.Context(), store.UnitFilter{
		AgencyID: q.Get("agency_id"),
		Status:   rental.UnitStatus(q.Get("status")),
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	if units == nil {
		units = []*rental.Unit{}
	}
	writeJSON(w, http.StatusOK, units)
}
