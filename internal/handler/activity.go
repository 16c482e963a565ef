// Activity handlers operate on the activity store, not the ledger tables.

package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/immo/internal/activity"
	"github.com/matthewbaird/immo/internal/signals"
	"github.com/matthewbaird/immo/internal/types"
)

// ActivityHandler implements HTTP handlers for the activity stream.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// GetEntityActivity returns a chronological activity feed for any entity.
// GET /v1/activity/entity/{entity_type}/{entity_id}
func (h *ActivityHandler) GetEntityActivity(w http.ResponseWriter, r *http.Request) {
	h.entityActivity(w, r, chi.URLParam(r, "entity_type"), chi.URLParam(r, "entity_id"))
}

// GetContractActivity returns the feed of one contract.
// GET /v1/contracts/{id}/activity
func (h *ActivityHandler) GetContractActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	h.entityActivity(w, r, "contract", id)
}

func (h *ActivityHandler) entityActivity(w http.ResponseWriter, r *http.Request, entityType, entityID string) {
	if entityType == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "entity_type and entity_id are required")
		return
	}

	q := r.URL.Query()
	opts := activity.DefaultQueryOptions()
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		}
	}
	if u := q.Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			opts.Until = &t
		}
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if ets := q.Get("event_types"); ets != "" {
		opts.EventTypes = strings.Split(ets, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		opts.MinWeight = mw
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), entityType, entityID, opts)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}

	resp := struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
		Period     struct {
			Since time.Time `json:"since"`
			Until time.Time `json:"until"`
		} `json:"period"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	}
	if opts.Since != nil {
		resp.Period.Since = *opts.Since
	}
	if opts.Until != nil {
		resp.Period.Until = *opts.Until
	}
	if resp.Activities == nil {
		resp.Activities = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetContractSummary returns the payment health of a contract: signal
// counts, trends and escalations over a lookback window.
// GET /v1/contracts/{id}/activity/summary
func (h *ActivityHandler) GetContractSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}

	until := time.Now()
	// Default: 6 months lookback.
	since := until.AddDate(0, -6, 0)
	if s := r.URL.Query().Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			since = t
		}
	}
	opts := activity.QueryOptions{
		Since:     &since,
		Until:     &until,
		MinWeight: "info",
		Limit:     500, // fetch all for aggregation
	}

	entries, _, _, err := h.store.QueryByEntity(r.Context(), "contract", id, opts)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signals.Aggregate(entries, "contract", id, since, until))
}

type searchActivityRequest struct {
	Query      string   `json:"query" validate:"required,max=200"`
	EntityType string   `json:"entity_type,omitempty"`
	Since      string   `json:"since,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty" validate:"gte=0,lte=100"`
}

// SearchActivity searches activity summaries.
// POST /v1/activity/search
func (h *ActivityHandler) SearchActivity(w http.ResponseWriter, r *http.Request) {
	var req searchActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.EntityType = req.EntityType
	opts.Categories = req.Categories
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Since != "" {
		if t, err := time.Parse(time.RFC3339, req.Since); err == nil {
			opts.Since = &t
		}
	}

	entries, totalCount, err := h.store.Search(r.Context(), req.Query, opts)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}

	resp := struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}{
		Results:    entries,
		TotalCount: totalCount,
	}
	if resp.Results == nil {
		resp.Results = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}
