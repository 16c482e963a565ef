package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/matthewbaird/immo/internal/desk"
	"github.com/matthewbaird/immo/internal/lease"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
)

// ContractReader is the contract read side behind ContractHandler.
type ContractReader interface {
	GetContract(ctx context.Context, id string) (*rental.Contract, error)
	ListContracts(ctx context.Context, f store.ContractFilter) ([]*rental.Contract, error)
}

// ContractHandler implements HTTP handlers for contracts and their month
// calendars.
type ContractHandler struct {
	contracts ContractReader
	leases    *lease.Service
	now       func() time.Time
}

// NewContractHandler creates a new ContractHandler.
func NewContractHandler(contracts ContractReader, leases *lease.Service) *ContractHandler {
	return &ContractHandler{contracts: contracts, leases: leases, now: time.Now}
}

type createContractRequest struct {
	UnitID       string      `json:"unit_id" validate:"required"`
	TenantName   string      `json:"tenant_name" validate:"required,max=200"`
	Kind         rental.Kind `json:"kind" validate:"required,oneof=long_term short_term"`
	StartDate    string      `json:"start_date" validate:"required"`
	RentEndDate  string      `json:"rent_end_date"`
	MonthlyPrice int64       `json:"monthly_price" validate:"gte=0"`
	Currency     string      `json:"currency"`
	PaidMonths   any         `json:"paid_months"`
}

// CreateContract handles POST /v1/contracts.
func (h *ContractHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req createContractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, ok := parseDate(w, "start_date", req.StartDate)
	if !ok {
		return
	}
	end, ok := parseDate(w, "rent_end_date", req.RentEndDate)
	if !ok {
		return
	}
	cr := lease.CreateRequest{
		UnitID:       req.UnitID,
		TenantName:   req.TenantName,
		Kind:         req.Kind,
		StartDate:    start,
		MonthlyPrice: req.MonthlyPrice,
		Currency:     req.Currency,
		PaidMonths:   req.PaidMonths,
	}
	if !end.IsZero() {
		cr.RentEndDate = &end
	}
	c, err := h.leases.Create(r.Context(), cr, audit)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GetContract handles GET /v1/contracts/{id}.
func (h *ContractHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.contracts.GetContract(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListContracts handles GET /v1/contracts.
func (h *ContractHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	q := r.URL.Query()
	contracts, err := h.contracts.ListContracts(r.Context(), store.ContractFilter{
		AgencyID: q.Get("agency_id"),
		UnitID:   q.Get("unit_id"),
		Status:   rental.Status(q.Get("status")),
		Kind:     rental.Kind(q.Get("kind")),
		Limit:    p.Limit,
		Offset:   p.Offset,
	})
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	if contracts == nil {
		contracts = []*rental.Contract{}
	}
	writeJSON(w, http.StatusOK, contracts)
}

type terminateRequest struct {
	EffectiveOn string `json:"effective_on"`
}

// TerminateContract handles POST /v1/contracts/{id}/terminate. The body is
// optional; the effective date defaults to today.
func (h *ContractHandler) TerminateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req terminateRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	effective, ok := parseDate(w, "effective_on", req.EffectiveOn)
	if !ok {
		return
	}
	c, err := h.leases.Terminate(r.Context(), id, effective, audit)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetCalendar handles GET /v1/contracts/{id}/calendar?page=.
func (h *ContractHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.contracts.GetContract(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	writeJSON(w, http.StatusOK, desk.NewCalendarData(c.Calendar(h.now()), page, c.MonthlyPrice, c.Currency))
}

type toggleRequest struct {
	Index int `json:"index" validate:"gte=0"`
	// Selected is the client's current selection. When absent the
	// generated pre-selection is used.
	Selected []rental.MonthKey `json:"selected"`
}

type toggleResponse struct {
	desk.CalendarData
	Selected []rental.MonthKey `json:"selected"`
}

// ToggleMonth handles POST /v1/contracts/{id}/calendar/toggle. The server
// keeps no state: the client sends its selection and gets the new one back,
// on the page holding the clicked month.
func (h *ContractHandler) ToggleMonth(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.contracts.GetContract(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	months := c.Calendar(h.now())
	if req.Selected != nil {
		months = rental.ApplySelected(months, req.Selected)
	}
	sel, err := rental.Toggle(months, req.Index, c.MonthlyPrice)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	selected := rental.SelectedUnpaid(sel.Months)
	if selected == nil {
		selected = []rental.MonthKey{}
	}
	writeJSON(w, http.StatusOK, toggleResponse{
		CalendarData: desk.NewCalendarData(sel.Months, req.Index/rental.CalendarPageSize, c.MonthlyPrice, c.Currency),
		Selected:     selected,
	})
}
