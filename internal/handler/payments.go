package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/immo/internal/desk"
	"github.com/matthewbaird/immo/internal/locale"
	"github.com/matthewbaird/immo/internal/payment"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
)

// PaymentHandler implements HTTP handlers for the payment ledger.
type PaymentHandler struct {
	contracts ContractReader
	payments  *payment.Committer
	now       func() time.Time
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(contracts ContractReader, payments *payment.Committer) *PaymentHandler {
	return &PaymentHandler{contracts: contracts, payments: payments, now: time.Now}
}

type commitPaymentRequest struct {
	Months    []rental.MonthKey    `json:"months"`
	Method    rental.PaymentMethod `json:"method" validate:"required"`
	Amount    *int64               `json:"amount" validate:"omitempty,gt=0"`
	PaidOn    string               `json:"paid_on"`
	Reference string               `json:"reference"`
	// IdempotencyKey may also be sent as the Idempotency-Key header,
	// which wins.
	IdempotencyKey string `json:"idempotency_key"`
}

type receiptResponse struct {
	*payment.Receipt
	AmountLabel string `json:"amount_label"`
	PaidOnLabel string `json:"paid_on_label"`
}

// CommitPayment handles POST /v1/contracts/{id}/payments. It answers 201
// for a new entry and 200 when an idempotency key replays an earlier one.
func (h *PaymentHandler) CommitPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req commitPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	paidOn, ok := parseDate(w, "paid_on", req.PaidOn)
	if !ok {
		return
	}
	if paidOn.IsZero() {
		now := h.now()
		paidOn = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	key := req.IdempotencyKey
	if hk := r.Header.Get("Idempotency-Key"); hk != "" {
		key = hk
	}

	// A missing amount is quoted by the ledger from the months it writes.
	var amount int64
	if req.Amount != nil {
		amount = *req.Amount
	}

	receipt, err := h.payments.Commit(r.Context(), payment.CommitRequest{
		ContractID:     id,
		Months:         req.Months,
		Method:         req.Method,
		Amount:         amount,
		PaidOn:         paidOn,
		AsOf:           h.now(),
		Reference:      req.Reference,
		IdempotencyKey: key,
		Audit:          audit,
	})
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, receiptResponse{
		Receipt:     receipt,
		AmountLabel: locale.FormatAmount(receipt.Entry.Amount, receipt.Entry.Currency),
		PaidOnLabel: locale.FormatDate(receipt.Entry.PaidOn),
	})
}

// ListPayments handles GET /v1/contracts/{id}/payments.
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	p := parsePagination(r)
	entries, err := h.payments.History(r.Context(), id, p.Limit, p.Offset)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	if entries == nil {
		entries = []*rental.PaymentEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetMonthPayment handles GET /v1/contracts/{id}/payments/months/{month}:
// the read-only view of a paid month. Months imported as paid have no
// ledger entry and come back with a null entry.
func (h *PaymentHandler) GetMonthPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	k, err := rental.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MONTH", err.Error())
		return
	}
	c, err := h.contracts.GetContract(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	if !c.PaidMonths.Has(k) {
		writeError(w, http.StatusNotFound, "NOT_PAID", "month "+string(k)+" is not paid")
		return
	}
	detail := desk.PaymentDetail{Key: k, Label: locale.MonthLabel(k.Time())}
	entry, err := h.payments.PaymentForMonth(r.Context(), id, k)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		storeErrorToHTTP(w, err)
		return
	default:
		detail.Entry = entry
		detail.AmountLabel = locale.FormatAmount(entry.Amount, entry.Currency)
		detail.PaidOnLabel = locale.FormatDate(entry.PaidOn)
	}
	writeJSON(w, http.StatusOK, detail)
}

type stayPaymentRequest struct {
	Paid *bool `json:"paid" validate:"required"`
}

// MarkStayPaid handles POST /v1/contracts/{id}/stay-payment.
func (h *PaymentHandler) MarkStayPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var req stayPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.payments.MarkStayPaid(r.Context(), id, *req.Paid, audit)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
