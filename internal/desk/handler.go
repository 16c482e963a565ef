package desk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/locale"
	"github.com/matthewbaird/immo/internal/payment"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

// ContractReader loads the contract a desk session works on.
type ContractReader interface {
	GetContract(ctx context.Context, id string) (*rental.Contract, error)
}

// Committer is the payment service behind the desk.
type Committer interface {
	Commit(ctx context.Context, req payment.CommitRequest) (*payment.Receipt, error)
	PaymentForMonth(ctx context.Context, contractID string, k rental.MonthKey) (*rental.PaymentEntry, error)
}

// Handler serves the desk WebSocket. It also implements eventbus.Handler so
// that desks open on a contract are refreshed when another desk pays it.
type Handler struct {
	sessions  *Manager
	contracts ContractReader
	committer Committer
	now       func() time.Time
	log       *zap.Logger
}

// NewHandler creates a desk handler.
func NewHandler(sessions *Manager, contracts ContractReader, committer Committer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:  sessions,
		contracts: contracts,
		committer: committer,
		now:       time.Now,
		log:       logger.Named("desk"),
	}
}

// ServeHTTP upgrades the connection and runs the message loop. The contract
// is named by the contract_id query parameter; the actor comes from the
// X-Actor header or, for browsers, the actor query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	contractID := r.URL.Query().Get("contract_id")
	if contractID == "" {
		http.Error(w, "contract_id is required", http.StatusBadRequest)
		return
	}
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = r.URL.Query().Get("actor")
	}
	if actor == "" {
		http.Error(w, "X-Actor header is required", http.StatusBadRequest)
		return
	}
	c, err := h.contracts.GetContract(r.Context(), contractID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "contract not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("loading contract", zap.String("contract_id", contractID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sess := h.sessions.create(contractID, actor, conn)
	defer h.sessions.Remove(sess.ID)

	sess.mu.Lock()
	sess.contract = c
	sess.months = c.Calendar(h.now())
	sess.mu.Unlock()

	h.send(ctx, conn, ServerMessage{
		Type: "session",
		Data: SessionData{
			SessionID:  sess.ID,
			ContractID: c.ID,
			TenantName: c.TenantName,
			Kind:       c.Kind,
		},
	})
	h.send(ctx, conn, ServerMessage{Type: "calendar", Data: h.calendar(sess, "")})

	for {
		var msg ClientMessage
		readCtx, cancel := context.WithTimeout(ctx, h.sessions.IdleTimeout())
		err := wsjson.Read(readCtx, conn, &msg)
		cancel()
		if err != nil {
			return
		}
		if h.sessions.Get(sess.ID) == nil {
			h.sendError(ctx, conn, msg.ID, "SESSION_EXPIRED", "session expired, reconnect")
			conn.Close(websocket.StatusPolicyViolation, "session expired")
			return
		}
		sess.Touch()

		switch msg.Type {
		case "toggle":
			h.handleToggle(ctx, conn, sess, msg)
		case "page":
			h.handlePage(ctx, conn, sess, msg)
		case "commit":
			h.handleCommit(ctx, conn, sess, msg)
		case "detail":
			h.handleDetail(ctx, conn, sess, msg)
		case "ping":
			h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.sendError(ctx, conn, msg.ID, "UNKNOWN_TYPE", "unknown message type: "+msg.Type)
		}
	}
}

func (h *Handler) handleToggle(ctx context.Context, conn *websocket.Conn, sess *Session, msg ClientMessage) {
	var data ToggleData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "INVALID_DATA", "invalid toggle data: "+err.Error())
		return
	}

	sess.mu.Lock()
	sel, err := rental.Toggle(sess.months, data.Index, sess.contract.MonthlyPrice)
	if err == nil {
		sess.months = sel.Months
	}
	sess.mu.Unlock()

	switch {
	case errors.Is(err, rental.ErrMonthPaid):
		// Paid months are read-only; show what settled them instead.
		h.handleDetail(ctx, conn, sess, msg)
	case errors.Is(err, rental.ErrIndexOutOfRange):
		h.sendError(ctx, conn, msg.ID, "OUT_OF_RANGE", err.Error())
	default:
		h.send(ctx, conn, ServerMessage{Type: "calendar", RequestID: msg.ID, Data: h.calendar(sess, "")})
	}
}

func (h *Handler) handlePage(ctx context.Context, conn *websocket.Conn, sess *Session, msg ClientMessage) {
	var data PageData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "INVALID_DATA", "invalid page data: "+err.Error())
		return
	}
	sess.mu.Lock()
	_, sess.page = rental.Page(sess.months, data.Page)
	sess.mu.Unlock()
	h.send(ctx, conn, ServerMessage{Type: "calendar", RequestID: msg.ID, Data: h.calendar(sess, "")})
}

func (h *Handler) handleCommit(ctx context.Context, conn *websocket.Conn, sess *Session, msg ClientMessage) {
	var data CommitData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "INVALID_DATA", "invalid commit data: "+err.Error())
		return
	}

	sess.mu.Lock()
	keys := rental.SelectedUnpaid(sess.months)
	sess.mu.Unlock()

	if len(keys) == 0 {
		h.sendError(ctx, conn, msg.ID, "EMPTY_SELECTION", "select at least one unpaid month")
		return
	}
	var amount int64
	if data.Amount != nil {
		amount = *data.Amount
	}
	now := h.now()
	paidOn := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if data.PaidOn != "" {
		t, err := time.Parse("2006-01-02", data.PaidOn)
		if err != nil {
			h.sendError(ctx, conn, msg.ID, "INVALID_DATA", "paid_on must be YYYY-MM-DD")
			return
		}
		paidOn = t
	}

	correlationID := sess.ID
	receipt, err := h.committer.Commit(ctx, payment.CommitRequest{
		ContractID:     sess.ContractID,
		Months:         keys,
		Method:         data.Method,
		Amount:         amount,
		PaidOn:         paidOn,
		AsOf:           now,
		Reference:      data.Reference,
		IdempotencyKey: data.IdempotencyKey,
		Audit:          types.AuditInfo{Actor: sess.Actor, Source: "desk", CorrelationID: &correlationID},
	})
	if err != nil {
		code, message := commitErrorCode(err)
		if code == "INTERNAL" {
			h.log.Error("commit failed", zap.String("contract_id", sess.ContractID), zap.Error(err))
		}
		h.sendError(ctx, conn, msg.ID, code, message)
		return
	}

	// The committed months are now paid. A fresh window would preselect the
	// unpaid months up to the new end date, so the selection is cleared.
	sess.mu.Lock()
	sess.contract = receipt.Contract
	sess.months = rental.ApplySelected(receipt.Contract.Calendar(now), nil)
	sess.mu.Unlock()

	h.send(ctx, conn, ServerMessage{
		Type:      "receipt",
		RequestID: msg.ID,
		Data: ReceiptData{
			Receipt:     receipt,
			AmountLabel: locale.FormatAmount(receipt.Entry.Amount, receipt.Entry.Currency),
			PaidOnLabel: locale.FormatDate(receipt.Entry.PaidOn),
		},
	})
	h.send(ctx, conn, ServerMessage{Type: "calendar", RequestID: msg.ID, Data: h.calendar(sess, "")})
}

func (h *Handler) handleDetail(ctx context.Context, conn *websocket.Conn, sess *Session, msg ClientMessage) {
	var data DetailData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "INVALID_DATA", "invalid detail data: "+err.Error())
		return
	}

	sess.mu.Lock()
	var (
		m  rental.MonthSelection
		ok bool
	)
	if data.Index >= 0 && data.Index < len(sess.months) {
		m, ok = sess.months[data.Index], true
	}
	sess.mu.Unlock()

	if !ok {
		h.sendError(ctx, conn, msg.ID, "OUT_OF_RANGE", rental.ErrIndexOutOfRange.Error())
		return
	}
	if !m.Paid {
		h.sendError(ctx, conn, msg.ID, "NOT_PAID", "month "+string(m.Key)+" is not paid")
		return
	}

	entry, err := h.committer.PaymentForMonth(ctx, sess.ContractID, m.Key)
	if errors.Is(err, store.ErrNotFound) {
		// Months imported as paid have no ledger entry.
		h.send(ctx, conn, ServerMessage{Type: "detail", RequestID: msg.ID, Data: PaymentDetail{
			Key:   m.Key,
			Label: locale.MonthLabel(m.Date),
		}})
		return
	}
	if err != nil {
		h.log.Error("payment lookup failed", zap.String("contract_id", sess.ContractID), zap.Error(err))
		h.sendError(ctx, conn, msg.ID, "INTERNAL", "payment lookup failed")
		return
	}
	h.send(ctx, conn, ServerMessage{Type: "detail", RequestID: msg.ID, Data: PaymentDetail{
		Key:         m.Key,
		Label:       locale.MonthLabel(m.Date),
		Entry:       entry,
		AmountLabel: locale.FormatAmount(entry.Amount, entry.Currency),
		PaidOnLabel: locale.FormatDate(entry.PaidOn),
	}})
}

// HandleEvent pushes a fresh calendar to every desk open on a contract that
// another desk or the API changed. Pending selections are kept where the
// months are still unpaid.
func (h *Handler) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	switch evt.EventType {
	case event.TypePaymentRecorded, event.TypeStayPaymentMarked, event.TypeContractTerminated:
	default:
		return nil
	}
	var contractID string
	for _, ref := range evt.AffectedEntities {
		if ref.EntityType == "contract" {
			contractID = ref.EntityID
		}
	}
	sessions := h.sessions.ForContract(contractID)
	if len(sessions) == 0 {
		return nil
	}
	c, err := h.contracts.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	now := h.now()
	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.contract != nil && sess.contract.Version >= c.Version {
			sess.mu.Unlock()
			continue
		}
		pending := rental.SelectedUnpaid(sess.months)
		sess.contract = c
		sess.months = rental.ApplySelected(c.Calendar(now), pending)
		sess.mu.Unlock()
		h.send(ctx, sess.conn, ServerMessage{Type: "calendar", Data: h.calendar(sess, "updated")})
	}
	return nil
}

func (h *Handler) calendar(sess *Session, reason string) CalendarData {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	data := NewCalendarData(sess.months, sess.page, sess.contract.MonthlyPrice, sess.contract.Currency)
	sess.page = data.Page
	data.Reason = reason
	return data
}

// NewCalendarData renders one page of a window with French labels and the
// running total of the selected unpaid months.
func NewCalendarData(months []rental.MonthSelection, page int, monthlyPrice int64, currency string) CalendarData {
	shown, current := rental.Page(months, page)
	views := make([]MonthView, len(shown))
	for i, m := range shown {
		views[i] = MonthView{
			Index:    current*rental.CalendarPageSize + i,
			Key:      m.Key,
			Label:    locale.MonthLabel(m.Date),
			Selected: m.Selected && !m.Paid,
			Paid:     m.Paid,
		}
	}
	sum := rental.Summarize(months, monthlyPrice)
	return CalendarData{
		Page:        current,
		Pages:       rental.PageCount(len(months)),
		Months:      views,
		Count:       sum.Count,
		Amount:      sum.Amount,
		AmountLabel: locale.FormatAmount(sum.Amount, currency),
	}
}

func commitErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, rental.ErrEmptySelection):
		return "EMPTY_SELECTION", "select at least one unpaid month"
	case errors.Is(err, rental.ErrSelectionGap), errors.Is(err, rental.ErrOutsideWindow):
		return "INVALID_SELECTION", err.Error()
	case errors.Is(err, payment.ErrInvalidInput):
		return "INVALID_DATA", err.Error()
	case errors.Is(err, rental.ErrNotLongTerm), errors.Is(err, rental.ErrNotActive):
		return "NOT_PAYABLE", err.Error()
	case errors.Is(err, store.ErrConflict):
		return "CONFLICT", "contract changed, try again"
	case errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND", err.Error()
	default:
		return "INTERNAL", "payment could not be recorded"
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.log.Debug("desk write failed", zap.Error(err))
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      ErrorData{Code: code, Message: message},
	})
}
