// Package desk serves the live payment desk: an agent opens a contract over
// a WebSocket, toggles months, and commits the payment.
package desk

import (
	"encoding/json"

	"github.com/matthewbaird/immo/internal/payment"
	"github.com/matthewbaird/immo/internal/rental"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "toggle", "page", "commit", "detail", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// ToggleData is the payload for "toggle" messages. Index is the month's
// position in the whole window, as sent in MonthView.
type ToggleData struct {
	Index int `json:"index"`
}

// PageData is the payload for "page" messages.
type PageData struct {
	Page int `json:"page"`
}

// CommitData is the payload for "commit" messages. Amount defaults to the
// quoted amount and PaidOn (YYYY-MM-DD) to today.
type CommitData struct {
	Method         rental.PaymentMethod `json:"method"`
	Amount         *int64               `json:"amount,omitempty"`
	PaidOn         string               `json:"paid_on,omitempty"`
	Reference      string               `json:"reference,omitempty"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
}

// DetailData is the payload for "detail" messages.
type DetailData struct {
	Index int `json:"index"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "calendar", "receipt", "detail", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID  string      `json:"session_id"`
	ContractID string      `json:"contract_id"`
	TenantName string      `json:"tenant_name"`
	Kind       rental.Kind `json:"kind"`
}

// MonthView is one month as drawn on the desk.
type MonthView struct {
	Index    int             `json:"index"`
	Key      rental.MonthKey `json:"key"`
	Label    string          `json:"label"`
	Selected bool            `json:"selected"`
	Paid     bool            `json:"paid"`
}

// CalendarData is one page of the window plus the running selection.
type CalendarData struct {
	Page        int         `json:"page"`
	Pages       int         `json:"pages"`
	Months      []MonthView `json:"months"`
	Count       int         `json:"count"`
	Amount      int64       `json:"amount"`
	AmountLabel string      `json:"amount_label"`
	// Reason is "updated" when another desk changed the contract.
	Reason string `json:"reason,omitempty"`
}

// ReceiptData reports a committed payment.
type ReceiptData struct {
	Receipt     *payment.Receipt `json:"receipt"`
	AmountLabel string           `json:"amount_label"`
	PaidOnLabel string           `json:"paid_on_label"`
}

// PaymentDetail describes the ledger entry that settled a month.
type PaymentDetail struct {
	Key         rental.MonthKey      `json:"key"`
	Label       string               `json:"label"`
	Entry       *rental.PaymentEntry `json:"entry"`
	AmountLabel string               `json:"amount_label"`
	PaidOnLabel string               `json:"paid_on_label"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
