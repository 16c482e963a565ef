// Package types provides the value types shared by the ledger, the event
// stream and the HTTP layer. They are stored as JSON or flat columns and
// never carry behaviour beyond small helpers.
package types

import (
	"encoding/json"
	"time"
)

// Money represents an amount in the currency's minor unit. West African CFA
// francs have no minor unit, so for XOF one unit is one franc.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217, e.g. "XOF"
}

// DateRange represents a time period with an optional end.
type DateRange struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// AuditInfo is the who/where of a mutation, taken from request headers.
type AuditInfo struct {
	Actor         string  `json:"actor"`
	Source        string  `json:"source"` // "user", "agent", "import", "system"
	CorrelationID *string `json:"correlation_id,omitempty"`
}

// SystemAudit is used by background jobs.
func SystemAudit() AuditInfo {
	return AuditInfo{Actor: "system", Source: "system"}
}

// ─── Activity stream ─────────────────────────────────────────────────────────

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "target", "related", "context"
}

// ActivityEntry is a secondary index entry over the domain event log,
// keyed by a referenced entity. One event produces multiple entries.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"` // "payment", "contract", "unit"
	Weight            string          `json:"weight"`   // "critical", "major", "minor", "info"
	Polarity          string          `json:"polarity"` // "positive", "negative", "neutral"
	Payload           json.RawMessage `json:"payload"`
}

// WeightOrder ranks activity weights, most severe first.
var WeightOrder = map[string]int{
	"critical": 0,
	"major":    1,
	"minor":    2,
	"info":     3,
}

// IsAtLeastWeight reports whether weight is as severe as min or more.
// Unknown weights rank below "info".
func IsAtLeastWeight(weight, min string) bool {
	w, ok := WeightOrder[weight]
	if !ok {
		w = len(WeightOrder)
	}
	m, ok := WeightOrder[min]
	if !ok {
		return true
	}
	return w <= m
}
