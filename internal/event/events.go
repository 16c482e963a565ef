package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/types"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	AffectedEntities []types.SourceRef
	Summary          string
	Category         string // "contract", "payment"
	Weight           string // "critical", "major", "minor", "info"
	Polarity         string // "positive", "negative", "neutral"
	Payload          json.RawMessage
}

const (
	TypeContractCreated    = "contract_created"
	TypePaymentRecorded    = "payment_recorded"
	TypeStayPaymentMarked  = "stay_payment_marked"
	TypeContractTerminated = "contract_terminated"
	TypeRentOverdue        = "rent_overdue"
)

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ── Contract events ──────────────────────────────────────────────────────────

// ContractCreatedPayload carries event-specific data for ContractCreated.
type ContractCreatedPayload struct {
	ContractID   string      `json:"contract_id"`
	UnitID       string      `json:"unit_id"`
	AgencyID     string      `json:"agency_id"`
	TenantName   string      `json:"tenant_name"`
	Kind         rental.Kind `json:"kind"`
	StartDate    time.Time   `json:"start_date"`
	MonthlyPrice types.Money `json:"monthly_price"`
}

func NewContractCreated(p ContractCreatedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeContractCreated,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "contract", EntityID: p.ContractID, Role: "subject"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "target"},
			{EntityType: "agency", EntityID: p.AgencyID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Contract %s opened for %s", short(p.ContractID), p.TenantName),
		Category: "contract",
		Weight:   "major",
		Polarity: "positive",
		Payload:  mustJSON(p),
	}
}

// ContractTerminatedPayload carries event-specific data for ContractTerminated.
type ContractTerminatedPayload struct {
	ContractID  string    `json:"contract_id"`
	UnitID      string    `json:"unit_id"`
	AgencyID    string    `json:"agency_id"`
	EffectiveOn time.Time `json:"effective_on"`
	PaidThrough string    `json:"paid_through,omitempty"`
	MonthsPaid  int       `json:"months_paid"`
}

func NewContractTerminated(p ContractTerminatedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeContractTerminated,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "contract", EntityID: p.ContractID, Role: "subject"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "target"},
			{EntityType: "agency", EntityID: p.AgencyID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Contract %s terminated on %s", short(p.ContractID), p.EffectiveOn.Format("2006-01-02")),
		Category: "contract",
		Weight:   "major",
		Polarity: "neutral",
		Payload:  mustJSON(p),
	}
}

// ── Payment events ───────────────────────────────────────────────────────────

// PaymentRecordedPayload carries event-specific data for PaymentRecorded.
type PaymentRecordedPayload struct {
	ContractID  string               `json:"contract_id"`
	UnitID      string               `json:"unit_id"`
	AgencyID    string               `json:"agency_id"`
	EntryID     string               `json:"entry_id"`
	Amount      types.Money          `json:"amount"`
	Method      rental.PaymentMethod `json:"method"`
	PaidOn      time.Time            `json:"paid_on"`
	Months      []rental.MonthKey    `json:"months"`
	RentEndDate *time.Time           `json:"rent_end_date,omitempty"`
	Reference   string               `json:"reference,omitempty"`
}

func NewPaymentRecorded(p PaymentRecordedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypePaymentRecorded,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "contract", EntityID: p.ContractID, Role: "subject"},
			{EntityType: "payment", EntityID: p.EntryID, Role: "target"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "context"},
			{EntityType: "agency", EntityID: p.AgencyID, Role: "context"},
		},
		Summary: fmt.Sprintf("Payment of %d %s for %d month(s) on contract %s",
			p.Amount.Amount, p.Amount.Currency, len(p.Months), short(p.ContractID)),
		Category: "payment",
		Weight:   "minor",
		Polarity: "positive",
		Payload:  mustJSON(p),
	}
}

// StayPaymentMarkedPayload carries event-specific data for StayPaymentMarked.
type StayPaymentMarkedPayload struct {
	ContractID string `json:"contract_id"`
	UnitID     string `json:"unit_id"`
	AgencyID   string `json:"agency_id"`
	Paid       bool   `json:"paid"`
}

func NewStayPaymentMarked(p StayPaymentMarkedPayload) DomainEvent {
	state, polarity := "paid", "positive"
	if !p.Paid {
		state, polarity = "unpaid", "negative"
	}
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeStayPaymentMarked,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "contract", EntityID: p.ContractID, Role: "subject"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "context"},
			{EntityType: "agency", EntityID: p.AgencyID, Role: "context"},
		},
		Summary:  fmt.Sprintf("Stay on contract %s marked %s", short(p.ContractID), state),
		Category: "payment",
		Weight:   "minor",
		Polarity: polarity,
		Payload:  mustJSON(p),
	}
}

// RentOverduePayload carries event-specific data for RentOverdue.
type RentOverduePayload struct {
	ContractID  string          `json:"contract_id"`
	UnitID      string          `json:"unit_id"`
	AgencyID    string          `json:"agency_id"`
	TenantName  string          `json:"tenant_name"`
	PaidThrough time.Time       `json:"paid_through"`
	Month       rental.MonthKey `json:"month"`
	DaysLate    int             `json:"days_late"`
	AmountDue   types.Money     `json:"amount_due"`
}

func NewRentOverdue(p RentOverduePayload) DomainEvent {
	weight := "major"
	if p.DaysLate > 60 {
		weight = "critical"
	}
	return DomainEvent{
		// One overdue event per contract and month; re-running a sweep
		// produces the same ID.
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(TypeRentOverdue+"/"+p.ContractID+"/"+string(p.Month))).String(),
		EventType:  TypeRentOverdue,
		OccurredAt: time.Now(),
		AffectedEntities: []types.SourceRef{
			{EntityType: "contract", EntityID: p.ContractID, Role: "subject"},
			{EntityType: "unit", EntityID: p.UnitID, Role: "context"},
			{EntityType: "agency", EntityID: p.AgencyID, Role: "context"},
		},
		Summary: fmt.Sprintf("Rent on contract %s overdue by %d days (%s)",
			short(p.ContractID), p.DaysLate, p.Month),
		Category: "payment",
		Weight:   weight,
		Polarity: "negative",
		Payload:  mustJSON(p),
	}
}
