package rental

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes contracts billed per month from single stays.
type Kind string

const (
	KindLongTerm  Kind = "long_term"
	KindShortTerm Kind = "short_term"
)

// Valid reports whether k is a known contract kind.
func (k Kind) Valid() bool {
	return k == KindLongTerm || k == KindShortTerm
}

// Status is the lifecycle state of a contract.
type Status string

const (
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
)

// ValidContractTransitions lists the allowed status changes. Termination is
// final.
var ValidContractTransitions = map[string][]string{
	string(StatusActive):     {string(StatusTerminated)},
	string(StatusTerminated): {},
}

var (
	// ErrEmptySelection rejects a commit with no selected unpaid month.
	ErrEmptySelection = errors.New("no unpaid month selected")
	// ErrNotShortTerm rejects the binary paid flag on a monthly contract.
	ErrNotShortTerm = errors.New("contract is not short-term")
	// ErrNotLongTerm rejects a monthly payment on a single-stay contract.
	ErrNotLongTerm = errors.New("contract is not long-term")
	// ErrNotActive rejects payments on a terminated contract.
	ErrNotActive = errors.New("contract is not active")
	// ErrInvalidTransition rejects a status change the transition map forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidateTransition checks whether moving from current to target is
// allowed by transitions.
func ValidateTransition(transitions map[string][]string, current, target string) error {
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("unknown current state %q: %w", current, ErrInvalidTransition)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("transition from %q to %q: %w", current, target, ErrInvalidTransition)
}

// Contract is a tenant's occupancy of a unit.
type Contract struct {
	ID              string     `json:"id"`
	AgencyID        string     `json:"agency_id"`
	UnitID          string     `json:"unit_id"`
	TenantName      string     `json:"tenant_name"`
	Kind            Kind       `json:"kind"`
	Status          Status     `json:"status"`
	StartDate       time.Time  `json:"start_date"`
	RentEndDate     *time.Time `json:"rent_end_date,omitempty"`
	MonthlyPrice    int64      `json:"monthly_price"`
	Currency        string     `json:"currency"`
	IsPaid          bool       `json:"is_paid"`
	PaidMonths      PaidMonths `json:"paid_months"`
	PaidMonthsCount int        `json:"paid_months_count"`
	TerminatedOn    *time.Time `json:"terminated_on,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CreatedBy       string     `json:"created_by"`
	UpdatedBy       string     `json:"updated_by"`
}

// EndDate returns the rental end date or the zero time.
func (c *Contract) EndDate() time.Time {
	if c.RentEndDate == nil {
		return time.Time{}
	}
	return *c.RentEndDate
}

// Calendar generates the contract's month window as of now.
func (c *Contract) Calendar(now time.Time) []MonthSelection {
	return GenerateCalendar(c.StartDate, c.EndDate(), c.PaidMonths, now)
}

// CanPayMonths checks that monthly payments may be recorded.
func (c *Contract) CanPayMonths() error {
	if c.Status != StatusActive {
		return ErrNotActive
	}
	if c.Kind != KindLongTerm {
		return ErrNotLongTerm
	}
	return nil
}

// ApplyMonths folds newly paid months into the contract: the paid set and
// counter grow and the rental end date moves to the end of the latest paid
// month. It returns an error, leaving c untouched, when keys is empty.
func (c *Contract) ApplyMonths(keys []MonthKey) error {
	if len(keys) == 0 {
		return ErrEmptySelection
	}
	for _, k := range keys {
		if !k.Valid() {
			return fmt.Errorf("apply months: invalid key %q", k)
		}
	}
	merged := c.PaidMonths.Merge(keys...)
	c.PaidMonths = merged
	c.PaidMonthsCount = len(merged)
	c.IsPaid = true
	if latest, ok := merged.Latest(); ok {
		end := latest.End()
		c.RentEndDate = &end
	}
	return nil
}

// PaymentMethod is how a tenant settled a payment.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheck        PaymentMethod = "check"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCard         PaymentMethod = "card"
)

// PaymentEntry is one immutable ledger record.
type PaymentEntry struct {
	ID             string        `json:"id"`
	ContractID     string        `json:"contract_id"`
	Method         PaymentMethod `json:"method"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	PaidOn         time.Time     `json:"paid_on"`
	MonthsCount    int           `json:"months_count"`
	Months         []MonthKey    `json:"months"`
	Reference      string        `json:"reference,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CreatedBy      string        `json:"created_by"`
}

// Covers reports whether the entry settled month k.
func (e *PaymentEntry) Covers(k MonthKey) bool {
	for _, m := range e.Months {
		if m == k {
			return true
		}
	}
	return false
}
