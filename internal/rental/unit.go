package rental

import "time"

// UnitStatus tracks whether a unit can take a new contract.
type UnitStatus string

const (
	UnitAvailable UnitStatus = "available"
	UnitRented    UnitStatus = "rented"
)

// Unit is a rentable apartment, room or house listed by an agency.
type Unit struct {
	ID        string     `json:"id"`
	AgencyID  string     `json:"agency_id"`
	Reference string     `json:"reference"`
	Title     string     `json:"title"`
	Status    UnitStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	CreatedBy string     `json:"created_by"`
	UpdatedBy string     `json:"updated_by"`
}
