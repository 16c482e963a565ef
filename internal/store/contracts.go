package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/types"
)

var contractColumns = []string{
	"id", "agency_id", "unit_id", "tenant_name", "kind", "status",
	"start_date", "rent_end_date", "monthly_price", "currency",
	"is_paid", "paid_months", "paid_months_count", "terminated_on", "version",
	"created_at", "updated_at", "created_by", "updated_by",
}

// ContractFilter narrows ListContracts.
type ContractFilter struct {
	AgencyID string
	UnitID   string
	Status   rental.Status
	Kind     rental.Kind
	// EndsBefore keeps contracts whose rent end date is strictly earlier.
	EndsBefore *time.Time
	Limit      int
	Offset     int
}

// CreateContract opens an active contract on an available unit and marks
// the unit rented, in one transaction.
func (s *SQLStore) CreateContract(ctx context.Context, c rental.Contract, audit types.AuditInfo) (*rental.Contract, error) {
	now := time.Now().UTC()
	c.ID = uuid.New().String()
	c.Status = rental.StatusActive
	c.Version = 1
	c.CreatedAt, c.UpdatedAt = now, now
	c.CreatedBy, c.UpdatedBy = audit.Actor, audit.Actor
	if c.PaidMonths == nil {
		c.PaidMonths = rental.PaidMonths{}
	}
	c.PaidMonthsCount = len(c.PaidMonths)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		unit, err := s.getUnit(ctx, tx, c.UnitID)
		if err != nil {
			return err
		}
		if unit.Status != rental.UnitAvailable {
			return fmt.Errorf("unit %s: %w", unit.ID, ErrUnitUnavailable)
		}
		if c.AgencyID == "" {
			c.AgencyID = unit.AgencyID
		}

		paid, err := json.Marshal(c.PaidMonths)
		if err != nil {
			return err
		}
		query, args := s.builder().Insert(tableContracts).
			Columns(append(contractColumns, "source", "correlation_id")...).
			Values(c.ID, c.AgencyID, c.UnitID, c.TenantName, string(c.Kind), string(c.Status),
				formatDate(c.StartDate), nullDate(c.RentEndDate), c.MonthlyPrice, c.Currency,
				c.IsPaid, string(paid), c.PaidMonthsCount, nullDate(c.TerminatedOn), c.Version,
				formatTime(now), formatTime(now), c.CreatedBy, c.UpdatedBy,
				audit.Source, nullString(audit.CorrelationID)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting contract: %w", err)
		}
		return s.setUnitStatus(ctx, tx, c.UnitID, rental.UnitRented, audit.Actor)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContract loads a contract by ID.
func (s *SQLStore) GetContract(ctx context.Context, id string) (*rental.Contract, error) {
	return s.getContract(ctx, s.db, id)
}

func (s *SQLStore) getContract(ctx context.Context, q querier, id string) (*rental.Contract, error) {
	query, args := s.builder().Select(contractColumns...).
		From(entsql.Table(tableContracts)).
		Where(entsql.EQ("id", id)).
		Query()
	c, err := s.scanContract(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading contract: %w", err)
	}
	return c, nil
}

// ListContracts returns contracts, most recently started first.
func (s *SQLStore) ListContracts(ctx context.Context, f ContractFilter) ([]*rental.Contract, error) {
	sel := s.builder().Select(contractColumns...).From(entsql.Table(tableContracts))
	var preds []*entsql.Predicate
	if f.AgencyID != "" {
		preds = append(preds, entsql.EQ("agency_id", f.AgencyID))
	}
	if f.UnitID != "" {
		preds = append(preds, entsql.EQ("unit_id", f.UnitID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.Kind != "" {
		preds = append(preds, entsql.EQ("kind", string(f.Kind)))
	}
	if f.EndsBefore != nil {
		preds = append(preds, entsql.NotNull("rent_end_date"), entsql.LT("rent_end_date", formatDate(*f.EndsBefore)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("start_date"), "id").Limit(limitOrDefault(f.Limit)).Offset(f.Offset)

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing contracts: %w", err)
	}
	defer rows.Close()

	var out []*rental.Contract
	for rows.Next() {
		c, err := s.scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contract: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetStayPaid sets or clears the paid flag of a short-term contract. No
// ledger entry is written.
func (s *SQLStore) SetStayPaid(ctx context.Context, id string, paid bool, audit types.AuditInfo) (*rental.Contract, error) {
	var out *rental.Contract
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getContract(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.Kind != rental.KindShortTerm {
			return rental.ErrNotShortTerm
		}
		if c.Status != rental.StatusActive {
			return rental.ErrNotActive
		}
		c.IsPaid = paid
		if err := s.updateContract(ctx, tx, c, audit); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Terminate moves an active contract to terminated and frees its unit.
func (s *SQLStore) Terminate(ctx context.Context, id string, effective time.Time, audit types.AuditInfo) (*rental.Contract, error) {
	var out *rental.Contract
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getContract(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := rental.ValidateTransition(rental.ValidContractTransitions, string(c.Status), string(rental.StatusTerminated)); err != nil {
			return err
		}
		c.Status = rental.StatusTerminated
		c.TerminatedOn = &effective
		if err := s.updateContract(ctx, tx, c, audit); err != nil {
			return err
		}
		if err := s.setUnitStatus(ctx, tx, c.UnitID, rental.UnitAvailable, audit.Actor); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// updateContract writes the mutable columns of c, guarded by its version.
// On success c.Version is bumped.
func (s *SQLStore) updateContract(ctx context.Context, q querier, c *rental.Contract, audit types.AuditInfo) error {
	paid, err := json.Marshal(c.PaidMonths)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query, args := s.builder().Update(tableContracts).
		Set("status", string(c.Status)).
		Set("rent_end_date", nullDate(c.RentEndDate)).
		Set("is_paid", c.IsPaid).
		Set("paid_months", string(paid)).
		Set("paid_months_count", c.PaidMonthsCount).
		Set("terminated_on", nullDate(c.TerminatedOn)).
		Set("version", c.Version+1).
		Set("updated_at", formatTime(now)).
		Set("updated_by", audit.Actor).
		Set("source", audit.Source).
		Set("correlation_id", nullString(audit.CorrelationID)).
		Where(entsql.And(entsql.EQ("id", c.ID), entsql.EQ("version", c.Version))).
		Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating contract: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("contract %s at version %d: %w", c.ID, c.Version, ErrConflict)
	}
	c.Version++
	c.UpdatedAt = now
	c.UpdatedBy = audit.Actor
	return nil
}

func (s *SQLStore) scanContract(row scanner) (*rental.Contract, error) {
	var (
		c                    rental.Contract
		kind, status         string
		startDate            string
		rentEnd, terminated  sql.NullString
		paidRaw              string
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.AgencyID, &c.UnitID, &c.TenantName, &kind, &status,
		&startDate, &rentEnd, &c.MonthlyPrice, &c.Currency,
		&c.IsPaid, &paidRaw, &c.PaidMonthsCount, &terminated, &c.Version,
		&createdAt, &updatedAt, &c.CreatedBy, &c.UpdatedBy)
	if err != nil {
		return nil, err
	}
	c.Kind = rental.Kind(kind)
	c.Status = rental.Status(status)
	if c.StartDate, err = parseDate(startDate); err != nil {
		return nil, err
	}
	if c.RentEndDate, err = optionalDate(rentEnd); err != nil {
		return nil, err
	}
	if c.TerminatedOn, err = optionalDate(terminated); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	paid, shape := rental.DecodePaidMonths(paidRaw)
	if shape == rental.ShapeMalformed {
		s.log.Warn("unreadable paid months, treating as none paid",
			zap.String("contract_id", c.ID),
			zap.String("raw", paidRaw))
	}
	c.PaidMonths = paid
	return &c, nil
}
