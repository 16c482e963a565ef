package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/types"
)

var unitColumns = []string{
	"id", "agency_id", "reference", "title", "status",
	"created_at", "updated_at", "created_by", "updated_by",
}

// UnitFilter narrows ListUnits.
type UnitFilter struct {
	AgencyID string
	Status   rental.UnitStatus
	Limit    int
	Offset   int
}

// CreateUnit inserts an available unit.
func (s *SQLStore) CreateUnit(ctx context.Context, u rental.Unit, audit types.AuditInfo) (*rental.Unit, error) {
	now := time.Now().UTC()
	u.ID = uuid.New().String()
	u.Status = rental.UnitAvailable
	u.CreatedAt, u.UpdatedAt = now, now
	u.CreatedBy, u.UpdatedBy = audit.Actor, audit.Actor

	query, args := s.builder().Insert(tableUnits).
		Columns(unitColumns...).
		Values(u.ID, u.AgencyID, u.Reference, u.Title, string(u.Status),
			formatTime(now), formatTime(now), u.CreatedBy, u.UpdatedBy).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting unit: %w", err)
	}
	return &u, nil
}

// GetUnit loads a unit by ID.
func (s *SQLStore) GetUnit(ctx context.Context, id string) (*rental.Unit, error) {
	return s.getUnit(ctx, s.db, id)
}

func (s *SQLStore) getUnit(ctx context.Context, q querier, id string) (*rental.Unit, error) {
	query, args := s.builder().Select(unitColumns...).
		From(entsql.Table(tableUnits)).
		Where(entsql.EQ("id", id)).
		Query()
	u, err := scanUnit(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading unit: %w", err)
	}
	return u, nil
}

// ListUnits returns units ordered by reference.
func (s *SQLStore) ListUnits(ctx context.Context, f UnitFilter) ([]*rental.Unit, error) {
	sel := s.builder().Select(unitColumns...).From(entsql.Table(tableUnits))
	var preds []*entsql.Predicate
	if f.AgencyID != "" {
		preds = append(preds, entsql.EQ("agency_id", f.AgencyID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy("reference", "id").Limit(limitOrDefault(f.Limit)).Offset(f.Offset)

	query, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	defer rows.Close()

	var out []*rental.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) setUnitStatus(ctx context.Context, q querier, id string, status rental.UnitStatus, actor string) error {
	query, args := s.builder().Update(tableUnits).
		Set("status", string(status)).
		Set("updated_at", formatTime(time.Now())).
		Set("updated_by", actor).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating unit status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanUnit(row scanner) (*rental.Unit, error) {
	var (
		u                    rental.Unit
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.ID, &u.AgencyID, &u.Reference, &u.Title, &status,
		&createdAt, &updatedAt, &u.CreatedBy, &u.UpdatedBy); err != nil {
		return nil, err
	}
	u.Status = rental.UnitStatus(status)
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}
