package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/immo/internal/types"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search performs a case-insensitive search across activity summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

const (
	table = "activity_entries"
	// Fixed width so that text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var columns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "source_refs", "summary", "category", "weight", "polarity", "payload",
}

// SQLStore implements Store on the ledger database. The table lives next to
// the ledger tables and is written by the same connection pool.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore creates a new SQLStore. dialectName is an ent dialect name.
func NewSQLStore(db *sql.DB, dialectName string) *SQLStore {
	return &SQLStore{db: db, dialect: dialectName}
}

// CreateTable creates the activity_entries table and its indexes.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_entries (
			event_id            TEXT NOT NULL,
			event_type          TEXT NOT NULL,
			occurred_at         TEXT NOT NULL,
			indexed_entity_type TEXT NOT NULL,
			indexed_entity_id   TEXT NOT NULL,
			entity_role         TEXT NOT NULL,
			source_refs         TEXT NOT NULL DEFAULT '[]',
			summary             TEXT NOT NULL,
			category            TEXT NOT NULL,
			weight              TEXT NOT NULL,
			polarity            TEXT NOT NULL,
			payload             TEXT,
			PRIMARY KEY (event_id, indexed_entity_type, indexed_entity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entity_time
			ON activity_entries (indexed_entity_type, indexed_entity_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entity_category_time
			ON activity_entries (indexed_entity_type, indexed_entity_id, category, occurred_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating activity table: %w", err)
		}
	}
	return nil
}

// WriteEntries inserts activity entries. Entries already written for the
// same event and entity are skipped.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := entsql.Dialect(s.dialect).Insert(table).Columns(columns...)
	for _, e := range entries {
		refsJSON, _ := json.Marshal(e.SourceRefs)
		var payload sql.NullString
		if len(e.Payload) > 0 {
			payload = sql.NullString{String: string(e.Payload), Valid: true}
		}
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UTC().Format(timeLayout), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refsJSON), e.Summary, e.Category, e.Weight, e.Polarity, payload,
		)
	}
	ins.OnConflict(entsql.DoNothing())

	query, args := ins.Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := queryLimit(opts.Limit)

	// Predicates are consumed when a query is built, so each query gets
	// a fresh set.
	where := func(withCursor bool) *entsql.Predicate {
		preds := []*entsql.Predicate{
			entsql.EQ("indexed_entity_type", entityType),
			entsql.EQ("indexed_entity_id", entityID),
		}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC().Format(timeLayout)))
		}
		if opts.Until != nil {
			preds = append(preds, entsql.LTE("occurred_at", opts.Until.UTC().Format(timeLayout)))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, entsql.In("category", anySlice(opts.Categories)...))
		}
		if len(opts.EventTypes) > 0 {
			preds = append(preds, entsql.In("event_type", anySlice(opts.EventTypes)...))
		}
		if weights := weightsAtLeast(opts.MinWeight); len(weights) > 0 {
			preds = append(preds, entsql.In("weight", anySlice(weights)...))
		}
		if withCursor && opts.Cursor != "" {
			if cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
				preds = append(preds, entsql.LT("occurred_at", cursorTime.UTC().Format(timeLayout)))
			}
		}
		return entsql.And(preds...)
	}

	query, args := entsql.Dialect(s.dialect).Select(columns...).
		From(entsql.Table(table)).
		Where(where(true)).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("event_id")).
		Limit(limit + 1). // fetch one extra for cursor
		Query()
	entries, err := s.queryEntries(ctx, query, args)
	if err != nil {
		return nil, "", 0, fmt.Errorf("querying activity entries: %w", err)
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}

	totalCount, err := s.count(ctx, where(false))
	if err != nil {
		return nil, "", 0, err
	}
	return entries, nextCursor, totalCount, nil
}

// Search performs a case-insensitive search across activity summaries.
func (s *SQLStore) Search(ctx context.Context, q string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	where := func() *entsql.Predicate {
		preds := []*entsql.Predicate{entsql.ContainsFold("summary", q)}
		if opts.EntityType != "" {
			preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
		}
		if opts.Since != nil {
			preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC().Format(timeLayout)))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, entsql.In("category", anySlice(opts.Categories)...))
		}
		return entsql.And(preds...)
	}

	query, args := entsql.Dialect(s.dialect).Select(columns...).
		From(entsql.Table(table)).
		Where(where()).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("event_id")).
		Limit(searchLimit(opts.Limit)).
		Query()
	entries, err := s.queryEntries(ctx, query, args)
	if err != nil {
		return nil, 0, fmt.Errorf("searching activity entries: %w", err)
	}
	totalCount, err := s.count(ctx, where())
	if err != nil {
		return nil, 0, err
	}
	return entries, totalCount, nil
}

func (s *SQLStore) count(ctx context.Context, where *entsql.Predicate) (int, error) {
	query, args := entsql.Dialect(s.dialect).Select(entsql.Count("*")).
		From(entsql.Table(table)).
		Where(where).
		Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return n, nil
}

func (s *SQLStore) queryEntries(ctx context.Context, query string, args []any) ([]types.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var (
			e          types.ActivityEntry
			occurredAt string
			refsJSON   string
			payload    sql.NullString
		)
		err := rows.Scan(
			&e.EventID, &e.EventType, &occurredAt, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refsJSON, &e.Summary, &e.Category, &e.Weight, &e.Polarity, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if e.OccurredAt, err = time.Parse(timeLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if refsJSON != "" {
			_ = json.Unmarshal([]byte(refsJSON), &e.SourceRefs)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
