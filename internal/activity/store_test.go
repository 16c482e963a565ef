package activity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/immo/internal/types"
)

func testEntry(entityType, entityID, category, weight, polarity, summary string, daysAgo int) types.ActivityEntry {
	return types.ActivityEntry{
		EventID:           "test-" + summary,
		EventType:         "payment_recorded",
		OccurredAt:        time.Now().AddDate(0, 0, -daysAgo),
		IndexedEntityType: entityType,
		IndexedEntityID:   entityID,
		EntityRole:        "subject",
		SourceRefs:        []types.SourceRef{{EntityType: entityType, EntityID: entityID, Role: "subject"}},
		Summary:           summary,
		Category:          category,
		Weight:            weight,
		Polarity:          polarity,
	}
}

func newSQLStore(t *testing.T) Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db, dialect.SQLite)
	if err := s.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return s
}

// stores runs fn against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sql", func(t *testing.T) { fn(t, newSQLStore(t)) })
}

func TestStore_WriteAndQuery(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		entries := []types.ActivityEntry{
			testEntry("contract", "c1", "payment", "minor", "positive", "Payment of 150000 XOF", 10),
			testEntry("contract", "c1", "contract", "major", "positive", "Contract opened", 5),
			testEntry("contract", "c2", "payment", "minor", "positive", "Payment of 40000 XOF", 10),
		}
		if err := store.WriteEntries(ctx, entries); err != nil {
			t.Fatalf("WriteEntries: %v", err)
		}

		results, _, total, err := store.QueryByEntity(ctx, "contract", "c1", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		if results[0].Summary != "Contract opened" {
			t.Errorf("first = %q, want newest first", results[0].Summary)
		}
		if len(results[0].SourceRefs) != 1 || results[0].SourceRefs[0].EntityID != "c1" {
			t.Errorf("source refs not preserved: %+v", results[0].SourceRefs)
		}
	})
}

func TestStore_WriteIsIdempotentPerEventAndEntity(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		e := testEntry("contract", "c1", "payment", "major", "negative", "Rent overdue", 1)
		if err := store.WriteEntries(ctx, []types.ActivityEntry{e}); err != nil {
			t.Fatalf("WriteEntries: %v", err)
		}
		if err := store.WriteEntries(ctx, []types.ActivityEntry{e}); err != nil {
			t.Fatalf("WriteEntries again: %v", err)
		}
		_, _, total, err := store.QueryByEntity(ctx, "contract", "c1", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
	})
}

func TestStore_QueryByEntity_FilterCategory(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("contract", "c1", "payment", "minor", "positive", "Payment", 10),
			testEntry("contract", "c1", "contract", "major", "neutral", "Terminated", 5),
		})

		opts := DefaultQueryOptions()
		opts.Categories = []string{"payment"}
		results, _, total, err := store.QueryByEntity(ctx, "contract", "c1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 || len(results) != 1 {
			t.Fatalf("total = %d, results = %d, want 1", total, len(results))
		}
		if results[0].Category != "payment" {
			t.Errorf("category = %q, want payment", results[0].Category)
		}
	})
}

func TestStore_QueryByEntity_TimeWindow(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("contract", "c1", "payment", "minor", "positive", "Recent", 5),
			testEntry("contract", "c1", "payment", "minor", "positive", "Old", 200),
		})

		since := time.Now().AddDate(0, 0, -30)
		opts := DefaultQueryOptions()
		opts.Since = &since
		results, _, total, err := store.QueryByEntity(ctx, "contract", "c1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].Summary != "Recent" {
			t.Errorf("expected only 'Recent' entry")
		}
	})
}

func TestStore_QueryByEntity_MinWeight(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("contract", "c1", "payment", "info", "positive", "Info level", 5),
			testEntry("contract", "c1", "payment", "critical", "negative", "Critical level", 5),
		})

		opts := DefaultQueryOptions()
		opts.MinWeight = "major"
		results, _, total, err := store.QueryByEntity(ctx, "contract", "c1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].Weight != "critical" {
			t.Errorf("expected only 'critical' entry")
		}
	})
}

func TestStore_QueryByEntity_EventTypes(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		overdue := testEntry("contract", "c1", "payment", "major", "negative", "Overdue", 2)
		overdue.EventType = "rent_overdue"
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("contract", "c1", "payment", "minor", "positive", "Payment", 5),
			overdue,
		})

		opts := DefaultQueryOptions()
		opts.EventTypes = []string{"rent_overdue"}
		results, _, _, err := store.QueryByEntity(ctx, "contract", "c1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if len(results) != 1 || results[0].EventType != "rent_overdue" {
			t.Errorf("expected only the overdue entry, got %+v", results)
		}
	})
}

func TestStore_QueryByEntity_Cursor(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		for i := 1; i <= 5; i++ {
			store.WriteEntries(ctx, []types.ActivityEntry{
				testEntry("contract", "c1", "payment", "minor", "positive", "Payment "+string(rune('0'+i)), i),
			})
		}

		opts := DefaultQueryOptions()
		opts.Limit = 2
		page1, cursor, total, err := store.QueryByEntity(ctx, "contract", "c1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 5 || len(page1) != 2 || cursor == "" {
			t.Fatalf("page1: total=%d len=%d cursor=%q", total, len(page1), cursor)
		}

		opts.Cursor = cursor
		page2, _, _, err := store.QueryByEntity(ctx, "contract", "c1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity page2: %v", err)
		}
		if len(page2) != 2 || page2[0].Summary != "Payment 3" {
			t.Errorf("page2 = %+v, want Payment 3 first", page2)
		}
	})
}

func TestStore_Search(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("contract", "c1", "payment", "major", "negative", "Rent overdue by 12 days", 5),
			testEntry("contract", "c1", "payment", "minor", "positive", "Payment of 150000 XOF", 10),
			testEntry("contract", "c2", "payment", "major", "negative", "Rent Overdue by 40 days", 3),
		})

		results, total, err := store.Search(ctx, "overdue", DefaultSearchOptions())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		if len(results) != 2 {
			t.Errorf("results = %d, want 2", len(results))
		}
	})
}

func TestStore_Search_EntityTypeFilter(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		a := testEntry("contract", "c1", "contract", "major", "neutral", "Contract terminated", 5)
		b := testEntry("unit", "u1", "contract", "major", "neutral", "Contract terminated", 5)
		store.WriteEntries(ctx, []types.ActivityEntry{a, b})

		opts := DefaultSearchOptions()
		opts.EntityType = "contract"
		results, total, err := store.Search(ctx, "terminated", opts)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].IndexedEntityType != "contract" {
			t.Errorf("expected only contract entity")
		}
	})
}

func TestStore_Search_NoMatch(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("contract", "c1", "payment", "minor", "positive", "Payment received", 5),
		})

		results, total, err := store.Search(ctx, "zzzznotfound", DefaultSearchOptions())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 0 || len(results) != 0 {
			t.Errorf("expected no results, got %d", total)
		}
	})
}

func TestStore_EmptyStore(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		results, _, total, err := store.QueryByEntity(context.Background(), "contract", "nobody", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 0 || len(results) != 0 {
			t.Errorf("expected empty results from empty store")
		}
	})
}
