package activity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matthewbaird/immo/internal/types"
)

// MemoryStore implements Store using in-memory slices. Used by tests and
// by `immo calendar`, which never opens a database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []types.ActivityEntry
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []types.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if s.has(e) {
			continue
		}
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []types.ActivityEntry
	for _, e := range s.entries {
		if e.IndexedEntityType != entityType || e.IndexedEntityID != entityID {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.Categories) > 0 && !contains(opts.Categories, e.Category) {
			continue
		}
		if len(opts.EventTypes) > 0 && !contains(opts.EventTypes, e.EventType) {
			continue
		}
		if opts.MinWeight != "" && opts.MinWeight != "info" {
			if !types.IsAtLeastWeight(e.Weight, opts.MinWeight) {
				continue
			}
		}
		if opts.Cursor != "" {
			cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor)
			if err == nil && !e.OccurredAt.Before(cursorTime) {
				continue
			}
		}
		matched = append(matched, e)
	}

	sortNewestFirst(matched)

	totalCount := len(matched)
	limit := queryLimit(opts.Limit)

	var nextCursor string
	if len(matched) > limit {
		matched = matched[:limit]
		nextCursor = matched[len(matched)-1].OccurredAt.Format(time.RFC3339Nano)
	}

	return matched, nextCursor, totalCount, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var matched []types.ActivityEntry
	for _, e := range s.entries {
		if !strings.Contains(strings.ToLower(e.Summary), q) {
			continue
		}
		if opts.EntityType != "" && e.IndexedEntityType != opts.EntityType {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if len(opts.Categories) > 0 && !contains(opts.Categories, e.Category) {
			continue
		}
		matched = append(matched, e)
	}

	sortNewestFirst(matched)

	totalCount := len(matched)
	limit := searchLimit(opts.Limit)
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, totalCount, nil
}

// has reports whether an entry for the same event and entity exists.
// Callers hold the lock.
func (s *MemoryStore) has(e types.ActivityEntry) bool {
	for _, x := range s.entries {
		if x.EventID == e.EventID && x.IndexedEntityType == e.IndexedEntityType && x.IndexedEntityID == e.IndexedEntityID {
			return true
		}
	}
	return false
}

func sortNewestFirst(entries []types.ActivityEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].OccurredAt.Equal(entries[j].OccurredAt) {
			return entries[i].EventID > entries[j].EventID
		}
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
