// Package activity stores the entity activity stream: one entry per entity
// touched by a domain event, queried per contract, unit or agency.
package activity

import (
	"time"

	"github.com/matthewbaird/immo/internal/types"
)

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time // default: 6 months ago
	Until      *time.Time // default: now
	Categories []string   // "contract", "payment"
	EventTypes []string
	MinWeight  string // minimum weight threshold (default: "info")
	Limit      int    // max results (default: 100, max: 500)
	Cursor     string // occurred_at of the last entry of the previous page
}

// SearchOptions controls filtering for activity summary search.
type SearchOptions struct {
	EntityType string     // filter to specific entity type
	Since      *time.Time // filter by time
	Categories []string
	Limit      int // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	now := time.Now()
	return QueryOptions{
		Since:     &sixMonthsAgo,
		Until:     &now,
		MinWeight: "info",
		Limit:     100,
	}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 20,
	}
}

func queryLimit(n int) int {
	if n <= 0 || n > 500 {
		return 100
	}
	return n
}

func searchLimit(n int) int {
	if n <= 0 {
		return 20
	}
	return n
}

// weightsAtLeast lists the weights as severe as min or more. It returns nil
// when every weight qualifies.
func weightsAtLeast(min string) []string {
	if min == "" || min == "info" {
		return nil
	}
	var out []string
	for w := range types.WeightOrder {
		if types.IsAtLeastWeight(w, min) {
			out = append(out, w)
		}
	}
	return out
}
