// Package signals condenses a contract's activity stream into a payment
// health summary: counts per category, trends and escalations.
package signals

import (
	"sort"
	"time"

	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/types"
)

// CategorySummary counts the entries of one category.
type CategorySummary struct {
	Category         string         `json:"category"`
	SignalCount      int            `json:"signal_count"`
	ByWeight         map[string]int `json:"by_weight"`
	ByPolarity       map[string]int `json:"by_polarity"`
	DominantPolarity string         `json:"dominant_polarity"`
	Trend            string         `json:"trend"` // "improving", "stable", "declining"
}

// EscalationRule raises a signal when enough matching entries fall inside
// a trailing window.
type EscalationRule struct {
	ID          string `json:"id"`
	EventType   string `json:"event_type,omitempty"`
	Category    string `json:"category,omitempty"`
	Polarity    string `json:"polarity,omitempty"`
	Count       int    `json:"count"`
	WithinDays  int    `json:"within_days"`
	Weight      string `json:"weight"`
	Description string `json:"description"`
}

// EscalatedSignal is a rule that fired.
type EscalatedSignal struct {
	Rule             EscalationRule `json:"rule"`
	TriggeringCount  int            `json:"triggering_count"`
	EarliestOccurred time.Time      `json:"earliest_occurred"`
	LatestOccurred   time.Time      `json:"latest_occurred"`
}

// Summary is the payment health of an entity over a window.
type Summary struct {
	EntityType       string                     `json:"entity_type"`
	EntityID         string                     `json:"entity_id"`
	Since            time.Time                  `json:"since"`
	Until            time.Time                  `json:"until"`
	Categories       map[string]CategorySummary `json:"categories"`
	OverallSentiment string                     `json:"overall_sentiment"` // "positive", "mixed", "concerning", "critical"
	SentimentReason  string                     `json:"sentiment_reason"`
	Escalations      []EscalatedSignal          `json:"escalations"`
}

// Rules are evaluated on every summary.
var Rules = []EscalationRule{
	{
		ID:          "repeated_overdue",
		EventType:   event.TypeRentOverdue,
		Count:       2,
		WithinDays:  180,
		Weight:      "critical",
		Description: "Rent overdue in two or more months over the last six months",
	},
	{
		ID:          "overdue",
		EventType:   event.TypeRentOverdue,
		Count:       1,
		WithinDays:  45,
		Weight:      "major",
		Description: "Rent overdue this month",
	},
	{
		ID:          "stay_unpaid",
		EventType:   event.TypeStayPaymentMarked,
		Polarity:    "negative",
		Count:       1,
		WithinDays:  30,
		Weight:      "major",
		Description: "Stay payment reverted to unpaid",
	},
}

// Aggregate produces a Summary from the entries of one entity between since
// and until. Escalation windows end at until.
func Aggregate(entries []types.ActivityEntry, entityType, entityID string, since, until time.Time) Summary {
	categories := make(map[string]*CategorySummary)
	for _, entry := range entries {
		cs, ok := categories[entry.Category]
		if !ok {
			cs = &CategorySummary{
				Category:   entry.Category,
				ByWeight:   make(map[string]int),
				ByPolarity: make(map[string]int),
			}
			categories[entry.Category] = cs
		}
		cs.SignalCount++
		cs.ByWeight[entry.Weight]++
		cs.ByPolarity[entry.Polarity]++
	}

	result := make(map[string]CategorySummary, len(categories))
	for cat, cs := range categories {
		cs.DominantPolarity = dominantPolarity(cs.ByPolarity)
		cs.Trend = computeTrend(entries, cat, since, until)
		result[cat] = *cs
	}

	escalations := Escalations(entries, until)
	sentiment, reason := computeSentiment(result, escalations)

	return Summary{
		EntityType:       entityType,
		EntityID:         entityID,
		Since:            since,
		Until:            until,
		Categories:       result,
		OverallSentiment: sentiment,
		SentimentReason:  reason,
		Escalations:      escalations,
	}
}

// Escalations evaluates Rules against entries as of now. When a rule and a
// narrower rule on the same event type both fire, only the heavier one is
// kept.
func Escalations(entries []types.ActivityEntry, now time.Time) []EscalatedSignal {
	var fired []EscalatedSignal
	seen := make(map[string]bool)
	for _, rule := range Rules {
		if seen[rule.EventType] {
			continue
		}
		if es, ok := evaluate(rule, entries, now); ok {
			fired = append(fired, es)
			seen[rule.EventType] = true
		}
	}
	return fired
}

func evaluate(rule EscalationRule, entries []types.ActivityEntry, now time.Time) (EscalatedSignal, bool) {
	windowStart := now.AddDate(0, 0, -rule.WithinDays)

	var matching []types.ActivityEntry
	for _, e := range entries {
		if e.OccurredAt.Before(windowStart) || e.OccurredAt.After(now) {
			continue
		}
		if rule.EventType != "" && e.EventType != rule.EventType {
			continue
		}
		if rule.Category != "" && e.Category != rule.Category {
			continue
		}
		if rule.Polarity != "" && e.Polarity != rule.Polarity {
			continue
		}
		matching = append(matching, e)
	}
	if len(matching) == 0 || len(matching) < rule.Count {
		return EscalatedSignal{}, false
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].OccurredAt.Before(matching[j].OccurredAt)
	})
	return EscalatedSignal{
		Rule:             rule,
		TriggeringCount:  len(matching),
		EarliestOccurred: matching[0].OccurredAt,
		LatestOccurred:   matching[len(matching)-1].OccurredAt,
	}, true
}

// dominantPolarity returns the polarity with the highest count, ties going
// to the alphabetically first.
func dominantPolarity(byPolarity map[string]int) string {
	best, bestCount := "", 0
	for p, c := range byPolarity {
		if c > bestCount || (c == bestCount && p < best) {
			best, bestCount = p, c
		}
	}
	return best
}

// computeTrend compares negative signal volume in the first and second half
// of the window.
func computeTrend(entries []types.ActivityEntry, category string, since, until time.Time) string {
	mid := since.Add(until.Sub(since) / 2)
	var firstHalf, secondHalf int
	for _, e := range entries {
		if e.Category != category || e.Polarity != "negative" {
			continue
		}
		if e.OccurredAt.Before(mid) {
			firstHalf++
		} else {
			secondHalf++
		}
	}
	switch {
	case secondHalf > firstHalf:
		return "declining"
	case firstHalf > secondHalf:
		return "improving"
	default:
		return "stable"
	}
}

func computeSentiment(categories map[string]CategorySummary, escalations []EscalatedSignal) (string, string) {
	for _, e := range escalations {
		if e.Rule.Weight == "critical" {
			return "critical", e.Rule.Description
		}
	}

	var critical, negative, positive int
	for _, cs := range categories {
		critical += cs.ByWeight["critical"]
		negative += cs.ByPolarity["negative"]
		positive += cs.ByPolarity["positive"]
	}

	switch {
	case critical > 0:
		return "critical", "Rent overdue by more than two months."
	case len(escalations) > 0 || negative > positive*2:
		return "concerning", "Overdue or unpaid signals outweigh payments."
	case negative > positive:
		return "mixed", "More negative than positive signals, but no critical concerns."
	default:
		return "positive", "Payments are up to date."
	}
}
