// Package event provides domain event recording for the ledger services.
// Events are fanned out as ActivityEntry records via the activity.Store
// interface, then published to the in-process event bus.
package event

import (
	"context"

	"github.com/matthewbaird/immo/internal/types"
)

// Recorder writes domain events to the activity store.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// EntryWriter is the write side of the activity store.
type EntryWriter interface {
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error
}

// ActivityRecorder implements Recorder by fanning out a DomainEvent into
// one ActivityEntry per affected entity. If a Publisher is set, the event
// is also published after the store write succeeds.
type ActivityRecorder struct {
	store EntryWriter
	bus   Publisher
}

// NewActivityRecorder creates a new ActivityRecorder backed by the given store.
func NewActivityRecorder(store EntryWriter) *ActivityRecorder {
	return &ActivityRecorder{store: store}
}

// SetPublisher attaches an event bus.
func (r *ActivityRecorder) SetPublisher(p Publisher) {
	r.bus = p
}

// Record writes the fanned-out entries and publishes the event.
func (r *ActivityRecorder) Record(ctx context.Context, evt DomainEvent) error {
	if err := r.store.WriteEntries(ctx, Entries(evt)); err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
	return nil
}

// Entries fans evt out into one ActivityEntry per affected entity.
func Entries(evt DomainEvent) []types.ActivityEntry {
	entries := make([]types.ActivityEntry, 0, len(evt.AffectedEntities))
	for _, ref := range evt.AffectedEntities {
		entries = append(entries, types.ActivityEntry{
			EventID:           evt.ID,
			EventType:         evt.EventType,
			OccurredAt:        evt.OccurredAt,
			IndexedEntityType: ref.EntityType,
			IndexedEntityID:   ref.EntityID,
			EntityRole:        ref.Role,
			SourceRefs:        evt.AffectedEntities,
			Summary:           evt.Summary,
			Category:          evt.Category,
			Weight:            evt.Weight,
			Polarity:          evt.Polarity,
			Payload:           evt.Payload,
		})
	}
	return entries
}
