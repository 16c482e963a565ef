package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/immo/internal/activity"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/types"
)

type publisherFunc func(ctx context.Context, evt DomainEvent)

func (f publisherFunc) Publish(ctx context.Context, evt DomainEvent) { f(ctx, evt) }

type failingWriter struct{}

func (failingWriter) WriteEntries(context.Context, []types.ActivityEntry) error {
	return errors.New("disk full")
}

func TestActivityRecorder_FansOutAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := activity.NewMemoryStore()
	rec := NewActivityRecorder(store)
	var published []DomainEvent
	rec.SetPublisher(publisherFunc(func(_ context.Context, evt DomainEvent) {
		published = append(published, evt)
	}))

	evt := NewPaymentRecorded(PaymentRecordedPayload{
		ContractID: "contract-123456789",
		UnitID:     "unit-1",
		AgencyID:   "agency-1",
		EntryID:    "entry-1",
		Amount:     types.Money{Amount: 450000, Currency: "XOF"},
		Method:     rental.MethodCash,
		PaidOn:     time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		Months:     []rental.MonthKey{"2025-01", "2025-02", "2025-03"},
	})
	require.NoError(t, rec.Record(ctx, evt))
	require.Len(t, published, 1)
	assert.Equal(t, evt.ID, published[0].ID)

	for _, ref := range evt.AffectedEntities {
		entries, _, total, err := store.QueryByEntity(ctx, ref.EntityType, ref.EntityID, activity.DefaultQueryOptions())
		require.NoError(t, err)
		assert.Equal(t, 1, total, ref.EntityType)
		assert.Equal(t, ref.Role, entries[0].EntityRole)
		assert.Equal(t, "Payment of 450000 XOF for 3 month(s) on contract contract", entries[0].Summary)
	}
}

func TestActivityRecorder_StoreFailureSkipsPublish(t *testing.T) {
	rec := NewActivityRecorder(failingWriter{})
	called := false
	rec.SetPublisher(publisherFunc(func(context.Context, DomainEvent) { called = true }))

	err := rec.Record(context.Background(), NewContractCreated(ContractCreatedPayload{ContractID: "c1"}))
	assert.Error(t, err)
	assert.False(t, called)
}

func TestNewRentOverdue_DeterministicPerMonth(t *testing.T) {
	p := RentOverduePayload{ContractID: "c1", Month: "2025-03", DaysLate: 10}
	a, b := NewRentOverdue(p), NewRentOverdue(p)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "major", a.Weight)

	p.Month = "2025-04"
	p.DaysLate = 61
	c := NewRentOverdue(p)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, "critical", c.Weight)
}

func TestNewStayPaymentMarked_Polarity(t *testing.T) {
	assert.Equal(t, "positive", NewStayPaymentMarked(StayPaymentMarkedPayload{ContractID: "c1", Paid: true}).Polarity)
	assert.Equal(t, "negative", NewStayPaymentMarked(StayPaymentMarkedPayload{ContractID: "c1"}).Polarity)
}
