package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/activity"
	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/store/storetest"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func setup(t *testing.T) (*Service, *store.SQLStore, *activity.MemoryStore, *rental.Unit) {
	t.Helper()
	s := storetest.New(t)
	acts := activity.NewMemoryStore()
	unit, err := s.CreateUnit(context.Background(), rental.Unit{AgencyID: "agency-1", Reference: "B-12", Title: "Villa"}, storetest.Audit())
	require.NoError(t, err)
	return NewService(s, event.NewActivityRecorder(acts), "XOF", zap.NewNop()), s, acts, unit
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, s, acts, unit := setup(t)

	c, err := svc.Create(ctx, CreateRequest{
		UnitID:       unit.ID,
		TenantName:   "Moussa Traoré",
		Kind:         rental.KindLongTerm,
		StartDate:    day(2025, 1, 15),
		MonthlyPrice: 150000,
		PaidMonths:   `["2025-01"]`,
	}, storetest.Audit())
	require.NoError(t, err)
	assert.Equal(t, rental.StatusActive, c.Status)
	assert.Equal(t, "XOF", c.Currency)
	assert.Equal(t, []rental.MonthKey{"2025-01"}, c.PaidMonths.Keys())

	u, err := s.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.UnitRented, u.Status)

	entries, _, _, err := acts.QueryByEntity(ctx, "unit", unit.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, event.TypeContractCreated, entries[0].EventType)

	_, err = svc.Create(ctx, CreateRequest{
		UnitID:     unit.ID,
		TenantName: "Second",
		Kind:       rental.KindShortTerm,
		StartDate:  day(2025, 2, 1),
	}, storetest.Audit())
	assert.ErrorIs(t, err, store.ErrUnitUnavailable)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _, unit := setup(t)
	base := CreateRequest{
		UnitID:       unit.ID,
		TenantName:   "A",
		Kind:         rental.KindLongTerm,
		StartDate:    day(2025, 1, 1),
		MonthlyPrice: 1000,
	}
	before := day(2024, 12, 1)
	cases := map[string]func(r *CreateRequest){
		"no unit":          func(r *CreateRequest) { r.UnitID = "" },
		"no tenant":        func(r *CreateRequest) { r.TenantName = "" },
		"bad kind":         func(r *CreateRequest) { r.Kind = "weekly" },
		"no start":         func(r *CreateRequest) { r.StartDate = time.Time{} },
		"free long term":   func(r *CreateRequest) { r.MonthlyPrice = 0 },
		"end before start": func(r *CreateRequest) { r.RentEndDate = &before },
		"bad currency":     func(r *CreateRequest) { r.Currency = "FRANCS" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, err := svc.Create(context.Background(), req, storetest.Audit())
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestTerminate(t *testing.T) {
	ctx := context.Background()
	svc, s, acts, unit := setup(t)
	c, err := svc.Create(ctx, CreateRequest{
		UnitID:       unit.ID,
		TenantName:   "Awa",
		Kind:         rental.KindLongTerm,
		StartDate:    day(2025, 1, 1),
		MonthlyPrice: 150000,
		PaidMonths:   []string{"2025-01", "2025-02"},
	}, storetest.Audit())
	require.NoError(t, err)

	done, err := svc.Terminate(ctx, c.ID, time.Date(2025, 2, 28, 17, 30, 0, 0, time.UTC), storetest.Audit())
	require.NoError(t, err)
	assert.Equal(t, rental.StatusTerminated, done.Status)
	assert.Equal(t, day(2025, 2, 28), *done.TerminatedOn)
	assert.Equal(t, []rental.MonthKey{"2025-01", "2025-02"}, done.PaidMonths.Keys())

	u, err := s.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.UnitAvailable, u.Status)

	entries, _, _, err := acts.QueryByEntity(ctx, "contract", c.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, event.TypeContractTerminated, entries[0].EventType)

	_, err = svc.Terminate(ctx, c.ID, day(2025, 3, 1), storetest.Audit())
	assert.ErrorIs(t, err, rental.ErrInvalidTransition)
}

func TestTerminate_NotFound(t *testing.T) {
	svc, _, _, _ := setup(t)
	_, err := svc.Terminate(context.Background(), "missing", day(2025, 1, 1), storetest.Audit())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
