package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/activity"
	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/store/storetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pay(t *testing.T, s *store.SQLStore, id string, months ...rental.MonthKey) {
	t.Helper()
	_, err := s.CommitMonthlyPayment(context.Background(), id, store.PaymentDraft{
		Months: months,
		Method: rental.MethodCash,
		Amount: 1,
		PaidOn: day(2025, 1, 1),
		Audit:  storetest.Audit(),
	})
	require.NoError(t, err)
}

func TestOverdueSweeper(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	acts := activity.NewMemoryStore()

	late := storetest.LongTerm(t, s, day(2025, 1, 1), 150000)
	pay(t, s, late.ID, "2025-01")
	current := storetest.LongTerm(t, s, day(2025, 1, 1), 150000)
	pay(t, s, current.ID, "2025-01", "2025-02", "2025-03", "2025-04")
	storetest.ShortTerm(t, s, day(2025, 1, 1), 40000)

	w := NewOverdueSweeper(s, acts, event.NewActivityRecorder(acts), zap.NewNop())
	w.now = func() time.Time { return time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC) }

	res, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Flagged: 1}, res)

	entries, _, _, err := acts.QueryByEntity(ctx, "contract", late.ID, activity.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, event.TypeRentOverdue, entries[0].EventType)

	var payload event.RentOverduePayload
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.Equal(t, rental.MonthKey("2025-03"), payload.Month)
	assert.Equal(t, 40, payload.DaysLate)
	assert.Equal(t, int64(300000), payload.AmountDue.Amount)

	// Same month: nothing new.
	res, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Skipped: 1}, res)

	// Next month flags again.
	w.now = func() time.Time { return time.Date(2025, 4, 2, 6, 0, 0, 0, time.UTC) }
	res, err = w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Flagged)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewScheduler("every day", &OverdueSweeper{}, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s := storetest.New(t)
	acts := activity.NewMemoryStore()
	w := NewOverdueSweeper(s, acts, event.NewActivityRecorder(acts), zap.NewNop())

	sched, err := NewScheduler("@every 1h", w, zap.NewNop())
	require.NoError(t, err)
	sched.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sched.Stop(ctx)
}
