package payment

import (
	"context"
	"sync"
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

func setup(t *testing.T) (*Committer, *store.SQLStore, *activity.MemoryStore) {
	t.Helper()
	s := storetest.New(t)
	acts := activity.NewMemoryStore()
	return NewCommitter(s, event.NewActivityRecorder(acts), zap.NewNop()), s, acts
}

func request(contractID string, months ...rental.MonthKey) CommitRequest {
	return CommitRequest{
		ContractID: contractID,
		Months:     months,
		Method:     rental.MethodMobileMoney,
		Amount:     150000 * int64(len(months)),
		PaidOn:     day(2025, 1, 20),
		AsOf:       day(2025, 1, 20),
		Audit:      storetest.Audit(),
	}
}

func TestCommit_SelectionFromCalendar(t *testing.T) {
	ctx := context.Background()
	c, s, acts := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	months := ct.Calendar(day(2025, 1, 20))
	sel, err := rental.Toggle(months, 2, ct.MonthlyPrice)
	require.NoError(t, err)
	assert.Equal(t, int64(450000), sel.Amount)

	req := request(ct.ID, rental.SelectedUnpaid(sel.Months)...)
	req.Amount = sel.Amount
	receipt, err := c.Commit(ctx, req)
	require.NoError(t, err)

	assert.False(t, receipt.Replayed)
	assert.Equal(t, []rental.MonthKey{"2025-01", "2025-02", "2025-03"}, receipt.Entry.Months)
	assert.Equal(t, int64(450000), receipt.Entry.Amount)
	assert.Equal(t, 3, receipt.Contract.PaidMonthsCount)
	require.NotNil(t, receipt.Contract.RentEndDate)
	assert.Equal(t, day(2025, 3, 31), *receipt.Contract.RentEndDate)

	after := receipt.Contract.Calendar(day(2025, 1, 20))
	for i := 0; i < 3; i++ {
		assert.True(t, after[i].Paid, after[i].Key)
	}
	assert.Empty(t, rental.SelectedUnpaid(after))

	entries, _, total, err := acts.QueryByEntity(ctx, "contract", ct.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, event.TypePaymentRecorded, entries[0].EventType)
}

func TestCommit_EmptySelectionRejected(t *testing.T) {
	ctx := context.Background()
	c, s, acts := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	_, err := c.Commit(ctx, request(ct.ID))
	assert.ErrorIs(t, err, rental.ErrEmptySelection)

	history, err := c.History(ctx, ct.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, _, total, err := acts.QueryByEntity(ctx, "contract", ct.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCommit_Validation(t *testing.T) {
	c, s, _ := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	cases := map[string]func(r *CommitRequest){
		"bad month":      func(r *CommitRequest) { r.Months = []rental.MonthKey{"2025-13"} },
		"no method":      func(r *CommitRequest) { r.Method = "" },
		"unknown method": func(r *CommitRequest) { r.Method = "barter" },
		"negative":       func(r *CommitRequest) { r.Amount = -1 },
		"no date":        func(r *CommitRequest) { r.PaidOn = time.Time{} },
		"no contract":    func(r *CommitRequest) { r.ContractID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := request(ct.ID, "2025-01")
			mutate(&req)
			_, err := c.Commit(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCommit_IdempotencyKeyReturnsOriginalReceipt(t *testing.T) {
	ctx := context.Background()
	c, s, acts := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	req := request(ct.ID, "2025-01")
	req.IdempotencyKey = "desk-42"
	first, err := c.Commit(ctx, req)
	require.NoError(t, err)
	second, err := c.Commit(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	_, _, total, err := acts.QueryByEntity(ctx, "contract", ct.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestCommit_ConcurrentDuplicatesWriteOnce(t *testing.T) {
	ctx := context.Background()
	c, s, _ := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	req := request(ct.ID, "2025-01", "2025-02")
	req.IdempotencyKey = "double-click"

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Commit(ctx, req)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	history, err := c.History(ctx, ct.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCommit_ConcurrentAgentsNeverPayAMonthTwice(t *testing.T) {
	ctx := context.Background()
	c, s, _ := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	// Three desks looking at the same window select runs of one, two and
	// three months and confirm at once.
	runs := [][]rental.MonthKey{{"2025-01"}, {"2025-01", "2025-02"}, {"2025-01", "2025-02", "2025-03"}}
	var wg sync.WaitGroup
	for _, run := range runs {
		wg.Add(1)
		go func(run []rental.MonthKey) {
			defer wg.Done()
			req := request(ct.ID, run...)
			req.Amount = 0
			_, err := c.Commit(ctx, req)
			if err != nil {
				assert.ErrorIs(t, err, rental.ErrEmptySelection)
			}
		}(run)
	}
	wg.Wait()

	got, err := s.GetContract(ctx, ct.ID)
	require.NoError(t, err)
	assert.Equal(t, []rental.MonthKey{"2025-01", "2025-02", "2025-03"}, got.PaidMonths.Keys())
	assert.Equal(t, day(2025, 3, 31), *got.RentEndDate)

	history, err := c.History(ctx, ct.ID, 0, 0)
	require.NoError(t, err)
	seen := map[rental.MonthKey]bool{}
	for _, e := range history {
		assert.Equal(t, int64(e.MonthsCount)*150000, e.Amount)
		for _, m := range e.Months {
			assert.False(t, seen[m], "month %s paid twice", m)
			seen[m] = true
		}
	}
	assert.Len(t, seen, 3)
}

func TestCommit_RejectsMonthsLeavingAGap(t *testing.T) {
	ctx := context.Background()
	c, s, acts := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	_, err := c.Commit(ctx, request(ct.ID, "2025-01"))
	require.NoError(t, err)

	_, err = c.Commit(ctx, request(ct.ID, "2025-06"))
	assert.ErrorIs(t, err, rental.ErrSelectionGap)
	_, err = c.Commit(ctx, request(ct.ID, "2025-02", "2025-04"))
	assert.ErrorIs(t, err, rental.ErrSelectionGap)
	_, err = c.Commit(ctx, request(ct.ID, "2024-12"))
	assert.ErrorIs(t, err, rental.ErrOutsideWindow)

	got, err := s.GetContract(ctx, ct.ID)
	require.NoError(t, err)
	assert.Equal(t, []rental.MonthKey{"2025-01"}, got.PaidMonths.Keys())
	assert.Equal(t, day(2025, 1, 31), *got.RentEndDate)

	_, _, total, err := acts.QueryByEntity(ctx, "contract", ct.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestCommit_ZeroAmountIsQuotedFromWrittenMonths(t *testing.T) {
	ctx := context.Background()
	c, s, _ := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	req := request(ct.ID, "2025-01", "2025-01", "2025-01")
	req.Amount = 0
	receipt, err := c.Commit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Entry.MonthsCount)
	assert.Equal(t, int64(150000), receipt.Entry.Amount)

	// A stale client resends January with February.
	req = request(ct.ID, "2025-01", "2025-02")
	req.Amount = 0
	receipt, err = c.Commit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []rental.MonthKey{"2025-02"}, receipt.Entry.Months)
	assert.Equal(t, int64(150000), receipt.Entry.Amount)
}

type gatedStore struct {
	Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) CommitMonthlyPayment(ctx context.Context, id string, d store.PaymentDraft) (*store.CommitResult, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.CommitMonthlyPayment(ctx, id, d)
}

func TestCommit_SharedCommitSurvivesFirstCallerCancel(t *testing.T) {
	backing := storetest.New(t)
	ct := storetest.LongTerm(t, backing, day(2025, 1, 15), 150000)
	gs := &gatedStore{Store: backing, entered: make(chan struct{}), release: make(chan struct{})}
	c := NewCommitter(gs, nil, zap.NewNop())

	req := request(ct.ID, "2025-01")
	req.IdempotencyKey = "shared"

	firstCtx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = c.Commit(firstCtx, req)
	}()
	<-gs.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := c.Commit(context.Background(), req)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(gs.release)

	require.NoError(t, <-secondErr)
	<-firstDone

	history, err := c.History(context.Background(), ct.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

type conflictingStore struct {
	Store
	calls int
}

func (s *conflictingStore) CommitMonthlyPayment(ctx context.Context, id string, d store.PaymentDraft) (*store.CommitResult, error) {
	s.calls++
	if s.calls < 3 {
		return nil, store.ErrConflict
	}
	return s.Store.CommitMonthlyPayment(ctx, id, d)
}

func TestCommit_RetriesOnVersionConflict(t *testing.T) {
	backing := storetest.New(t)
	ct := storetest.LongTerm(t, backing, day(2025, 1, 15), 150000)
	cs := &conflictingStore{Store: backing}
	c := NewCommitter(cs, nil, zap.NewNop())

	receipt, err := c.Commit(context.Background(), request(ct.ID, "2025-01"))
	require.NoError(t, err)
	assert.Equal(t, 3, cs.calls)
	assert.Equal(t, []rental.MonthKey{"2025-01"}, receipt.Entry.Months)
}

func TestCommit_GivesUpAfterMaxAttempts(t *testing.T) {
	backing := storetest.New(t)
	ct := storetest.LongTerm(t, backing, day(2025, 1, 15), 150000)
	cs := &conflictingStore{Store: backing, calls: -10}
	c := NewCommitter(cs, nil, zap.NewNop())

	_, err := c.Commit(context.Background(), request(ct.ID, "2025-01"))
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, -10+maxAttempts, cs.calls)
}

func TestMarkStayPaid(t *testing.T) {
	ctx := context.Background()
	c, s, acts := setup(t)
	short := storetest.ShortTerm(t, s, day(2025, 1, 15), 40000)
	long := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)

	ct, err := c.MarkStayPaid(ctx, short.ID, true, storetest.Audit())
	require.NoError(t, err)
	assert.True(t, ct.IsPaid)

	entries, _, _, err := acts.QueryByEntity(ctx, "contract", short.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, event.TypeStayPaymentMarked, entries[0].EventType)

	_, err = c.MarkStayPaid(ctx, long.ID, true, storetest.Audit())
	assert.ErrorIs(t, err, rental.ErrNotShortTerm)
}

func TestPaymentForMonth(t *testing.T) {
	ctx := context.Background()
	c, s, _ := setup(t)
	ct := storetest.LongTerm(t, s, day(2025, 1, 15), 150000)
	receipt, err := c.Commit(ctx, request(ct.ID, "2025-01", "2025-02"))
	require.NoError(t, err)

	e, err := c.PaymentForMonth(ctx, ct.ID, "2025-02")
	require.NoError(t, err)
	assert.Equal(t, receipt.Entry.ID, e.ID)

	_, err = c.PaymentForMonth(ctx, ct.ID, "bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.PaymentForMonth(ctx, ct.ID, "2025-05")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQuote(t *testing.T) {
	q := Quote(&rental.Contract{MonthlyPrice: 150000, Currency: "XOF"}, 3)
	assert.Equal(t, int64(450000), q.Amount)
	assert.Equal(t, "XOF", q.Currency)
}
