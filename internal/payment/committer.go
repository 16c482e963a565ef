// Package payment commits rent payments against contracts: the ledger entry
// and the contract's paid months are written together, at most once per
// idempotency key.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

// ErrInvalidInput wraps request validation failures.
var ErrInvalidInput = errors.New("invalid payment")

const maxAttempts = 3

// Store is the ledger persistence the committer needs.
type Store interface {
	GetContract(ctx context.Context, id string) (*rental.Contract, error)
	CommitMonthlyPayment(ctx context.Context, contractID string, d store.PaymentDraft) (*store.CommitResult, error)
	SetStayPaid(ctx context.Context, id string, paid bool, audit types.AuditInfo) (*rental.Contract, error)
	PaymentForMonth(ctx context.Context, contractID string, k rental.MonthKey) (*rental.PaymentEntry, error)
	ListPayments(ctx context.Context, contractID string, limit, offset int) ([]*rental.PaymentEntry, error)
}

// CommitRequest is a monthly payment as entered at the desk. A zero Amount
// charges the monthly price for each month actually written. AsOf is the day
// the selection was made on; zero means now.
type CommitRequest struct {
	ContractID     string               `validate:"required"`
	Months         []rental.MonthKey    `validate:"dive,monthkey"`
	Method         rental.PaymentMethod `validate:"required,oneof=cash bank_transfer check mobile_money card"`
	Amount         int64                `validate:"gte=0"`
	PaidOn         time.Time
	AsOf           time.Time
	Reference      string `validate:"max=120"`
	IdempotencyKey string `validate:"max=128"`
	Audit          types.AuditInfo
}

// Receipt is the single result of a commit: the ledger entry and the
// contract as it stands after it.
type Receipt struct {
	Entry    *rental.PaymentEntry `json:"entry"`
	Contract *rental.Contract     `json:"contract"`
	// Replayed is true when the idempotency key matched an earlier commit.
	Replayed bool `json:"replayed"`
}

// Committer records monthly payments and stay payments.
type Committer struct {
	store    Store
	recorder event.Recorder
	validate *validator.Validate
	flight   singleflight.Group
	log      *zap.Logger
}

// NewCommitter creates a Committer. recorder may be nil.
func NewCommitter(s Store, recorder event.Recorder, logger *zap.Logger) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	_ = v.RegisterValidation("monthkey", func(fl validator.FieldLevel) bool {
		return rental.MonthKey(fl.Field().String()).Valid()
	})
	return &Committer{
		store:    s,
		recorder: recorder,
		validate: v,
		log:      logger.Named("payment"),
	}
}

// Commit writes one ledger entry for the selected months and folds them into
// the contract. An empty selection is rejected with rental.ErrEmptySelection
// before anything is written, and so are months that do not form a run
// from the first unpaid month of the window as of req.AsOf
// (rental.ErrSelectionGap, rental.ErrOutsideWindow). Duplicate requests in
// flight share one result; a request repeating a committed idempotency key
// gets the original receipt back.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (*Receipt, error) {
	if len(req.Months) == 0 {
		return nil, rental.ErrEmptySelection
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if req.PaidOn.IsZero() {
		return nil, fmt.Errorf("%w: payment date is required", ErrInvalidInput)
	}

	if req.AsOf.IsZero() {
		req.AsOf = time.Now()
	}
	// Collapsed callers share one commit; it outlives any single caller.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := c.flight.Do(flightKey(req), func() (any, error) {
		return c.commit(flightCtx, req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("collapsed duplicate commit", zap.String("contract_id", req.ContractID))
	}
	return v.(*Receipt), nil
}

func (c *Committer) commit(ctx context.Context, req CommitRequest) (*Receipt, error) {
	draft := store.PaymentDraft{
		Months:         req.Months,
		Method:         req.Method,
		Amount:         req.Amount,
		AsOf:           req.AsOf,
		PaidOn:         req.PaidOn,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		Audit:          req.Audit,
	}

	var (
		res *store.CommitResult
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err = c.store.CommitMonthlyPayment(ctx, req.ContractID, draft)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		c.log.Info("contract changed during commit, retrying",
			zap.String("contract_id", req.ContractID),
			zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt*10) * time.Millisecond):
		}
	}
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{Entry: res.Entry, Contract: res.Contract, Replayed: res.Replayed}
	if res.Replayed {
		c.log.Info("replayed payment",
			zap.String("contract_id", req.ContractID),
			zap.String("entry_id", res.Entry.ID),
			zap.String("idempotency_key", req.IdempotencyKey))
		return receipt, nil
	}

	c.log.Info("payment committed",
		zap.String("contract_id", res.Contract.ID),
		zap.String("entry_id", res.Entry.ID),
		zap.Int64("amount", res.Entry.Amount),
		zap.Int("months", res.Entry.MonthsCount))
	c.record(ctx, event.NewPaymentRecorded(event.PaymentRecordedPayload{
		ContractID:  res.Contract.ID,
		UnitID:      res.Contract.UnitID,
		AgencyID:    res.Contract.AgencyID,
		EntryID:     res.Entry.ID,
		Amount:      types.Money{Amount: res.Entry.Amount, Currency: res.Entry.Currency},
		Method:      res.Entry.Method,
		PaidOn:      res.Entry.PaidOn,
		Months:      res.Entry.Months,
		RentEndDate: res.Contract.RentEndDate,
		Reference:   res.Entry.Reference,
	}))
	return receipt, nil
}

// MarkStayPaid sets or clears the paid flag of a short-term contract. No
// ledger entry is written.
func (c *Committer) MarkStayPaid(ctx context.Context, contractID string, paid bool, audit types.AuditInfo) (*rental.Contract, error) {
	var (
		ct  *rental.Contract
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ct, err = c.store.SetStayPaid(ctx, contractID, paid, audit)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	c.record(ctx, event.NewStayPaymentMarked(event.StayPaymentMarkedPayload{
		ContractID: ct.ID,
		UnitID:     ct.UnitID,
		AgencyID:   ct.AgencyID,
		Paid:       paid,
	}))
	return ct, nil
}

// PaymentForMonth returns the ledger entry that settled month k.
func (c *Committer) PaymentForMonth(ctx context.Context, contractID string, k rental.MonthKey) (*rental.PaymentEntry, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: invalid month %q", ErrInvalidInput, k)
	}
	return c.store.PaymentForMonth(ctx, contractID, k)
}

// History lists the ledger of a contract, newest first.
func (c *Committer) History(ctx context.Context, contractID string, limit, offset int) ([]*rental.PaymentEntry, error) {
	if _, err := c.store.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	return c.store.ListPayments(ctx, contractID, limit, offset)
}

// Quote prices a selection of months at the contract's monthly price.
func Quote(ct *rental.Contract, months int) types.Money {
	return types.Money{Amount: int64(months) * ct.MonthlyPrice, Currency: ct.Currency}
}

// record is best effort: the payment is already durable.
func (c *Committer) record(ctx context.Context, evt event.DomainEvent) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, evt); err != nil {
		c.log.Error("event recording failed", zap.String("event_type", evt.EventType), zap.Error(err))
	}
}

func flightKey(req CommitRequest) string {
	if req.IdempotencyKey != "" {
		return req.ContractID + "/key/" + req.IdempotencyKey
	}
	keys := rental.NewPaidMonths(req.Months...).Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return req.ContractID + "/months/" + strings.Join(parts, ",")
}
