// Package worker runs the ledger's background jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/activity"
	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

const sweepPageSize = 100

// ContractLister is the read side of the ledger used by the sweep.
type ContractLister interface {
	ListContracts(ctx context.Context, f store.ContractFilter) ([]*rental.Contract, error)
}

// ActivityReader looks up events already recorded for a contract.
type ActivityReader interface {
	QueryByEntity(ctx context.Context, entityType, entityID string, opts activity.QueryOptions) ([]types.ActivityEntry, string, int, error)
}

// OverdueSweeper flags active long-term contracts whose rent is paid up to
// a date already behind us. Each contract is flagged at most once per
// calendar month.
type OverdueSweeper struct {
	contracts ContractLister
	history   ActivityReader
	recorder  event.Recorder
	now       func() time.Time
	log       *zap.Logger
}

// NewOverdueSweeper creates an OverdueSweeper.
func NewOverdueSweeper(contracts ContractLister, history ActivityReader, recorder event.Recorder, logger *zap.Logger) *OverdueSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueSweeper{
		contracts: contracts,
		history:   history,
		recorder:  recorder,
		now:       time.Now,
		log:       logger.Named("overdue"),
	}
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Scanned int
	Flagged int
	Skipped int
}

// Sweep scans overdue contracts and records a rent_overdue event for each
// one not yet flagged this month.
func (w *OverdueSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := w.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := rental.KeyOf(today)

	var res SweepResult
	for offset := 0; ; offset += sweepPageSize {
		batch, err := w.contracts.ListContracts(ctx, store.ContractFilter{
			Status:     rental.StatusActive,
			Kind:       rental.KindLongTerm,
			EndsBefore: &today,
			Limit:      sweepPageSize,
			Offset:     offset,
		})
		if err != nil {
			return res, fmt.Errorf("listing overdue contracts: %w", err)
		}
		for _, c := range batch {
			res.Scanned++
			flagged, err := w.flaggedSince(ctx, c.ID, month.Time())
			if err != nil {
				return res, err
			}
			if flagged {
				res.Skipped++
				continue
			}
			if err := w.recorder.Record(ctx, overdueEvent(c, now)); err != nil {
				return res, fmt.Errorf("recording overdue contract %s: %w", c.ID, err)
			}
			res.Flagged++
		}
		if len(batch) < sweepPageSize {
			break
		}
	}

	w.log.Info("overdue sweep finished",
		zap.String("month", string(month)),
		zap.Int("scanned", res.Scanned),
		zap.Int("flagged", res.Flagged),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (w *OverdueSweeper) flaggedSince(ctx context.Context, contractID string, since time.Time) (bool, error) {
	_, _, n, err := w.history.QueryByEntity(ctx, "contract", contractID, activity.QueryOptions{
		Since:      &since,
		EventTypes: []string{event.TypeRentOverdue},
		Limit:      1,
	})
	if err != nil {
		return false, fmt.Errorf("checking overdue history of %s: %w", contractID, err)
	}
	return n > 0, nil
}

// overdueEvent is stamped with the sweep clock so the once-a-month check
// sees the same time line.
func overdueEvent(c *rental.Contract, now time.Time) event.DomainEvent {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := c.EndDate()
	// Months from the one after the paid-through month up to this one.
	due := (today.Year()-end.Year())*12 + int(today.Month()) - int(end.Month())
	if due < 1 {
		due = 1
	}
	evt := event.NewRentOverdue(event.RentOverduePayload{
		ContractID:  c.ID,
		UnitID:      c.UnitID,
		AgencyID:    c.AgencyID,
		TenantName:  c.TenantName,
		PaidThrough: end,
		Month:       rental.KeyOf(today),
		DaysLate:    int(today.Sub(end).Hours() / 24),
		AmountDue:   types.Money{Amount: int64(due) * c.MonthlyPrice, Currency: c.Currency},
	})
	evt.OccurredAt = now
	return evt
}
