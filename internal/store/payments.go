package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/types"
)

var paymentColumns = []string{
	"id", "contract_id", "method", "amount", "currency", "paid_on",
	"months_count", "months", "reference", "idempotency_key",
	"created_at", "created_by",
}

// PaymentDraft is a monthly payment about to be written to the ledger.
// A zero Amount is quoted from the months actually written. When AsOf is set
// the months are checked against the contract's window generated on that
// day, so they must be a run starting at its first unpaid month.
type PaymentDraft struct {
	Months         []rental.MonthKey
	Method         rental.PaymentMethod
	Amount         int64
	AsOf           time.Time
	PaidOn         time.Time
	Reference      string
	IdempotencyKey string
	Audit          types.AuditInfo
}

// CommitResult is the outcome of CommitMonthlyPayment. Replayed is set when
// the idempotency key matched an earlier entry and nothing was written.
type CommitResult struct {
	Entry    *rental.PaymentEntry
	Contract *rental.Contract
	Replayed bool
}

// CommitMonthlyPayment inserts a ledger entry and folds its months into the
// contract in a single transaction. Months already paid are dropped from
// the draft; if none remain the call fails with rental.ErrEmptySelection and
// nothing is written. A draft with AsOf that fails the window check is
// rejected with rental.ErrSelectionGap or rental.ErrOutsideWindow. An
// idempotency key that was already committed replays before any check.
// The contract row is updated only if its version is unchanged since it was
// read, otherwise ErrConflict is returned.
func (s *SQLStore) CommitMonthlyPayment(ctx context.Context, contractID string, d PaymentDraft) (*CommitResult, error) {
	var out *CommitResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := s.getContract(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if d.IdempotencyKey != "" {
			prev, err := s.paymentByKey(ctx, tx, contractID, d.IdempotencyKey)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if prev != nil {
				out = &CommitResult{Entry: prev, Contract: c, Replayed: true}
				return nil
			}
		}
		if err := c.CanPayMonths(); err != nil {
			return err
		}

		fresh, err := freshMonths(c, d)
		if err != nil {
			return err
		}
		amount := d.Amount
		if amount == 0 {
			amount = int64(len(fresh)) * c.MonthlyPrice
		}
		if err := c.ApplyMonths(fresh); err != nil {
			return err
		}

		now := time.Now().UTC()
		entry := &rental.PaymentEntry{
			ID:             uuid.New().String(),
			ContractID:     c.ID,
			Method:         d.Method,
			Amount:         amount,
			Currency:       c.Currency,
			PaidOn:         d.PaidOn,
			MonthsCount:    len(fresh),
			Months:         fresh,
			Reference:      d.Reference,
			IdempotencyKey: d.IdempotencyKey,
			CreatedAt:      now,
			CreatedBy:      d.Audit.Actor,
		}
		if err := s.insertPayment(ctx, tx, entry, d.Audit); err != nil {
			return err
		}
		if err := s.updateContract(ctx, tx, c, d.Audit); err != nil {
			return err
		}
		out = &CommitResult{Entry: entry, Contract: c}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// freshMonths returns the draft's months that are not paid yet, sorted.
func freshMonths(c *rental.Contract, d PaymentDraft) ([]rental.MonthKey, error) {
	if !d.AsOf.IsZero() {
		return rental.ValidateSelection(c.Calendar(d.AsOf), d.Months)
	}
	var fresh []rental.MonthKey
	for _, k := range rental.NewPaidMonths(d.Months...).Keys() {
		if !c.PaidMonths.Has(k) {
			fresh = append(fresh, k)
		}
	}
	return fresh, nil
}

func (s *SQLStore) insertPayment(ctx context.Context, q querier, e *rental.PaymentEntry, audit types.AuditInfo) error {
	months, err := json.Marshal(e.Months)
	if err != nil {
		return err
	}
	key := sql.NullString{String: e.IdempotencyKey, Valid: e.IdempotencyKey != ""}
	query, args := s.builder().Insert(tablePayments).
		Columns(append(paymentColumns, "source", "correlation_id")...).
		Values(e.ID, e.ContractID, string(e.Method), e.Amount, e.Currency, formatDate(e.PaidOn),
			e.MonthsCount, string(months), e.Reference, key,
			formatTime(e.CreatedAt), e.CreatedBy,
			audit.Source, nullString(audit.CorrelationID)).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			// A concurrent request with the same key won the race.
			return fmt.Errorf("payment key %q: %w", e.IdempotencyKey, ErrConflict)
		}
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

func (s *SQLStore) paymentByKey(ctx context.Context, q querier, contractID, key string) (*rental.PaymentEntry, error) {
	query, args := s.builder().Select(paymentColumns...).
		From(entsql.Table(tablePayments)).
		Where(entsql.And(entsql.EQ("contract_id", contractID), entsql.EQ("idempotency_key", key))).
		Query()
	e, err := scanPayment(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading payment: %w", err)
	}
	return e, nil
}

// ListPayments returns the ledger of a contract, newest first.
func (s *SQLStore) ListPayments(ctx context.Context, contractID string, limit, offset int) ([]*rental.PaymentEntry, error) {
	query, args := s.builder().Select(paymentColumns...).
		From(entsql.Table(tablePayments)).
		Where(entsql.EQ("contract_id", contractID)).
		OrderBy(entsql.Desc("paid_on"), entsql.Desc("created_at")).
		Limit(limitOrDefault(limit)).
		Offset(offset).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var out []*rental.PaymentEntry
	for rows.Next() {
		e, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PaymentForMonth returns the ledger entry that settled month k. Entries
// store their months as JSON text, so the match is done after a LIKE
// prefilter.
func (s *SQLStore) PaymentForMonth(ctx context.Context, contractID string, k rental.MonthKey) (*rental.PaymentEntry, error) {
	query, args := s.builder().Select(paymentColumns...).
		From(entsql.Table(tablePayments)).
		Where(entsql.And(
			entsql.EQ("contract_id", contractID),
			entsql.Contains("months", `"`+string(k)+`"`),
		)).
		OrderBy(entsql.Desc("created_at")).
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding payment for %s: %w", k, err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		if e.Covers(k) {
			return e, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("payment for %s: %w", k, ErrNotFound)
}

func scanPayment(row scanner) (*rental.PaymentEntry, error) {
	var (
		e         rental.PaymentEntry
		method    string
		paidOn    string
		months    string
		key       sql.NullString
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.ContractID, &method, &e.Amount, &e.Currency, &paidOn,
		&e.MonthsCount, &months, &e.Reference, &key,
		&createdAt, &e.CreatedBy); err != nil {
		return nil, err
	}
	e.Method = rental.PaymentMethod(method)
	e.IdempotencyKey = key.String
	e.Months = rental.NormalizePaidMonths(months)
	var err error
	if e.PaidOn, err = parseDate(paidOn); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}
