// Package lease opens and terminates rental contracts.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

// ErrInvalidInput wraps request validation failures.
var ErrInvalidInput = errors.New("invalid contract")

// Store is the contract persistence the service needs.
type Store interface {
	GetContract(ctx context.Context, id string) (*rental.Contract, error)
	CreateContract(ctx context.Context, c rental.Contract, audit types.AuditInfo) (*rental.Contract, error)
	Terminate(ctx context.Context, id string, effective time.Time, audit types.AuditInfo) (*rental.Contract, error)
}

// CreateRequest opens a contract on a unit.
type CreateRequest struct {
	UnitID       string      `json:"unit_id" validate:"required"`
	TenantName   string      `json:"tenant_name" validate:"required,max=200"`
	Kind         rental.Kind `json:"kind" validate:"required,oneof=long_term short_term"`
	StartDate    time.Time   `json:"start_date"`
	RentEndDate  *time.Time  `json:"rent_end_date,omitempty"`
	MonthlyPrice int64       `json:"monthly_price" validate:"gte=0"`
	Currency     string      `json:"currency" validate:"omitempty,len=3"`
	// PaidMonths carries months settled before the contract was entered,
	// in any of the accepted shapes.
	PaidMonths any `json:"paid_months,omitempty"`
}

// Service implements the contract lifecycle: active, then terminated.
type Service struct {
	store           Store
	recorder        event.Recorder
	validate        *validator.Validate
	defaultCurrency string
	log             *zap.Logger
}

// NewService creates a Service. recorder may be nil.
func NewService(s Store, recorder event.Recorder, currency string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if currency == "" {
		currency = "XOF"
	}
	return &Service{
		store:           s,
		recorder:        recorder,
		validate:        validator.New(),
		defaultCurrency: currency,
		log:             logger.Named("lease"),
	}
}

// Create opens an active contract and marks its unit rented.
func (s *Service) Create(ctx context.Context, req CreateRequest, audit types.AuditInfo) (*rental.Contract, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if req.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}
	if req.Kind == rental.KindLongTerm && req.MonthlyPrice <= 0 {
		return nil, fmt.Errorf("%w: monthly price is required for long-term contracts", ErrInvalidInput)
	}
	if req.RentEndDate != nil && req.RentEndDate.Before(req.StartDate) {
		return nil, fmt.Errorf("%w: rent end date precedes start date", ErrInvalidInput)
	}
	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	c, err := s.store.CreateContract(ctx, rental.Contract{
		UnitID:       req.UnitID,
		TenantName:   req.TenantName,
		Kind:         req.Kind,
		StartDate:    req.StartDate,
		RentEndDate:  req.RentEndDate,
		MonthlyPrice: req.MonthlyPrice,
		Currency:     currency,
		PaidMonths:   rental.NewPaidMonths(rental.NormalizePaidMonths(req.PaidMonths)...),
	}, audit)
	if err != nil {
		return nil, err
	}

	s.log.Info("contract created",
		zap.String("contract_id", c.ID),
		zap.String("unit_id", c.UnitID),
		zap.String("kind", string(c.Kind)))
	s.record(ctx, event.NewContractCreated(event.ContractCreatedPayload{
		ContractID:   c.ID,
		UnitID:       c.UnitID,
		AgencyID:     c.AgencyID,
		TenantName:   c.TenantName,
		Kind:         c.Kind,
		StartDate:    c.StartDate,
		MonthlyPrice: types.Money{Amount: c.MonthlyPrice, Currency: c.Currency},
	}))
	return c, nil
}

// Terminate ends an active contract on the effective date and makes its
// unit available again. The payment ledger is left untouched.
func (s *Service) Terminate(ctx context.Context, id string, effective time.Time, audit types.AuditInfo) (*rental.Contract, error) {
	if effective.IsZero() {
		effective = time.Now()
	}
	effective = time.Date(effective.Year(), effective.Month(), effective.Day(), 0, 0, 0, 0, time.UTC)

	current, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rental.ValidateTransition(rental.ValidContractTransitions, string(current.Status), string(rental.StatusTerminated)); err != nil {
		return nil, err
	}

	var c *rental.Contract
	for attempt := 0; attempt < 3; attempt++ {
		c, err = s.store.Terminate(ctx, id, effective, audit)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	var paidThrough string
	if latest, ok := c.PaidMonths.Latest(); ok {
		paidThrough = string(latest)
	}
	s.log.Info("contract terminated",
		zap.String("contract_id", c.ID),
		zap.Time("effective", effective))
	s.record(ctx, event.NewContractTerminated(event.ContractTerminatedPayload{
		ContractID:  c.ID,
		UnitID:      c.UnitID,
		AgencyID:    c.AgencyID,
		EffectiveOn: effective,
		PaidThrough: paidThrough,
		MonthsPaid:  c.PaidMonthsCount,
	}))
	return c, nil
}

func (s *Service) record(ctx context.Context, evt event.DomainEvent) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, evt); err != nil {
		s.log.Error("event recording failed", zap.String("event_type", evt.EventType), zap.Error(err))
	}
}
