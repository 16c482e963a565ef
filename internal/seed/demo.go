// Package seed loads demo units and contracts into an empty ledger.
package seed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/lease"
	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

// Store is the unit side of the ledger.
type Store interface {
	ListUnits(ctx context.Context, f store.UnitFilter) ([]*rental.Unit, error)
	CreateUnit(ctx context.Context, u rental.Unit, audit types.AuditInfo) (*rental.Unit, error)
}

// Leases opens contracts.
type Leases interface {
	Create(ctx context.Context, req lease.CreateRequest, audit types.AuditInfo) (*rental.Contract, error)
}

type demoContract struct {
	reference, title string
	tenant           string
	kind             rental.Kind
	monthsAgo        int
	price            int64
	paidMonths       int
}

var demo = []demoContract{
	{"A-101", "Appartement F3 Mermoz", "Awa Diallo", rental.KindLongTerm, 4, 150000, 2},
	{"A-102", "Studio Plateau", "Moussa Ndiaye", rental.KindLongTerm, 0, 85000, 0},
	{"V-201", "Villa Saly", "Fatou Sow", rental.KindShortTerm, 0, 0, 0},
}

// Demo creates a handful of units and contracts for agencyID. If the agency
// already has units it does nothing and returns 0.
func Demo(ctx context.Context, s Store, leases Leases, agencyID string, now time.Time, logger *zap.Logger) (int, error) {
	existing, err := s.ListUnits(ctx, store.UnitFilter{AgencyID: agencyID, Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("checking units: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("agency already seeded, skipping", zap.String("agency_id", agencyID))
		return 0, nil
	}

	audit := types.AuditInfo{Actor: "system", Source: "import"}
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	created := 0
	for _, d := range demo {
		unit, err := s.CreateUnit(ctx, rental.Unit{
			AgencyID:  agencyID,
			Reference: d.reference,
			Title:     d.title,
		}, audit)
		if err != nil {
			return created, fmt.Errorf("creating unit %s: %w", d.reference, err)
		}

		start := thisMonth.AddDate(0, -d.monthsAgo, 0)
		// Months settled before the ledger existed arrive as plain strings.
		var paid []string
		for i := 0; i < d.paidMonths; i++ {
			paid = append(paid, string(rental.KeyOf(start.AddDate(0, i, 0))))
		}
		req := lease.CreateRequest{
			UnitID:       unit.ID,
			TenantName:   d.tenant,
			Kind:         d.kind,
			StartDate:    start,
			MonthlyPrice: d.price,
			PaidMonths:   paid,
		}
		if d.paidMonths > 0 {
			end := rental.EndOfMonth(start.AddDate(0, d.paidMonths-1, 0))
			req.RentEndDate = &end
		}
		if _, err := leases.Create(ctx, req, audit); err != nil {
			return created, fmt.Errorf("creating contract on %s: %w", d.reference, err)
		}
		created++
	}
	logger.Info("demo data seeded", zap.String("agency_id", agencyID), zap.Int("contracts", created))
	return created, nil
}
