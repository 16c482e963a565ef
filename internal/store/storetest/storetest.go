// Package storetest opens throwaway in-memory ledgers for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/store"
	"github.com/matthewbaird/immo/internal/types"
)

// New returns a migrated store backed by a private in-memory SQLite
// database that is closed when the test ends.
func New(t testing.TB) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	s, err := store.Open(ctx, "sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

// Audit is the audit context used by fixtures.
func Audit() types.AuditInfo {
	return types.AuditInfo{Actor: "agent-1", Source: "test"}
}

// LongTerm creates a unit and an active monthly contract on it.
func LongTerm(t testing.TB, s *store.SQLStore, start time.Time, price int64, paid ...rental.MonthKey) *rental.Contract {
	t.Helper()
	return contract(t, s, rental.KindLongTerm, start, price, paid...)
}

// ShortTerm creates a unit and an active single-stay contract on it.
func ShortTerm(t testing.TB, s *store.SQLStore, start time.Time, price int64) *rental.Contract {
	t.Helper()
	return contract(t, s, rental.KindShortTerm, start, price)
}

func contract(t testing.TB, s *store.SQLStore, kind rental.Kind, start time.Time, price int64, paid ...rental.MonthKey) *rental.Contract {
	ctx := context.Background()
	unit, err := s.CreateUnit(ctx, rental.Unit{
		AgencyID:  "agency-1",
		Reference: "A-" + uuid.NewString()[:8],
		Title:     "Appartement F3",
	}, Audit())
	require.NoError(t, err)

	c, err := s.CreateContract(ctx, rental.Contract{
		UnitID:       unit.ID,
		TenantName:   "Awa Diallo",
		Kind:         kind,
		StartDate:    start,
		MonthlyPrice: price,
		Currency:     "XOF",
		PaidMonths:   rental.NewPaidMonths(paid...),
	}, Audit())
	require.NoError(t, err)
	return c
}
