package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/rental"
	"github.com/matthewbaird/immo/internal/types"
)

func TestUpdateContract_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	audit := types.AuditInfo{Actor: "agent-1", Source: "test"}
	u, err := s.CreateUnit(ctx, rental.Unit{AgencyID: "agency-1", Reference: "A-1", Title: "F2"}, audit)
	require.NoError(t, err)
	c, err := s.CreateContract(ctx, rental.Contract{
		UnitID:    u.ID,
		Kind:      rental.KindLongTerm,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:  "XOF",
	}, audit)
	require.NoError(t, err)

	stale := *c
	require.NoError(t, c.ApplyMonths([]rental.MonthKey{"2025-01"}))
	require.NoError(t, s.updateContract(ctx, s.db, c, audit))
	assert.Equal(t, int64(2), c.Version)

	require.NoError(t, stale.ApplyMonths([]rental.MonthKey{"2025-02"}))
	err = s.updateContract(ctx, s.db, &stale, audit)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []rental.MonthKey{"2025-01"}, got.PaidMonths.Keys())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(assert.AnError))
}
