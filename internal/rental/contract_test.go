package rental

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContract_ApplyMonths(t *testing.T) {
	c := &Contract{
		Kind:       KindLongTerm,
		Status:     StatusActive,
		StartDate:  date(2025, 1, 15),
		PaidMonths: NewPaidMonths("2025-01"),
	}

	require.NoError(t, c.ApplyMonths([]MonthKey{"2025-02", "2025-03", "2025-04"}))

	assert.Equal(t, []MonthKey{"2025-01", "2025-02", "2025-03", "2025-04"}, c.PaidMonths.Keys())
	assert.Equal(t, 4, c.PaidMonthsCount)
	assert.True(t, c.IsPaid)
	require.NotNil(t, c.RentEndDate)
	assert.Equal(t, date(2025, 4, 30), *c.RentEndDate)
}

func TestContract_ApplyMonthsKeepsLatestEnd(t *testing.T) {
	c := &Contract{PaidMonths: NewPaidMonths("2025-06")}
	require.NoError(t, c.ApplyMonths([]MonthKey{"2025-02"}))
	assert.Equal(t, date(2025, 6, 30), *c.RentEndDate)
}

func TestContract_ApplyMonthsRejectsEmptyAndInvalid(t *testing.T) {
	c := &Contract{PaidMonths: NewPaidMonths("2025-01")}

	assert.ErrorIs(t, c.ApplyMonths(nil), ErrEmptySelection)
	assert.Error(t, c.ApplyMonths([]MonthKey{"2025-02", "nope"}))

	assert.Equal(t, []MonthKey{"2025-01"}, c.PaidMonths.Keys())
	assert.False(t, c.IsPaid)
	assert.Nil(t, c.RentEndDate)
}

func TestContract_CanPayMonths(t *testing.T) {
	c := &Contract{Kind: KindLongTerm, Status: StatusActive}
	assert.NoError(t, c.CanPayMonths())

	c.Kind = KindShortTerm
	assert.ErrorIs(t, c.CanPayMonths(), ErrNotLongTerm)

	c.Kind = KindLongTerm
	c.Status = StatusTerminated
	assert.ErrorIs(t, c.CanPayMonths(), ErrNotActive)
}

func TestContract_CalendarUsesRentEnd(t *testing.T) {
	end := date(2025, 2, 28)
	c := &Contract{StartDate: date(2025, 1, 1), RentEndDate: &end, PaidMonths: NewPaidMonths("2025-01")}

	months := c.Calendar(date(2025, 1, 10))
	assert.True(t, months[0].Paid)
	assert.Equal(t, []MonthKey{"2025-02"}, SelectedUnpaid(months))
}

func TestPaymentEntry_Covers(t *testing.T) {
	e := &PaymentEntry{Months: []MonthKey{"2025-01", "2025-02"}}
	assert.True(t, e.Covers("2025-02"))
	assert.False(t, e.Covers("2025-03"))
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(ValidContractTransitions, "active", "terminated"))
	assert.ErrorIs(t, ValidateTransition(ValidContractTransitions, "terminated", "active"), ErrInvalidTransition)
	assert.ErrorIs(t, ValidateTransition(ValidContractTransitions, "draft", "active"), ErrInvalidTransition)
}
