package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matthewbaird/immo/internal/rental"
)

func TestPrintCalendar(t *testing.T) {
	end := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	c := &rental.Contract{
		TenantName:   "Awa Diallo",
		Kind:         rental.KindLongTerm,
		StartDate:    time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		RentEndDate:  &end,
		MonthlyPrice: 150000,
		Currency:     "XOF",
		PaidMonths:   rental.NewPaidMonths("2025-01"),
	}

	var buf bytes.Buffer
	printCalendar(&buf, c, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), 0)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Equal(t, "Awa Diallo  (long_term)  page 1/3", lines[0])
	assert.Equal(t, "loyer payé jusqu'au 28 février 2025", lines[1])
	assert.Equal(t, "  0 [P] Janvier 2025", lines[2])
	assert.Equal(t, "  1 [x] Février 2025", lines[3])
	assert.Equal(t, "  2 [ ] Mars 2025", lines[4])
	assert.Contains(t, lines[len(lines)-1], "1 mois à payer : 150")
	assert.Contains(t, lines[len(lines)-1], "XOF")
}
