package rental

import "time"

const (
	// CalendarWindow is the number of months generated for a contract.
	CalendarWindow = 36
	// CalendarPageSize is the number of months shown per page.
	CalendarPageSize = 12
)

// MonthSelection is one month of the calendar window as shown to an agent.
type MonthSelection struct {
	Date     time.Time `json:"date"`
	Key      MonthKey  `json:"key"`
	Selected bool      `json:"selected"`
	Paid     bool      `json:"paid"`
}

// GenerateCalendar builds the CalendarWindow months starting at the later of
// the contract start month and the current month.
//
// A month is pre-selected when it lies between the current month and the
// month of the rental end date, bounds included. A zero end date selects
// nothing.
func GenerateCalendar(start, end time.Time, paid PaidMonths, now time.Time) []MonthSelection {
	startMonth := StartOfMonth(civil(start))
	nowMonth := StartOfMonth(civil(now))
	first := startMonth
	if nowMonth.After(first) {
		first = nowMonth
	}

	var endDay time.Time
	if !end.IsZero() {
		endDay = civil(end)
	}

	months := make([]MonthSelection, CalendarWindow)
	for i := range months {
		m := first.AddDate(0, i, 0)
		key := KeyOf(m)
		months[i] = MonthSelection{
			Date:     m,
			Key:      key,
			Paid:     paid.Has(key),
			Selected: coveredByRent(m, nowMonth, endDay),
		}
	}
	return months
}

func coveredByRent(month, nowMonth, end time.Time) bool {
	if end.IsZero() {
		return false
	}
	if sameMonth(month, nowMonth) && !month.After(end) {
		return true
	}
	if sameMonth(month, end) {
		return true
	}
	return month.After(nowMonth) && month.Before(end)
}

// PageCount returns the number of CalendarPageSize pages needed for n months.
func PageCount(n int) int {
	return (n + CalendarPageSize - 1) / CalendarPageSize
}

// Page returns the months of the given zero-based page. Out-of-range pages
// are clamped to the nearest valid page.
func Page(months []MonthSelection, page int) ([]MonthSelection, int) {
	pages := PageCount(len(months))
	if pages == 0 {
		return nil, 0
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	lo := page * CalendarPageSize
	hi := lo + CalendarPageSize
	if hi > len(months) {
		hi = len(months)
	}
	return months[lo:hi], page
}

// IndexOf returns the position of key in months, or -1.
func IndexOf(months []MonthSelection, key MonthKey) int {
	for i, m := range months {
		if m.Key == key {
			return i
		}
	}
	return -1
}
