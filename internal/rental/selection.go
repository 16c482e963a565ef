package rental

import (
	"errors"
	"fmt"
)

var (
	// ErrMonthPaid is returned when a paid month is toggled. Paid months are
	// read-only; callers show the payment that settled them instead.
	ErrMonthPaid = errors.New("month already paid")
	// ErrIndexOutOfRange is returned for a click outside the window.
	ErrIndexOutOfRange = errors.New("month index out of range")
	// ErrOutsideWindow is returned when a committed month is not part of the
	// generated window.
	ErrOutsideWindow = errors.New("month outside the payable window")
	// ErrSelectionGap is returned when committed months would leave an unpaid
	// month before them.
	ErrSelectionGap = errors.New("selection must start at the first unpaid month and leave no gap")
)

// Selection is the outcome of a toggle: the new window plus the derived
// count and amount due for the selected unpaid months.
type Selection struct {
	Months []MonthSelection `json:"months"`
	Count  int              `json:"count"`
	Amount int64            `json:"amount"`
}

// Toggle applies a click on months[index] and returns the new selection.
// The input slice is not modified.
//
// The selection is always the contiguous range [anchor, cursor] minus paid
// months. Clicking a selected month moves the cursor just before it, which
// drops that month and everything after it. Clicking an unselected month
// extends the range from the earliest selected month (or the first month)
// to the click.
func Toggle(months []MonthSelection, index int, monthlyPrice int64) (Selection, error) {
	if index < 0 || index >= len(months) {
		return Selection{}, ErrIndexOutOfRange
	}
	if months[index].Paid {
		return Selection{}, ErrMonthPaid
	}

	out := make([]MonthSelection, len(months))
	copy(out, months)

	if out[index].Selected {
		for i := index; i < len(out); i++ {
			if !out[i].Paid {
				out[i].Selected = false
			}
		}
		return Summarize(out, monthlyPrice), nil
	}

	anchor := firstSelected(out)
	if anchor < 0 {
		anchor = 0
	}
	lo, hi := anchor, index
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi; i++ {
		if !out[i].Paid {
			out[i].Selected = true
		}
	}
	return Summarize(out, monthlyPrice), nil
}

// Summarize computes the count and amount of an existing window.
func Summarize(months []MonthSelection, monthlyPrice int64) Selection {
	n := len(SelectedUnpaid(months))
	return Selection{
		Months: months,
		Count:  n,
		Amount: int64(n) * monthlyPrice,
	}
}

// SelectedUnpaid returns the keys of months that are selected and not yet
// paid, in window order.
func SelectedUnpaid(months []MonthSelection) []MonthKey {
	var keys []MonthKey
	for _, m := range months {
		if m.Selected && !m.Paid {
			keys = append(keys, m.Key)
		}
	}
	return keys
}

// ApplySelected replaces the selection of a freshly generated window with
// keys, as sent back by a stateless client. Paid months and keys outside the
// window are ignored.
func ApplySelected(months []MonthSelection, keys []MonthKey) []MonthSelection {
	want := make(map[MonthKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make([]MonthSelection, len(months))
	for i, m := range months {
		if !m.Paid {
			m.Selected = want[m.Key]
		}
		out[i] = m
	}
	return out
}

// Contiguous reports whether the selected unpaid months form one unbroken
// run, paid months being allowed inside it.
func Contiguous(months []MonthSelection) bool {
	state := 0 // 0: before the run, 1: inside, 2: after
	for _, m := range months {
		if m.Paid {
			continue
		}
		switch {
		case m.Selected && state == 0:
			state = 1
		case m.Selected && state == 2:
			return false
		case !m.Selected && state == 1:
			state = 2
		}
	}
	return true
}

// ValidateSelection checks keys sent for payment against a freshly generated
// window and returns the unpaid ones in window order. Every key must be in
// the window. Keys of paid months are ignored, and the remaining months must
// be a run starting at the first unpaid month, which is the only shape
// Toggle produces.
func ValidateSelection(months []MonthSelection, keys []MonthKey) ([]MonthKey, error) {
	for _, k := range keys {
		if IndexOf(months, k) < 0 {
			return nil, fmt.Errorf("%w: %s", ErrOutsideWindow, k)
		}
	}
	sel := ApplySelected(months, keys)
	fresh := SelectedUnpaid(sel)
	if len(fresh) == 0 {
		return nil, ErrEmptySelection
	}
	if !Contiguous(sel) {
		return nil, ErrSelectionGap
	}
	for _, m := range sel {
		if m.Paid {
			continue
		}
		if !m.Selected {
			return nil, ErrSelectionGap
		}
		break
	}
	return fresh, nil
}

func firstSelected(months []MonthSelection) int {
	for i, m := range months {
		if m.Selected {
			return i
		}
	}
	return -1
}
