// Package locale renders months, dates and amounts the way French-speaking
// agencies read them.
package locale

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// golang.org/x/text ships number formatting but no calendar names.
var months = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Formatter formats values for one language. Only French month names are
// bundled; other tags fall back to them but group digits their own way.
// Printers and casers are not safe for concurrent use, so each call builds
// its own.
type Formatter struct {
	tag language.Tag
}

// New returns a Formatter for tag.
func New(tag language.Tag) *Formatter {
	return &Formatter{tag: tag}
}

// French is the default formatter.
var French = New(language.French)

// MonthName returns the lowercase name of m.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return months[m-1]
}

// MonthLabel renders t as "Janvier 2025".
func (f *Formatter) MonthLabel(t time.Time) string {
	return cases.Title(f.tag).String(MonthName(t.Month())) + " " + fmt.Sprint(t.Year())
}

// FormatDate renders t as "15 janvier 2025".
func (f *Formatter) FormatDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), MonthName(t.Month()), t.Year())
}

// FormatAmount renders an amount with grouped digits followed by the
// currency code: "450 000 XOF". Groups are separated by a no-break space.
func (f *Formatter) FormatAmount(amount int64, currency string) string {
	s := message.NewPrinter(f.tag).Sprintf("%d", amount)
	s = strings.ReplaceAll(s, "\u202f", "\u00a0")
	if currency == "" {
		return s
	}
	return s + " " + currency
}

// MonthLabel renders t with the French formatter.
func MonthLabel(t time.Time) string { return French.MonthLabel(t) }

// FormatDate renders t with the French formatter.
func FormatDate(t time.Time) string { return French.FormatDate(t) }

// FormatAmount renders an amount with the French formatter.
func FormatAmount(amount int64, currency string) string { return French.FormatAmount(amount, currency) }
