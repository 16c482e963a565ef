package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/immo/internal/desk"
	"github.com/matthewbaird/immo/internal/locale"
	"github.com/matthewbaird/immo/internal/rental"
)

var calendarPage int

var calendarCmd = &cobra.Command{
	Use:   "calendar <contract-id>",
	Short: "Print a contract's month calendar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer l.Close()

		c, err := l.store.GetContract(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printCalendar(cmd.OutOrStdout(), c, time.Now(), calendarPage)
		return nil
	},
}

func init() {
	calendarCmd.Flags().IntVarP(&calendarPage, "page", "p", 0, "zero-based page of 12 months")
}

func printCalendar(w io.Writer, c *rental.Contract, now time.Time, page int) {
	data := desk.NewCalendarData(c.Calendar(now), page, c.MonthlyPrice, c.Currency)
	fmt.Fprintf(w, "%s  (%s)  page %d/%d\n", c.TenantName, c.Kind, data.Page+1, data.Pages)
	if c.RentEndDate != nil {
		fmt.Fprintf(w, "loyer payé jusqu'au %s\n", locale.FormatDate(*c.RentEndDate))
	}
	for _, m := range data.Months {
		mark := "[ ]"
		switch {
		case m.Paid:
			mark = "[P]"
		case m.Selected:
			mark = "[x]"
		}
		fmt.Fprintf(w, "%3d %s %s\n", m.Index, mark, m.Label)
	}
	fmt.Fprintf(w, "%d mois à payer : %s\n", data.Count, data.AmountLabel)
}
