package main

import (
	"github.com/spf13/cobra"

	"github.com/matthewbaird/immo/internal/worker"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the overdue rent sweep once",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer l.Close()

		res, err := worker.NewOverdueSweeper(l.store, l.activity, l.recorder, logger).Sweep(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("scanned %d, flagged %d, already flagged %d\n", res.Scanned, res.Flagged, res.Skipped)
		return nil
	},
}
