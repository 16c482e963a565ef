package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/immo/internal/lease"
	"github.com/matthewbaird/immo/internal/seed"
)

var seedAgency string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo units and contracts into an empty agency",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer l.Close()

		leases := lease.NewService(l.store, l.recorder, cfg.Currency, logger)
		n, err := seed.Demo(cmd.Context(), l.store, leases, seedAgency, time.Now(), logger)
		if err != nil {
			return err
		}
		cmd.Printf("%d contracts created\n", n)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAgency, "agency", "demo", "agency to seed")
}
