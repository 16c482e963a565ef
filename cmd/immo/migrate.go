package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger and activity tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer l.Close()
		logger.Info("database migrated successfully", zap.String("dialect", cfg.Database.Dialect))
		return nil
	},
}
