// Command immo runs the rental payment ledger: the HTTP API and payment
// desk, schema migration, the overdue sweep and a terminal calendar view.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/activity"
	"github.com/matthewbaird/immo/internal/config"
	"github.com/matthewbaird/immo/internal/event"
	"github.com/matthewbaird/immo/internal/store"
)

var (
	configPath string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "immo",
	Short:         "Rental payment ledger for property agencies",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if logger, err = cfg.NewLogger(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultFile+" when present)")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, calendarCmd, seedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "immo:", err)
		os.Exit(1)
	}
}

// ledger is the storage every command works on.
type ledger struct {
	store    *store.SQLStore
	activity *activity.SQLStore
	recorder *event.ActivityRecorder
}

// openLedger connects to the configured database and makes sure both the
// ledger and activity tables exist.
func openLedger(ctx context.Context) (*ledger, error) {
	s, err := store.Open(ctx, cfg.Database.Dialect, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	acts := activity.NewSQLStore(s.DB(), s.Dialect())
	if err := acts.CreateTable(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return &ledger{
		store:    s,
		activity: acts,
		recorder: event.NewActivityRecorder(acts),
	}, nil
}

func (l *ledger) Close() error { return l.store.Close() }
