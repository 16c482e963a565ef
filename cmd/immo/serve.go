package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/desk"
	"github.com/matthewbaird/immo/internal/eventbus"
	"github.com/matthewbaird/immo/internal/lease"
	"github.com/matthewbaird/immo/internal/payment"
	"github.com/matthewbaird/immo/internal/server"
	"github.com/matthewbaird/immo/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the payment desk and the overdue scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer l.Close()

		payments := payment.NewCommitter(l.store, l.recorder, logger)
		leases := lease.NewService(l.store, l.recorder, cfg.Currency, logger)

		sessions := desk.NewManager(cfg.Desk.MaxAge(), cfg.Desk.IdleTimeout())
		go sessions.Run(ctx, time.Minute)
		deskHandler := desk.NewHandler(sessions, l.store, payments, logger)

		bus := eventbus.New(256, logger)
		bus.Subscribe("log", eventbus.NewLogConsumer(logger))
		bus.Subscribe("desk", deskHandler)
		l.recorder.SetPublisher(bus)
		bus.Start(ctx)
		defer bus.Stop()

		sweeper := worker.NewOverdueSweeper(l.store, l.activity, l.recorder, logger)
		sched, err := worker.NewScheduler(cfg.OverdueSchedule, sweeper, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()

		logger.Info("immo starting",
			zap.String("dialect", cfg.Database.Dialect),
			zap.String("currency", cfg.Currency))
		return server.Run(ctx, server.Config{
			Addr:     cfg.Addr(),
			Store:    l.store,
			Activity: l.activity,
			Leases:   leases,
			Payments: payments,
			Desk:     deskHandler,
			Logger:   logger,
		})
	},
}
