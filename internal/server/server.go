// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/activity"
	"github.com/matthewbaird/immo/internal/desk"
	"github.com/matthewbaird/immo/internal/handler"
	"github.com/matthewbaird/immo/internal/lease"
	"github.com/matthewbaird/immo/internal/payment"
	"github.com/matthewbaird/immo/internal/store"
)

// Config holds the services the HTTP API is built on.
type Config struct {
	Addr     string
	Store    *store.SQLStore
	Activity activity.Store
	Leases   *lease.Service
	Payments *payment.Committer
	Desk     *desk.Handler
	Logger   *zap.Logger
}

// NewRouter registers every route on a chi router.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Logging(logger.Named("http")))
	r.Use(handler.Recovery(logger))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	uh := handler.NewUnitHandler(cfg.Store)
	ch := handler.NewContractHandler(cfg.Store, cfg.Leases)
	ph := handler.NewPaymentHandler(cfg.Store, cfg.Payments)
	ah := handler.NewActivityHandler(cfg.Activity)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/units", uh.CreateUnit)
		r.Get("/units", uh.ListUnits)
		r.Get("/units/{id}", uh.GetUnit)

		r.Post("/contracts", ch.CreateContract)
		r.Get("/contracts", ch.ListContracts)
		r.Route("/contracts/{id}", func(r chi.Router) {
			r.Get("/", ch.GetContract)
			r.Post("/terminate", ch.TerminateContract)
			r.Get("/calendar", ch.GetCalendar)
			r.Post("/calendar/toggle", ch.ToggleMonth)
			r.Post("/payments", ph.CommitPayment)
			r.Get("/payments", ph.ListPayments)
			r.Get("/payments/months/{month}", ph.GetMonthPayment)
			r.Post("/stay-payment", ph.MarkStayPaid)
			r.Get("/activity", ah.GetContractActivity)
			r.Get("/activity/summary", ah.GetContractSummary)
		})

		r.Get("/activity/entity/{entity_type}/{entity_id}", ah.GetEntityActivity)
		r.Post("/activity/search", ah.SearchActivity)

		if cfg.Desk != nil {
			r.Get("/desk/ws", cfg.Desk.ServeHTTP)
		}
	})
	return r
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
