// Package httpapi implements the Query API (C8): a read-mostly HTTP
// surface over the alert store, plus a manual-refresh/fetch trigger and a
// Server-Sent Events stream over the event broadcaster.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"capalert/internal/broadcaster"
	"capalert/internal/geo"
	"capalert/internal/janitor"
	"capalert/internal/model"
	"capalert/internal/scheduler"
	"capalert/internal/store"
)

// ParserStatter is the subset of internal/capfeed.Parser the stats handler
// depends on.
type ParserStatter interface {
	Stats() model.ParserStats
}

// Server wires the chi router over the store, scheduler, janitor, and
// broadcaster.
type Server struct {
	router     *chi.Mux
	store      store.Store
	sched      *scheduler.Scheduler
	jan        *janitor.Janitor
	bus        *broadcaster.Broadcaster
	normalizer *geo.Normalizer
	parser     ParserStatter
	log        *slog.Logger
	httpSrv    *http.Server
}

// New builds the Server and registers every route.
func New(st store.Store, sched *scheduler.Scheduler, jan *janitor.Janitor, bus *broadcaster.Broadcaster, normalizer *geo.Normalizer, parser ParserStatter, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	s := &Server{
		router:     r,
		store:      st,
		sched:      sched,
		jan:        jan,
		bus:        bus,
		normalizer: normalizer,
		parser:     parser,
		log:        log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/cap-alerts/active", s.handleListActive)
	s.router.Get("/cap-alerts/stats", s.handleStats)
	s.router.Get("/cap-alerts/fetch", s.handleFetch)
	s.router.Post("/cap-alerts/refresh", s.handleRefresh)
	s.router.Get("/cap-alerts/area/{lat}/{lng}", s.handleFindByPoint)
	s.router.Get("/cap-alerts/severity/{level}", s.handleFindBySeverity)
	s.router.Get("/cap-alerts/{id}", s.handleGetByID)

	s.router.Get("/cap-sources", s.handleListSources)
	s.router.Post("/cap-sources", s.handleCreateSource)
	s.router.Post("/cap-sources/seed", s.handleSeedSources)
	s.router.Get("/cap-sources/{id}", s.handleGetSource)
	s.router.Put("/cap-sources/{id}", s.handleUpdateSource)
	s.router.Delete("/cap-sources/{id}", s.handleDeleteSource)

	s.router.Get("/cap-events/stream", s.handleEventStream)
}

// Start listens and serves, blocking until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("httpapi: listening", "addr", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
