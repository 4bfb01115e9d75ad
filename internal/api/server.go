// Package api exposes the survey pipeline over a local HTTP surface: photo
// capture, state mutations, submission and diagnostics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/precoposto/precoposto/internal/blobstore"
	"github.com/precoposto/precoposto/internal/capture"
	"github.com/precoposto/precoposto/internal/state"
	"github.com/precoposto/precoposto/internal/submit"
)

// Server is the local HTTP front of the service.
type Server struct {
	state     *state.Service
	blobs     *blobstore.Store
	orch      *capture.Orchestrator
	submitter *submit.Submitter
	addr      string
	log       zerolog.Logger
}

// NewServer wires the HTTP surface.
func NewServer(st *state.Service, blobs *blobstore.Store, orch *capture.Orchestrator, submitter *submit.Submitter, addr string, log zerolog.Logger) *Server {
	return &Server{
		state:     st,
		blobs:     blobs,
		orch:      orch,
		submitter: submitter,
		addr:      addr,
		log:       log,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleGetState)
		r.Put("/config/competitors", s.handleSetCompetitors)
		r.Put("/config/webhook", s.handleSetWebhook)
		r.Put("/stations/{station}/name", s.handleRenameStation)
		r.Put("/records/{period}/{station}", s.handleUpdateRecord)

		r.Post("/photos/{period}/{station}", s.handleCapture)
		r.Get("/photos/{period}/{station}", s.handleHydrate)
		r.Delete("/photos/{period}/{station}", s.handleClearPhoto)

		r.Delete("/periods/{period}", s.handleClearPeriod)
		r.Post("/submit/{period}", s.handleSubmit)
		r.Get("/storage", s.handleStorageUsage)
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
