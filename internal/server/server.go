// Package server exposes the session to operators over a small JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimdesk/internal/cache"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/session"
)

const maxRequestBytes = 1 << 20

// Controller is the part of the session the API drives
type Controller interface {
	Stage(ctx context.Context, id model.ClaimID) error
	Unstage(ctx context.Context, id model.ClaimID) error
	Discard(ctx context.Context, id model.ClaimID) error
	Undiscard(ctx context.Context, id model.ClaimID) error
	Retry(ctx context.Context, id model.ClaimID) error
	DiscardCollection(ctx context.Context, blockID string) (int, error)
	UpdatePending(ctx context.Context, id model.ClaimID, field model.Field, value string) (model.Claim, error)
	Resend(ctx context.Context, sentID model.ClaimID) (model.Claim, error)
	Dispatch(ctx context.Context) (int, error)
	View(ctx context.Context) (session.View, error)
}

// ResultsReader serves cached published results
type ResultsReader interface {
	Results(target string) (cache.ResultsEntry, bool)
}

// TextSubmitter accepts article text for claim extraction
type TextSubmitter interface {
	Submit(req model.TextBlockRequest) (string, error)
}

// Server serves the control API
type Server struct {
	ctl     Controller
	results ResultsReader
	text    TextSubmitter
	target  string
	logger  zerolog.Logger

	httpServer *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithResults serves GET /api/results from r
func WithResults(r ResultsReader) Option {
	return func(s *Server) { s.results = r }
}

// WithTextSubmitter enables POST /api/text-block
func WithTextSubmitter(t TextSubmitter) Option {
	return func(s *Server) { s.text = t }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server for ctl. target is the session's episode key.
func New(addr, target string, ctl Controller, opts ...Option) *Server {
	s := &Server{ctl: ctl, target: target, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/results", s.handleResults)

	mux.HandleFunc("POST /api/claims/{id}/stage", s.claimAction(Controller.Stage))
	mux.HandleFunc("POST /api/claims/{id}/unstage", s.claimAction(Controller.Unstage))
	mux.HandleFunc("POST /api/claims/{id}/discard", s.claimAction(Controller.Discard))
	mux.HandleFunc("POST /api/claims/{id}/undiscard", s.claimAction(Controller.Undiscard))
	mux.HandleFunc("POST /api/claims/{id}/retry", s.claimAction(Controller.Retry))
	mux.HandleFunc("PATCH /api/claims/{id}", s.handleUpdate)

	mux.HandleFunc("POST /api/blocks/{id}/discard", s.handleDiscardBlock)
	mux.HandleFunc("POST /api/sent/{id}/resend", s.handleResend)
	mux.HandleFunc("POST /api/dispatch", s.handleDispatch)

	if s.text != nil {
		mux.HandleFunc("POST /api/text-block", s.handleTextBlock)
	}

	return chain(mux, recovery(s.logger), requestLogger(s.logger))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("control API listening")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-serveErr
	s.logger.Info().Msg("control API stopped")
	return nil
}
