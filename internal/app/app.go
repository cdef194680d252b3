// Package app wires a claimdesk session to its feeds, dispatcher and
// control API.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimdesk/internal/cache"
	"github.com/ppiankov/claimdesk/internal/dispatch"
	"github.com/ppiankov/claimdesk/internal/extract"
	"github.com/ppiankov/claimdesk/internal/feed"
	"github.com/ppiankov/claimdesk/internal/llm"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/poller"
	"github.com/ppiankov/claimdesk/internal/server"
	"github.com/ppiankov/claimdesk/internal/session"
	"github.com/ppiankov/claimdesk/internal/util"
	"github.com/ppiankov/claimdesk/internal/worker"
)

// App owns every long-running component of one session
type App struct {
	cfg    *model.Config
	logger zerolog.Logger

	httpClient *http.Client
	feed       *feed.Client
	session    *session.Session
	results    *cache.ResultsCache
	memory     *cache.MemoryCache
	provider   llm.Provider
	local      *extract.LocalSource
	server     *server.Server
	listener   net.Listener
}

// Option configures an App
type Option func(*App)

// WithListener serves the control API on ln instead of cfg.Server.Addr
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// New builds the application from cfg
func New(cfg *model.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	a.httpClient = util.NewHTTPClient(2*cfg.Backend.SubmitTimeout, cfg.Backend.HTTPProxy, cfg.Backend.HTTPSProxy)
	a.feed = feed.NewClient(cfg.Backend, cfg.Poll, a.httpClient, logging.Component(logger, "feed"))

	limiter := worker.NewLimiter(cfg.Dispatch.RatePerSecond, cfg.Dispatch.Burst)
	executor := dispatch.NewExecutor(
		dispatch.NewClient(cfg.Backend, a.httpClient, limiter),
		cfg.Session.Target,
		cfg.Dispatch,
		dispatch.WithLogger(logging.Component(logger, "dispatch")),
	)

	var backend cache.Cache = cache.NopCache{}
	if cfg.Cache.Enabled {
		a.memory = cache.NewMemoryCache(cfg.Cache.TTL)
		backend = a.memory
	}
	a.results = cache.NewResultsCache(backend, cfg.Cache.TTL, logging.Component(logger, "cache"))

	a.session = session.New(executor,
		session.WithLogger(logging.Component(logger, "session")),
		session.WithDispatchHook(a.onDispatch),
	)

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Extract))
	if err != nil {
		return nil, fmt.Errorf("extraction provider: %w", err)
	}
	serverOpts := []server.Option{
		server.WithResults(a.results),
		server.WithLogger(logging.Component(logger, "server")),
	}
	switch {
	case provider != nil:
		a.provider = provider
		a.local = extract.NewLocalSource(provider,
			extract.WithLogger(logging.Component(logger, "extract")),
			extract.WithMaxTokens(cfg.Extract.MaxTokens),
			extract.WithQueueDepth(cfg.Extract.QueueDepth),
		)
		serverOpts = append(serverOpts, server.WithTextSubmitter(a.local))
	case cfg.Extract.Enabled:
		logger.Warn().Msg("extraction enabled without an API key, text blocks are disabled")
	}

	a.server = server.New(cfg.Server.Addr, cfg.Session.Target, a.session, serverOpts...)
	return a, nil
}

// Session returns the session driven by the app
func (a *App) Session() *session.Session {
	return a.session
}

// Results returns the published results cache
func (a *App) Results() *cache.ResultsCache {
	return a.results
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. All components are stopped before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.httpClient.CloseIdleConnections()

	g, ctx := errgroup.WithContext(ctx)
	target := a.cfg.Session.Target

	var discovery feed.DiscoverySource = feed.HTTPDiscovery{Client: a.feed}
	if a.local != nil {
		discovery = feed.Multi{discovery, a.local}
		g.Go(func() error { return a.local.Run(ctx) })
		g.Go(func() error {
			a.checkProvider(ctx)
			return nil
		})
	}

	discoveryPoller := poller.New("discovery", a.cfg.Poll.DiscoveryInterval, a.cfg.Poll.Timeout,
		poller.DiscoveryCycle(ctx, discovery, a.session), a.logger)
	resultsPoller := poller.New("results", a.cfg.Poll.ResultsInterval, a.cfg.Poll.Timeout,
		poller.ResultsCycle(ctx, feed.HTTPResults{Client: a.feed, Target: target}, target, a.results, a.session), a.logger)

	if a.memory != nil {
		g.Go(func() error { return a.memory.Run(ctx, a.cfg.Cache.CleanupInterval) })
	}
	g.Go(func() error { return a.session.Run(ctx) })
	g.Go(func() error { return discoveryPoller.Run(ctx) })
	g.Go(func() error { return resultsPoller.Run(ctx) })
	g.Go(func() error {
		if a.listener != nil {
			return a.server.Serve(ctx, a.listener)
		}
		return a.server.ListenAndServe(ctx)
	})

	a.logger.Info().
		Str("target", target).
		Str("backend", a.cfg.Backend.BaseURL).
		Bool("extraction", a.local != nil).
		Msg("claimdesk running")

	err := g.Wait()
	a.logger.Info().Msg("claimdesk stopped")
	return err
}

// checkProvider warns early when the extraction provider is unreachable
func (a *App) checkProvider(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if !a.provider.IsAvailable(ctx) && ctx.Err() == nil {
		a.logger.Warn().Str("provider", a.provider.Name()).Msg("extraction provider unreachable, text blocks will fail")
	}
}

// onDispatch runs on the session loop after each finished dispatch
func (a *App) onDispatch(r dispatch.Report) {
	event := a.logger.Info()
	if r.Failed() > 0 {
		event = a.logger.Warn().AnErr("error", r.Err())
	}
	event.
		Int("sent", r.Succeeded()).
		Int("failed", r.Failed()).
		Dur("took", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)).
		Msg("dispatch finished")
}
