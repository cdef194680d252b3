// Package session owns the editorial state of one triage session.
//
// All transitions, snapshot deliveries, result links and reads are funneled
// through a single-writer loop (Run). Callers on any goroutine submit
// commands and wait for their reply, so a poll arriving mid-transition can
// never interleave with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimdesk/internal/dispatch"
	"github.com/ppiankov/claimdesk/internal/model"
)

// Dispatcher submits frozen staged claims and reports one outcome per claim
type Dispatcher interface {
	Execute(ctx context.Context, claims []model.Claim) dispatch.Report
}

type command struct {
	fn    func(*store) error
	reply chan error
}

// Session is the serialized entry point to the editorial partitions
type Session struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
	st         *store

	cmds      chan command
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool

	// Set by Run before the loop starts; read only from the loop
	runCtx     context.Context
	dispatches sync.WaitGroup
	onDispatch func(dispatch.Report)
}

// Option configures a Session
type Option func(*Session)

// WithIDGenerator sets the token source for resend identities
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Session) { s.st.ids = gen }
}

// WithClock sets the time source for staging, discard and resend stamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.st.now = now }
}

// WithLogger sets the session logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithDispatchHook registers fn to run on the loop after every finished
// dispatch has been applied
func WithDispatchHook(fn func(dispatch.Report)) Option {
	return func(s *Session) { s.onDispatch = fn }
}

// New creates a session that dispatches through d. Run must be started
// before any other method returns.
func New(d Dispatcher, opts ...Option) *Session {
	s := &Session{
		dispatcher: d,
		logger:     zerolog.Nop(),
		st:         newStore(UUIDv7Generator{}, time.Now),
		cmds:       make(chan command),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes commands until ctx is cancelled. It must be called from
// exactly one goroutine. On return every in-flight dispatch has been
// cancelled and awaited, and later calls fail with ErrSessionClosed.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session: run called twice")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.logger.Info().Msg("session started")

	for {
		select {
		case <-ctx.Done():
			s.closeOnce.Do(func() { close(s.done) })
			cancel()
			s.dispatches.Wait()
			s.logger.Info().Msg("session stopped")
			return nil
		case cmd := <-s.cmds:
			cmd.reply <- cmd.fn(s.st)
			if s.logger.GetLevel() <= zerolog.DebugLevel {
				if err := s.st.verify(); err != nil {
					s.logger.Error().Err(err).Msg("partition invariant violated")
				}
			}
		}
	}
}

// Done is closed once the session stops accepting commands
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// do runs fn on the loop and waits for its result
func (s *Session) do(ctx context.Context, fn func(*store) error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- command{fn: fn, reply: reply}:
	case <-s.done:
		return model.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// The loop replies before it can observe teardown
	return <-reply
}

// Stage moves a pending claim to Staged, freezing its edited values
func (s *Session) Stage(ctx context.Context, id model.ClaimID) error {
	return s.do(ctx, func(st *store) error { return st.stage(id) })
}

// Unstage returns a staged claim to Pending with its values still editable
func (s *Session) Unstage(ctx context.Context, id model.ClaimID) error {
	return s.do(ctx, func(st *store) error { return st.unstage(id) })
}

// Discard rejects a pending claim
func (s *Session) Discard(ctx context.Context, id model.ClaimID) error {
	return s.do(ctx, func(st *store) error { return st.discard(id) })
}

// DiscardCollection rejects every pending snapshot claim of a block and
// returns how many were discarded
func (s *Session) DiscardCollection(ctx context.Context, blockID string) (int, error) {
	var n int
	err := s.do(ctx, func(st *store) error {
		var err error
		n, err = st.discardCollection(blockID)
		return err
	})
	return n, err
}

// Undiscard returns a discarded claim to Pending
func (s *Session) Undiscard(ctx context.Context, id model.ClaimID) error {
	return s.do(ctx, func(st *store) error { return st.undiscard(id) })
}

// UpdatePending edits one field of a pending claim and returns the claim
// as it now appears in the projection
func (s *Session) UpdatePending(ctx context.Context, id model.ClaimID, field model.Field, value string) (model.Claim, error) {
	var c model.Claim
	err := s.do(ctx, func(st *store) error {
		var err error
		c, err = st.updatePending(id, field, value)
		return err
	})
	return c, err
}

// Resend manufactures a new pending claim that will overwrite the result
// published for a sent claim
func (s *Session) Resend(ctx context.Context, sentID model.ClaimID) (model.Claim, error) {
	var c model.Claim
	err := s.do(ctx, func(st *store) error {
		var err error
		c, err = st.resend(sentID)
		return err
	})
	if err == nil {
		s.logger.Info().Str("resend_of", string(sentID)).Str("claim_id", string(c.ID)).Msg("resend opened")
	}
	return c, err
}

// Dispatch starts sending every staged claim that is not in flight and not
// a failed resend. It returns how many claims were handed to the
// dispatcher; outcomes are applied on the loop when the dispatch finishes.
func (s *Session) Dispatch(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func(st *store) error {
		if st.dispatching {
			return model.ErrDispatchInFlight
		}
		ids := st.dispatchable()
		n = len(ids)
		if n == 0 {
			return nil
		}
		s.startDispatch(st, ids)
		return nil
	})
	return n, err
}

// Retry re-dispatches a single staged claim, typically a failed resend
func (s *Session) Retry(ctx context.Context, id model.ClaimID) error {
	return s.do(ctx, func(st *store) error {
		if st.dispatching {
			return model.ErrDispatchInFlight
		}
		if st.staged[id] == nil {
			return &model.TransitionError{ID: id, Action: "retry", State: st.partitionOf(id)}
		}
		s.startDispatch(st, []model.ClaimID{id})
		return nil
	})
}

// startDispatch runs on the loop; the submission itself does not
func (s *Session) startDispatch(st *store, ids []model.ClaimID) {
	claims := st.beginDispatch(ids)
	s.logger.Info().Int("claims", len(claims)).Msg("dispatch started")

	ctx := s.runCtx
	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()
		report := s.dispatcher.Execute(ctx, claims)
		s.post(func(st *store) error {
			st.completeDispatch(report)
			if s.onDispatch != nil {
				s.onDispatch(report)
			}
			return nil
		})
	}()
}

// post hands fn to the loop without waiting for it. It gives up once the
// session is closed.
func (s *Session) post(fn func(*store) error) {
	select {
	case s.cmds <- command{fn: fn, reply: make(chan error, 1)}:
	case <-s.done:
		s.logger.Debug().Msg("session closed, dropping late event")
	}
}

// ApplySnapshot delivers a discovery snapshot. A successful delivery also
// clears the discovery connectivity signal.
func (s *Session) ApplySnapshot(ctx context.Context, blocks []model.Block) error {
	return s.do(ctx, func(st *store) error {
		st.applySnapshot(blocks)
		st.signal(model.FeedDiscovery, nil)
		if len(st.pending.Skipped) > 0 {
			s.logger.Warn().Strs("block_ids", st.pending.Skipped).Msg("duplicate blocks in snapshot skipped")
		}
		return nil
	})
}

// LinkResults attaches published result ids to sent records and returns
// how many were linked
func (s *Session) LinkResults(ctx context.Context, results []model.PublishedResult) (int, error) {
	var n int
	err := s.do(ctx, func(st *store) error {
		n = st.linkResults(results)
		st.signal(model.FeedResults, nil)
		return nil
	})
	return n, err
}

// SignalConnectivity records the outcome of a poll cycle for feed.
// A nil err marks the feed healthy.
func (s *Session) SignalConnectivity(ctx context.Context, feed string, err error) error {
	return s.do(ctx, func(st *store) error {
		st.signal(feed, err)
		return nil
	})
}

// View returns a copy of the current state
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.do(ctx, func(st *store) error {
		v = st.view()
		return nil
	})
	return v, err
}

func isTimeout(err error) bool {
	return errors.Is(err, model.ErrConnectivityTimeout) || errors.Is(err, context.DeadlineExceeded)
}
