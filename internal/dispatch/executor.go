package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/worker"
)

// BatchPrefix starts every synthetic fresh sub-batch id
const BatchPrefix = "approved_"

// Outcome is the result of dispatching one claim
type Outcome struct {
	ClaimID model.ClaimID
	Kind    model.DispatchKind
	BatchID string
	SentAt  time.Time
	Err     error
}

// Report collects the outcomes of one dispatch
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
}

// Succeeded counts claims that were accepted
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts claims that were not accepted
func (r Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Err joins the distinct failures of the dispatch, or returns nil
func (r Report) Err() error {
	var (
		errs []error
		seen = make(map[error]bool)
	)
	for _, o := range r.Outcomes {
		if o.Err != nil && !seen[o.Err] {
			seen[o.Err] = true
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Executor turns a set of staged claims into submissions
type Executor struct {
	sub         Submitter
	target      string
	batchSize   int
	concurrency int
	newBatchID  func() string
	now         func() time.Time
	logger      zerolog.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithBatchIDs overrides the generator for synthetic sub-batch ids
func WithBatchIDs(gen func() string) Option {
	return func(e *Executor) { e.newBatchID = gen }
}

// WithClock overrides the dispatch timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithLogger sets the executor's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates an Executor submitting through sub on behalf of target
func NewExecutor(sub Submitter, target string, cfg model.DispatchConfig, opts ...Option) *Executor {
	e := &Executor{
		sub:         sub,
		target:      target,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		newBatchID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		now:         time.Now,
		logger:      zerolog.Nop(),
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcomesResult struct {
	outcomes []Outcome
}

func (r outcomesResult) GetError() error { return nil }

// Execute submits claims and reports one outcome per claim, in plan order.
// A failed fresh call fails its whole sub-batch; a failed resend fails
// only itself. Execute never returns early: every claim gets an outcome.
func (e *Executor) Execute(ctx context.Context, claims []model.Claim) Report {
	report := Report{StartedAt: e.now()}
	plan := NewPlan(claims, e.batchSize)

	var (
		jobs   []worker.Job
		groups [][]model.Claim
	)
	for _, batch := range plan.Fresh {
		batchID := BatchPrefix + e.newBatchID()
		jobs = append(jobs, e.freshJob(batchID, batch))
		groups = append(groups, batch)
	}
	for _, c := range plan.Resend {
		jobs = append(jobs, e.resendJob(c))
		groups = append(groups, []model.Claim{c})
	}

	results := worker.RunAll(ctx, jobs, e.concurrency)
	for i, r := range results {
		if res, ok := r.(outcomesResult); ok {
			report.Outcomes = append(report.Outcomes, res.outcomes...)
			continue
		}
		// Abandoned before it ran
		report.Outcomes = append(report.Outcomes, failAll(groups[i], "", r.GetError())...)
	}

	report.FinishedAt = e.now()
	e.logger.Info().
		Int("claims", plan.Size()).
		Int("sub_batches", len(plan.Fresh)).
		Int("resends", len(plan.Resend)).
		Int("failed", report.Failed()).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("dispatch finished")
	return report
}

func (e *Executor) freshJob(batchID string, batch []model.Claim) worker.Job {
	return worker.Func(func(ctx context.Context) worker.Result {
		sub := model.FreshSubmission{
			BlockID: batchID,
			Claims:  make([]model.ClaimPayload, 0, len(batch)),
			Target:  e.target,
		}
		for _, c := range batch {
			sub.Claims = append(sub.Claims, model.ClaimPayload{Name: c.Name, Claim: c.Text})
		}

		if err := e.sub.SubmitNew(ctx, sub); err != nil {
			e.logger.Warn().Err(err).Str("batch_id", batchID).Int("claims", len(batch)).Msg("fresh sub-batch failed")
			return outcomesResult{outcomes: failAll(batch, batchID, err)}
		}

		sentAt := e.now()
		out := make([]Outcome, len(batch))
		for i, c := range batch {
			out[i] = Outcome{ClaimID: c.ID, Kind: model.DispatchFresh, BatchID: batchID, SentAt: sentAt}
		}
		e.logger.Debug().Str("batch_id", batchID).Int("claims", len(batch)).Msg("fresh sub-batch submitted")
		return outcomesResult{outcomes: out}
	})
}

func (e *Executor) resendJob(c model.Claim) worker.Job {
	return worker.Func(func(ctx context.Context) worker.Result {
		sub := model.ResendSubmission{
			Name:          c.Name,
			Claim:         c.Text,
			ResultID:      c.ResultID,
			OriginalClaim: c.OriginalText,
			Target:        e.target,
		}

		if err := e.sub.SubmitResend(ctx, sub); err != nil {
			e.logger.Warn().Err(err).Str("claim_id", string(c.ID)).Msg("resend failed")
			return outcomesResult{outcomes: []Outcome{{
				ClaimID: c.ID,
				Kind:    model.DispatchResend,
				Err: &model.DispatchError{
					Failure:  model.FailurePartial,
					ClaimIDs: []model.ClaimID{c.ID},
					Err:      err,
				},
			}}}
		}
		return outcomesResult{outcomes: []Outcome{{ClaimID: c.ID, Kind: model.DispatchResend, SentAt: e.now()}}}
	})
}

// failAll reports every claim of a group as failed with one shared error
func failAll(group []model.Claim, batchID string, err error) []Outcome {
	if len(group) == 0 {
		return nil
	}
	if err == nil {
		err = context.Canceled
	}

	kind := model.KindOf(group[0])
	failure := model.FailureTotal
	if kind == model.DispatchResend {
		failure = model.FailurePartial
	}

	ids := make([]model.ClaimID, len(group))
	for i, c := range group {
		ids[i] = c.ID
	}
	derr := &model.DispatchError{Failure: failure, BatchID: batchID, ClaimIDs: ids, Err: err}

	out := make([]Outcome, len(group))
	for i, c := range group {
		out[i] = Outcome{ClaimID: c.ID, Kind: kind, BatchID: batchID, Err: derr}
	}
	return out
}
