// Package extract turns operator-submitted article text into discovered
// blocks, using an LLM provider to pull out the claims.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimdesk/internal/llm"
	"github.com/ppiankov/claimdesk/internal/model"
)

// ErrQueueFull indicates too many text blocks are waiting for extraction
var ErrQueueFull = errors.New("extraction queue full")

const (
	sourceIDPrefix    = "article-"
	sourceIDLayout    = "20060102-150405"
	defaultQueueDepth = 16
)

type job struct {
	id  string
	req model.TextBlockRequest
}

// LocalSource is a discovery source fed by in-process extraction. Accepted
// text blocks are queued, extracted by Run, and then appear in every
// Snapshot as blocks of pending claims.
type LocalSource struct {
	provider  llm.Provider
	logger    zerolog.Logger
	now       func() time.Time
	maxTokens int

	queue chan job

	mu       sync.Mutex
	blocks   []model.Block
	reserved map[string]struct{}
}

// Option configures a LocalSource
type Option func(*LocalSource)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *LocalSource) { s.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *LocalSource) { s.now = now }
}

// WithQueueDepth bounds the number of text blocks waiting for extraction
func WithQueueDepth(n int) Option {
	return func(s *LocalSource) {
		if n > 0 {
			s.queue = make(chan job, n)
		}
	}
}

// WithMaxTokens limits the extraction response length
func WithMaxTokens(n int) Option {
	return func(s *LocalSource) { s.maxTokens = n }
}

// NewLocalSource creates a source backed by provider
func NewLocalSource(provider llm.Provider, opts ...Option) *LocalSource {
	s := &LocalSource{
		provider: provider,
		logger:   zerolog.Nop(),
		now:      time.Now,
		queue:    make(chan job, defaultQueueDepth),
		reserved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and queues a text block. It returns the source id the
// resulting block will carry.
func (s *LocalSource) Submit(req model.TextBlockRequest) (string, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.Headline = strings.TrimSpace(req.Headline)

	if req.Text == "" && strings.TrimSpace(req.HTML) != "" {
		page, err := ParseHTML(req.HTML)
		if err != nil {
			return "", model.NewValidationError("html", "", fmt.Sprintf("unparseable: %v", err))
		}
		req.Text = page.Text
		if req.Headline == "" {
			req.Headline = page.Title
		}
	}
	if req.Text == "" {
		return "", model.NewValidationError("text", "", "No text provided")
	}

	id := s.reserve(req.SourceID)
	select {
	case s.queue <- job{id: id, req: req}:
	default:
		s.release(id)
		return "", ErrQueueFull
	}

	s.logger.Info().Str("source_id", id).Int("chars", len(req.Text)).Msg("text block accepted")
	return id, nil
}

// Run extracts queued text blocks until ctx is cancelled
func (s *LocalSource) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-s.queue:
			s.process(ctx, j)
		}
	}
}

func (s *LocalSource) process(ctx context.Context, j job) {
	log := s.logger.With().Str("source_id", j.id).Logger()

	resp, err := s.provider.ExtractClaims(ctx, llm.ExtractRequest{
		Text:            j.req.Text,
		Headline:        j.req.Headline,
		PublicationDate: j.req.PublicationDate,
		MaxTokens:       s.maxTokens,
	})
	if err != nil {
		log.Error().Err(err).Msg("claim extraction failed")
		s.release(j.id)
		return
	}

	claims := dedupeClaims(resp.Claims)
	if len(claims) == 0 {
		log.Warn().Msg("no claims extracted")
		s.release(j.id)
		return
	}

	block := model.BlockFromPayload(j.id, s.now(), j.req.Headline, claims)
	s.mu.Lock()
	s.blocks = append(s.blocks, block)
	s.mu.Unlock()

	log.Info().Int("claims", len(claims)).Str("model", resp.Model).Int("tokens", resp.TokensUsed).
		Msg("claims extracted")
}

// Snapshot returns every extracted block, newest first
func (s *LocalSource) Snapshot(context.Context) ([]model.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Block, 0, len(s.blocks))
	for i := len(s.blocks) - 1; i >= 0; i-- {
		b := s.blocks[i]
		b.Claims = append([]model.Claim(nil), b.Claims...)
		out = append(out, b)
	}
	return out, nil
}

// reserve claims a unique source id. Collisions get a numeric suffix.
func (s *LocalSource) reserve(requested string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := strings.TrimSpace(requested)
	if base == "" {
		base = sourceIDPrefix + s.now().Format(sourceIDLayout)
	}
	id := base
	for n := 2; ; n++ {
		if _, taken := s.reserved[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
	s.reserved[id] = struct{}{}
	return id
}

func (s *LocalSource) release(id string) {
	s.mu.Lock()
	delete(s.reserved, id)
	s.mu.Unlock()
}
