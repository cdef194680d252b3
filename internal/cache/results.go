package cache

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimdesk/internal/model"
)

// ResultsEntry is what the results cache holds for one target
type ResultsEntry struct {
	Target    string                  `json:"target"`
	FetchedAt time.Time               `json:"fetched_at"`
	Results   []model.PublishedResult `json:"results"`
}

// ResultsCache keeps the latest published results per target on top of a
// byte cache
type ResultsCache struct {
	backend Cache
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewResultsCache wraps backend. A nil backend caches nothing.
func NewResultsCache(backend Cache, ttl time.Duration, logger zerolog.Logger) *ResultsCache {
	if backend == nil {
		backend = NopCache{}
	}
	return &ResultsCache{backend: backend, ttl: ttl, now: time.Now, logger: logger}
}

// SetResults replaces the cached results of target
func (c *ResultsCache) SetResults(target string, results []model.PublishedResult) {
	entry := ResultsEntry{Target: target, FetchedAt: c.now(), Results: results}
	if entry.Results == nil {
		entry.Results = []model.PublishedResult{}
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("target", target).Msg("encode results")
		return
	}
	if err := c.backend.Set(CacheKey("results", target), raw, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("target", target).Msg("cache results")
	}
}

// Results returns the cached results of target
func (c *ResultsCache) Results(target string) (ResultsEntry, bool) {
	raw, ok := c.backend.Get(CacheKey("results", target))
	if !ok {
		return ResultsEntry{}, false
	}
	var entry ResultsEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn().Err(err).Str("target", target).Msg("decode cached results")
		return ResultsEntry{}, false
	}
	return entry, true
}
