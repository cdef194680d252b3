package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey generates a cache key for a kind of entry and its subject
func CacheKey(kind, subject string) string {
	hash := sha256.Sum256([]byte(subject))
	return "claimdesk:v1:" + kind + ":" + hex.EncodeToString(hash[:])
}

// NopCache stores nothing. It stands in when caching is disabled.
type NopCache struct{}

var _ Cache = NopCache{}

// Get always misses
func (NopCache) Get(string) ([]byte, bool) { return nil, false }

// Set discards the value
func (NopCache) Set(string, []byte, time.Duration) error { return nil }

// Delete does nothing
func (NopCache) Delete(string) error { return nil }

// Clear does nothing
func (NopCache) Clear() error { return nil }
