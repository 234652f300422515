// Package cache provides the advisory query-to-cluster cache. Entries are
// hints only; callers must verify a cached cluster still exists before
// trusting it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	DefaultTTL     = 24 * time.Hour
	DefaultMaxSize = 10000
)

// Cache is a string key/value store with per-entry expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config defines cache configuration
type Config struct {
	DefaultTTL time.Duration
	MaxSize    int
}

// DefaultConfig returns the default cache settings.
func DefaultConfig() Config {
	return Config{DefaultTTL: DefaultTTL, MaxSize: DefaultMaxSize}
}

// QueryKey derives a stable key for a query. Case and surrounding
// whitespace do not change the key.
func QueryKey(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return "query-cluster:" + hex.EncodeToString(sum[:])
}
