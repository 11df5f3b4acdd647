package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long cached findings stay valid. Site imagery is
// immutable once uploaded, so a long TTL is safe.
const DefaultCacheTTL = 24 * time.Hour

// cacheKeyPrefix namespaces vision cache entries in Redis.
const cacheKeyPrefix = "vision:findings:"

// CachedAnalyzer wraps an Analyzer with a Redis findings cache keyed by the
// digest of the evidence ref set. Cache errors fall through to the inner
// analyzer; the cache can only make analysis cheaper, never fail it.
type CachedAnalyzer struct {
	inner  Analyzer
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedAnalyzer wraps inner with a Redis cache. Logger may be nil.
func NewCachedAnalyzer(inner Analyzer, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedAnalyzer {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAnalyzer{inner: inner, client: client, ttl: ttl, logger: logger}
}

// Analyze returns cached findings for the evidence set when present,
// otherwise delegates and stores the result.
func (c *CachedAnalyzer) Analyze(ctx context.Context, evidenceRefs []string) (*Findings, error) {
	key := cacheKey(evidenceRefs)

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var f Findings
		if err := json.Unmarshal(data, &f); err == nil {
			return &f, nil
		}
		c.logger.Warn("dropping undecodable cached findings", "key", key)
	} else if err != redis.Nil {
		c.logger.Warn("vision cache read failed", "error", err)
	}

	findings, err := c.inner.Analyze(ctx, evidenceRefs)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(findings); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("vision cache write failed", "error", err)
		}
	}
	return findings, nil
}

// cacheKey derives the cache key from the SHA-256 digest of the ordered
// evidence ref set.
func cacheKey(evidenceRefs []string) string {
	sum := sha256.Sum256([]byte(strings.Join(evidenceRefs, "\n")))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
