package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/redacted/internal/privacy"
)

// ResultCache stores redaction results in Redis keyed by the redactor
// fingerprint and the input text
type ResultCache struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewResultCache creates a new Redis-based result cache
func NewResultCache(config Config, logger *zap.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	if config.KeyPrefix == "" {
		config.KeyPrefix = "redacted"
	}

	rc := &ResultCache{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rc.client.Ping(ctx).Err(); err != nil {
		_ = rc.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Result cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("default_ttl", config.DefaultTTL))

	return rc, nil
}

// Get looks up a result. Lookup failures are logged and reported as misses.
func (rc *ResultCache) Get(ctx context.Context, fingerprint, text string) (*privacy.ProcessResult, bool) {
	key := rc.key(fingerprint, text)

	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rc.misses.Add(1)
		return nil, false
	} else if err != nil {
		rc.errors.Add(1)
		rc.misses.Add(1)
		rc.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedResult
	if err := json.Unmarshal(data, &cached); err != nil || cached.Fingerprint != fingerprint {
		rc.logger.Warn("Discarding unusable cache entry", zap.String("key", key))
		rc.client.Del(ctx, key)
		rc.misses.Add(1)
		return nil, false
	}

	rc.hits.Add(1)

	findings := cached.Findings
	if findings == nil {
		findings = []privacy.Finding{}
	}

	return &privacy.ProcessResult{
		MaskedText: cached.MaskedText,
		Findings:   findings,
		Original:   text,
	}, true
}

// Set stores a result with the default TTL
func (rc *ResultCache) Set(ctx context.Context, fingerprint, text string, result privacy.ProcessResult) error {
	data, err := json.Marshal(CachedResult{
		MaskedText:  result.MaskedText,
		Findings:    result.Findings,
		Fingerprint: fingerprint,
		CachedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	if err := rc.client.Set(ctx, rc.key(fingerprint, text), data, rc.config.DefaultTTL).Err(); err != nil {
		rc.errors.Add(1)
		return fmt.Errorf("failed to cache result: %w", err)
	}

	return nil
}

// Stats returns cache performance statistics
func (rc *ResultCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Hits:   rc.hits.Load(),
		Misses: rc.misses.Load(),
		Errors: rc.errors.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := rc.keys(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalKeys = int64(len(keys))

	return stats, nil
}

// Clear removes all cached results
func (rc *ResultCache) Clear(ctx context.Context) error {
	keys, err := rc.keys(ctx)
	if err != nil {
		return err
	}

	// Delete keys in batches
	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	return rc.client.Close()
}

func (rc *ResultCache) keys(ctx context.Context) ([]string, error) {
	iter := rc.client.Scan(ctx, 0, rc.config.KeyPrefix+":res:*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return keys, nil
}

// key hashes the fingerprint and text so raw input never reaches Redis
func (rc *ResultCache) key(fingerprint, text string) string {
	hasher := sha256.New()
	hasher.Write([]byte(fingerprint))
	hasher.Write([]byte{0})
	hasher.Write([]byte(text))
	return fmt.Sprintf("%s:res:%s", rc.config.KeyPrefix, hex.EncodeToString(hasher.Sum(nil)))
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}

	userInfo := url[:at]
	colon := strings.LastIndex(userInfo, ":")
	// the scheme separator is not a password separator
	if colon < 0 || colon <= strings.Index(userInfo, "://") {
		return url
	}

	return userInfo[:colon+1] + "***" + url[at:]
}
