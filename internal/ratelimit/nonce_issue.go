package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chatlink/internal/config"
)

const keyNonceIssue = "link:generate:%s:%s"

// NonceIssueLimiter throttles verification-nonce issuance per
// (channel, handle) so a chatty contact cannot mint tokens unboundedly.
// Disabled (nil) deployments allow everything.
type NonceIssueLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewNonceIssueLimiter(cfg config.Config) (*NonceIssueLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.GenerateRate <= 0 || limitCfg.GenerateBurst <= 0 {
		return nil, errors.New("nonce issue rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &NonceIssueLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.GenerateRate,
		burst:   limitCfg.GenerateBurst,
	}, nil
}

func (l *NonceIssueLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *NonceIssueLimiter) Allow(ctx context.Context, channelID, handle string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(keyNonceIssue, strings.TrimSpace(channelID), strings.TrimSpace(handle))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// SchedulerLocker exposes the shared redis lock for cross-instance job
// coordination, nil when rate limiting infrastructure is not configured.
func (l *NonceIssueLimiter) SchedulerLocker() *Locker {
	if !l.Enabled() {
		return nil
	}
	return l.locker
}
