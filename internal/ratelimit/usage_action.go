package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brujulacripto/creditledger/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyUsageActionUser    = "usage:action:user:%s"
	keyUsageActionSession = "usage:action:lock:%s:%s"
)

// UsageActionLimiter throttles usage actions per user and serializes actions on one
// session. A nil limiter allows everything.
type UsageActionLimiter struct {
	enabled bool

	client *redis.Client
	bucket *TokenBucket
	locker *SessionLock

	userRate  float64
	userBurst int
	lockTTL   time.Duration
}

func NewUsageActionLimiter(cfg config.Config) (*UsageActionLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.UsageActionUserRate <= 0 || limitCfg.UsageActionUserBurst <= 0 {
		return nil, errors.New("usage action user rate limit must be positive")
	}
	if limitCfg.UsageActionSessionLockSeconds <= 0 {
		return nil, errors.New("usage action session lock ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &UsageActionLimiter{
		enabled:   true,
		client:    client,
		bucket:    NewTokenBucket(client),
		locker:    NewSessionLock(client),
		userRate:  limitCfg.UsageActionUserRate,
		userBurst: limitCfg.UsageActionUserBurst,
		lockTTL:   time.Duration(limitCfg.UsageActionSessionLockSeconds) * time.Second,
	}, nil
}

func (l *UsageActionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *UsageActionLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, userKey(userID), l.userRate, l.userBurst)
}

func (l *UsageActionLimiter) TryLockSession(ctx context.Context, userID, sessionID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.Acquire(ctx, sessionKey(userID, sessionID), l.lockTTL)
}

func (l *UsageActionLimiter) ReleaseSession(ctx context.Context, userID, sessionID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, sessionKey(userID, sessionID), token)
}

func (l *UsageActionLimiter) Close() error {
	if !l.Enabled() || l.client == nil {
		return nil
	}
	return l.client.Close()
}

func userKey(userID string) string {
	return fmt.Sprintf(keyUsageActionUser, strings.TrimSpace(userID))
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf(keyUsageActionSession, strings.TrimSpace(userID), strings.TrimSpace(sessionID))
}
