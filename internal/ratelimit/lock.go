package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockNotConfigured = errors.New("session lock client not configured")
	ErrLockKeyEmpty      = errors.New("session lock key is empty")
	ErrLockTTLInvalid    = errors.New("session lock ttl must be positive")
)

// compare-and-delete so a lock that expired and was re-acquired by another
// request is never released by the original holder.
const releaseSessionLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SessionLock is a short-lived exclusive hold on one usage session key.
type SessionLock struct {
	client  *redis.Client
	release *redis.Script
}

func NewSessionLock(client *redis.Client) *SessionLock {
	if client == nil {
		return nil
	}
	return &SessionLock{
		client:  client,
		release: redis.NewScript(releaseSessionLockScript),
	}
}

// Acquire returns the holder token and whether the key was free.
func (s *SessionLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case s == nil || s.client == nil:
		return "", false, ErrLockNotConfigured
	case key == "":
		return "", false, ErrLockKeyEmpty
	case ttl <= 0:
		return "", false, ErrLockTTLInvalid
	}

	holder := uuid.NewString()
	acquired, err := s.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return holder, true, nil
}

// Release is a no-op for an unconfigured lock or an empty holder.
func (s *SessionLock) Release(ctx context.Context, key, holder string) error {
	if s == nil || s.client == nil || key == "" || holder == "" {
		return nil
	}
	return s.release.Run(ctx, s.client, []string{key}, holder).Err()
}
