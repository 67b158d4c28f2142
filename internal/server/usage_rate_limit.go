package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/brujulacripto/creditledger/internal/observability/logger"
	obsmetrics "github.com/brujulacripto/creditledger/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	rateLimitReasonUserRate           = "user-rate"
	rateLimitReasonSessionConcurrency = "session-concurrency"
)

type usageActionRateLimitKey struct {
	SessionID string `json:"session_id"`
}

// UsageActionRateLimit sheds excess usage actions per user and serializes actions
// on one session. Balance correctness never depends on it.
func (s *Server) UsageActionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.usageLimiter == nil || !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		userID := callerID(c)
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.usageLimiter.AllowUser(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("usage action rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if result != nil && !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			denyUsageActionRateLimit(c, endpoint, rateLimitReasonUserRate, retryAfter, s.obsMetrics)
			return
		}

		sessionID, err := readUsageActionKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("usage action rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		if sessionID != "" {
			lockToken, locked, err := s.usageLimiter.TryLockSession(ctx, userID, sessionID)
			if err != nil {
				logger.FromContext(ctx).Warn("usage action session lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !locked {
				denyUsageActionRateLimit(c, endpoint, rateLimitReasonSessionConcurrency, 1, s.obsMetrics)
				return
			}
			defer func() {
				if err := s.usageLimiter.ReleaseSession(context.WithoutCancel(ctx), userID, sessionID, lockToken); err != nil {
					logger.FromContext(ctx).Warn("usage action session unlock failed", zap.Error(err))
				}
			}()
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyUsageActionRateLimit(c *gin.Context, endpoint, reason string, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("usage action rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, reason, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

// readUsageActionKey peeks at session_id and restores the body for the handler.
func readUsageActionKey(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload usageActionRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}

	return strings.TrimSpace(payload.SessionID), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
