package ratelimit

import (
	"context"

	"github.com/brujulacripto/creditledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(func(lc fx.Lifecycle, cfg config.Config) (*UsageActionLimiter, error) {
		limiter, err := NewUsageActionLimiter(cfg)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return limiter.Close()
			},
		})
		return limiter, nil
	}),
)
