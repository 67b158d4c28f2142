package cloudmetrics

import (
	"context"
	"time"

	"github.com/brujulacripto/creditledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPushInterval = time.Minute

var Module = fx.Module("cloud.metrics",
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, pusher Pusher, logger *zap.Logger) (*CloudMetrics, error) {
		if !cfg.Cloud.Metrics.Enabled || pusher == nil {
			return nil, nil
		}
		return New(nil, pusher, cfg.AppName, cfg.AppVersion, logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, c *CloudMetrics, logger *zap.Logger, db *gorm.DB) {
		if c == nil {
			return
		}
		if logger == nil {
			logger = zap.NewNop()
		}

		interval := cfg.Cloud.Metrics.Interval
		if interval <= 0 {
			interval = defaultPushInterval
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting cloud metrics worker", zap.Duration("interval", interval))
				go func() {
					defer close(done)
					ticker := time.NewTicker(interval)
					defer ticker.Stop()

					for {
						if err := refreshAndPush(ctx, c, db); err != nil {
							logger.Warn("cloud metrics push failed", zap.Error(err))
						}
						select {
						case <-ticker.C:
						case <-ctx.Done():
							logger.Info("stopping cloud metrics worker")
							return
						}
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
				}
				return nil
			},
		})
	}),
)

func refreshAndPush(ctx context.Context, c *CloudMetrics, db *gorm.DB) error {
	snap, err := ReadSnapshot(ctx, db)
	if err != nil {
		return err
	}
	c.Observe(snap)
	return c.Push(ctx)
}
