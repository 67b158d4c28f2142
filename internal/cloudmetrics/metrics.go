package cloudmetrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Snapshot is one reading of the ledger's aggregate state.
type Snapshot struct {
	Accounts         int64
	OutstandingSecs  int64
	ActiveSessions   int64
	ShortfallEnds    int64
	MemoryUsageBytes uint64
}

// CloudMetrics holds the gauges exported to the hosted sink. It owns its own
// registry so nothing from the /metrics endpoint leaks into the push.
type CloudMetrics struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	accounts       prometheus.Gauge
	outstanding    prometheus.Gauge
	activeSessions prometheus.Gauge
	shortfallEnds  prometheus.Gauge
	memory         prometheus.Gauge
	buildInfo      *prometheus.GaugeVec
}

// New registers the ledger gauges on registry. A nil registry gets a fresh one.
func New(registry *prometheus.Registry, pusher Pusher, appName, version string, log *zap.Logger) (*CloudMetrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &CloudMetrics{
		registry: registry,
		pusher:   pusher,
		log:      log.Named("cloud.metrics"),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditledger_accounts_total",
			Help: "Number of open credit accounts.",
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditledger_outstanding_seconds",
			Help: "Sum of unspent credit across all accounts.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditledger_active_sessions",
			Help: "Usage sessions that have not been ended.",
		}),
		shortfallEnds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditledger_shortfall_sessions_total",
			Help: "Sessions that ended with less credit than they consumed.",
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "creditledger_process_memory_bytes",
			Help: "Memory obtained from the OS by the ledger process.",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "creditledger_build_info",
			Help: "Build metadata of the running ledger.",
		}, []string{"app", "version"}),
	}

	for _, collector := range []prometheus.Collector{
		c.accounts, c.outstanding, c.activeSessions, c.shortfallEnds, c.memory, c.buildInfo,
	} {
		if err := registry.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}

	c.buildInfo.WithLabelValues(labelOrUnknown(appName), labelOrUnknown(version)).Set(1)
	return c, nil
}

// Registry exposes the private registry, mostly for tests.
func (c *CloudMetrics) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Observe copies a snapshot into the gauges.
func (c *CloudMetrics) Observe(s Snapshot) {
	if c == nil {
		return
	}
	c.accounts.Set(float64(s.Accounts))
	c.outstanding.Set(float64(s.OutstandingSecs))
	c.activeSessions.Set(float64(s.ActiveSessions))
	c.shortfallEnds.Set(float64(s.ShortfallEnds))
	c.memory.Set(float64(s.MemoryUsageBytes))
}

// Push sends the registry through the configured pusher. Without one it is a no-op.
func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}

func labelOrUnknown(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
