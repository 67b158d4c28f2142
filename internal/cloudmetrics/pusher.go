package cloudmetrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/brujulacripto/creditledger/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	exporterPrometheusRemoteWrite = "prometheus_remote_write"
	exporterPrometheusPushgateway = "prometheus_pushgateway"
)

var (
	errExporterRequired = errors.New("cloud metrics exporter is required")
	errEndpointRequired = errors.New("cloud metrics endpoint is required")
	errUnknownExporter  = errors.New("unknown cloud metrics exporter")
)

// Pusher ships a snapshot of the ledger gauges to a hosted Prometheus sink.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// NewPusher builds a pusher from config. Bad settings are logged and yield nil so
// the ledger keeps serving without the export.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsCfg := cfg.Cloud.Metrics
	if !metricsCfg.Enabled {
		return nil
	}

	exporter := strings.ToLower(strings.TrimSpace(metricsCfg.Exporter))
	endpoint := strings.TrimSpace(metricsCfg.Endpoint)
	if err := validateExporter(exporter, endpoint); err != nil {
		logger.Warn("cloud metrics disabled", zap.String("exporter", exporter), zap.Error(err))
		return nil
	}

	if exporter == exporterPrometheusPushgateway {
		return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{
			"environment": cfg.Environment,
		})
	}
	return NewRemoteWritePusher(endpoint, metricsCfg.AuthToken)
}

func validateExporter(exporter, endpoint string) error {
	switch {
	case exporter == "":
		return errExporterRequired
	case endpoint == "":
		return errEndpointRequired
	}
	switch exporter {
	case exporterPrometheusRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("invalid remote write endpoint: %w", err)
		}
		return nil
	case exporterPrometheusPushgateway:
		return nil
	default:
		return errUnknownExporter
	}
}
