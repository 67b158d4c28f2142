package cloudmetrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushgatewayPusher replaces the ledger's group on a Prometheus Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

// NewPushgatewayPusher drops blank grouping pairs.
func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	labels := make(map[string]string, len(grouping))
	for key, value := range grouping {
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key != "" && value != "" {
			labels[key] = value
		}
	}
	return &PushgatewayPusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
		grouping: labels,
	}
}

func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" {
		return errEndpointRequired
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	gateway := push.New(p.endpoint, p.job).Gatherer(registry)
	for key, value := range p.grouping {
		gateway = gateway.Grouping(key, value)
	}
	return gateway.PushContext(ctx)
}
