package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job name for one-shot stage runs.
const DefaultJob = "brewery_etl"

// Push replaces the metrics grouped under job and command on the Pushgateway
// at url. One-shot stage processes exit before they could be scraped.
// The grouping label cannot reuse a metric label name such as "stage".
func (m *Metrics) Push(ctx context.Context, url, job, command string) error {
	if url == "" {
		return fmt.Errorf("pushgateway URL is required")
	}
	if job == "" {
		job = DefaultJob
	}

	p := push.New(url, job).Grouping("command", command)
	for _, c := range m.Collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
