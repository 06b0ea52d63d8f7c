package metrics

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// CounterVec is a labelled counter persisted in a Shard
type CounterVec struct {
	shard  *Shard
	name   string
	help   string
	labels []string
}

// NewCounterVec declares a counter family on the shard
func (s *Shard) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *CounterVec {
	return &CounterVec{
		shard:  s,
		name:   prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name),
		help:   opts.Help,
		labels: labelNames,
	}
}

// Add increases the counter by v, which must not be negative
func (c *CounterVec) Add(v float64, labelValues ...string) error {
	if v < 0 {
		return fmt.Errorf("counter %s cannot decrease", c.name)
	}
	labels, err := labelMap(c.labels, labelValues)
	if err != nil {
		return err
	}
	return c.shard.write(false, sample{
		name: c.name, family: c.name, kind: kindCounter, help: c.help, labels: labels, value: v,
	})
}

// Inc increments the counter by one
func (c *CounterVec) Inc(labelValues ...string) error {
	return c.Add(1, labelValues...)
}

// GaugeVec is a labelled gauge persisted in a Shard. Gauges are reported
// per process with a pid label.
type GaugeVec struct {
	shard  *Shard
	name   string
	help   string
	labels []string
}

// NewGaugeVec declares a gauge family on the shard
func (s *Shard) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *GaugeVec {
	return &GaugeVec{
		shard:  s,
		name:   prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name),
		help:   opts.Help,
		labels: labelNames,
	}
}

// Set sets the gauge to v
func (g *GaugeVec) Set(v float64, labelValues ...string) error {
	return g.write(true, v, labelValues)
}

// Add adds v, which may be negative
func (g *GaugeVec) Add(v float64, labelValues ...string) error {
	return g.write(false, v, labelValues)
}

func (g *GaugeVec) write(set bool, v float64, labelValues []string) error {
	labels, err := labelMap(g.labels, labelValues)
	if err != nil {
		return err
	}
	return g.shard.write(set, sample{
		name: g.name, family: g.name, kind: kindGauge, help: g.help, labels: labels, value: v,
	})
}

// HistogramVec is a labelled histogram persisted in a Shard as cumulative
// buckets plus _sum and _count samples
type HistogramVec struct {
	shard   *Shard
	name    string
	help    string
	labels  []string
	buckets []float64
}

// NewHistogramVec declares a histogram family on the shard. Empty buckets
// select prometheus.DefBuckets.
func (s *Shard) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *HistogramVec {
	buckets := append([]float64(nil), opts.Buckets...)
	if len(buckets) == 0 {
		buckets = append(buckets, prometheus.DefBuckets...)
	}
	sort.Float64s(buckets)

	return &HistogramVec{
		shard:   s,
		name:    prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name),
		help:    opts.Help,
		labels:  labelNames,
		buckets: buckets,
	}
}

// Observe records one observation
func (h *HistogramVec) Observe(v float64, labelValues ...string) error {
	labels, err := labelMap(h.labels, labelValues)
	if err != nil {
		return err
	}

	samples := make([]sample, 0, len(h.buckets)+2)
	// every bound is written so buckets never hit still show a zero count
	for _, bound := range h.buckets {
		hit := 0.0
		if v <= bound {
			hit = 1
		}
		bucketLabels := make(map[string]string, len(labels)+1)
		for k, lv := range labels {
			bucketLabels[k] = lv
		}
		bucketLabels["le"] = formatBound(bound)
		samples = append(samples, h.sample("_bucket", bucketLabels, hit))
	}
	samples = append(samples,
		h.sample("_sum", labels, v),
		h.sample("_count", labels, 1),
	)

	return h.shard.write(false, samples...)
}

func (h *HistogramVec) sample(suffix string, labels map[string]string, v float64) sample {
	return sample{
		name: h.name + suffix, family: h.name, kind: kindHistogram, help: h.help, labels: labels, value: v,
	}
}
