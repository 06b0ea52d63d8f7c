package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var collectErrorDesc = prometheus.NewDesc(
	"janitor_multiprocess_collect_error",
	"Error reading a metrics shard file.",
	nil, nil,
)

// Collector aggregates every shard file in a directory at scrape time.
// Counters and histograms are summed across processes; gauges keep one
// series per process, distinguished by a pid label.
//
// The set of families depends on what the worker processes have written,
// so Collector is an unchecked collector and Describe sends nothing.
type Collector struct {
	dir string
}

// NewCollector creates a Collector over dir. The directory is passed
// explicitly; it is not read from the environment.
func NewCollector(dir string) *Collector {
	return &Collector{dir: dir}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*"+ShardSuffix))
	if err != nil {
		ch <- prometheus.NewInvalidMetric(collectErrorDesc, err)
		return
	}
	sort.Strings(paths)

	agg := newAggregate()
	for _, path := range paths {
		if err := agg.readShard(path); err != nil {
			ch <- prometheus.NewInvalidMetric(collectErrorDesc, err)
		}
	}
	agg.emit(ch)
}

type family struct {
	kind   string
	help   string
	series map[string]*series
}

type series struct {
	labels  map[string]string
	value   float64
	sum     float64
	count   float64
	buckets map[float64]float64
}

type aggregate struct {
	families map[string]*family
}

func newAggregate() *aggregate {
	return &aggregate{families: make(map[string]*family)}
}

func (a *aggregate) readShard(path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open shard %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name, family, kind, help, labels, value FROM samples`)
	if err != nil {
		return fmt.Errorf("failed to read shard %s: %w", path, err)
	}
	defer rows.Close()

	pid := pidFromShard(path)
	for rows.Next() {
		var smp sample
		var rawLabels string
		if err := rows.Scan(&smp.name, &smp.family, &smp.kind, &smp.help, &rawLabels, &smp.value); err != nil {
			return fmt.Errorf("failed to scan shard %s: %w", path, err)
		}
		if err := json.Unmarshal([]byte(rawLabels), &smp.labels); err != nil {
			return fmt.Errorf("corrupt labels in shard %s: %w", path, err)
		}
		if smp.labels == nil {
			smp.labels = map[string]string{}
		}
		if smp.kind == kindGauge {
			smp.labels["pid"] = pid
		}
		a.add(smp)
	}
	return rows.Err()
}

func (a *aggregate) add(smp sample) {
	fam, ok := a.families[smp.family]
	if !ok {
		fam = &family{kind: smp.kind, help: smp.help, series: make(map[string]*series)}
		a.families[smp.family] = fam
	}
	if smp.kind != kindHistogram {
		s := fam.get(smp.labels)
		s.value += smp.value
		return
	}

	switch strings.TrimPrefix(smp.name, smp.family) {
	case "_bucket":
		bound, err := strconv.ParseFloat(smp.labels["le"], 64)
		if err != nil {
			return
		}
		delete(smp.labels, "le")
		s := fam.get(smp.labels)
		s.buckets[bound] += smp.value
	case "_sum":
		fam.get(smp.labels).sum += smp.value
	case "_count":
		fam.get(smp.labels).count += smp.value
	}
}

func (f *family) get(labels map[string]string) *series {
	key, _ := encodeLabels(labels)
	s, ok := f.series[key]
	if !ok {
		s = &series{labels: labels, buckets: make(map[float64]float64)}
		f.series[key] = s
	}
	return s
}

func (a *aggregate) emit(ch chan<- prometheus.Metric) {
	for name, fam := range a.families {
		for _, s := range fam.series {
			names := make([]string, 0, len(s.labels))
			for k := range s.labels {
				names = append(names, k)
			}
			sort.Strings(names)
			values := make([]string, len(names))
			for i, k := range names {
				values[i] = s.labels[k]
			}

			desc := prometheus.NewDesc(name, fam.help, names, nil)
			switch fam.kind {
			case kindCounter:
				ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, s.value, values...)
			case kindGauge:
				ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, s.value, values...)
			case kindHistogram:
				buckets := make(map[float64]uint64, len(s.buckets))
				for bound, n := range s.buckets {
					buckets[bound] = uint64(n)
				}
				ch <- prometheus.MustNewConstHistogram(desc, uint64(s.count), s.sum, buckets, values...)
			}
		}
	}
}

// Register adds the multiprocess collector for dir to reg. dir must have
// been prepared with PrepareDir first.
func Register(reg prometheus.Registerer, dir string) error {
	if err := reg.Register(NewCollector(dir)); err != nil {
		return fmt.Errorf("failed to register multiprocess collector: %w", err)
	}
	return nil
}

// Handler serves the exposition of g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
