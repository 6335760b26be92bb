// Package metrics exports running-config synthesis counters to Prometheus.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements runconfig.Observer and prometheus.Collector.
type Collector struct {
	mu         sync.Mutex
	runs       uint64
	commands   uint64
	subsets    uint64
	bounds     uint64
	unresolved uint64
	errors     map[int]uint64 // by transport code
	lastRun    time.Time

	duration prometheus.Histogram

	runsTotal       *prometheus.Desc
	commandsTotal   *prometheus.Desc
	errorsTotal     *prometheus.Desc
	subsetSearches  *prometheus.Desc
	subsetBoundHits *prometheus.Desc
	unresolvedTotal *prometheus.Desc
	lastRunSeconds  *prometheus.Desc
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{
		errors: map[int]uint64{},
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bigsh_run_duration_seconds",
			Help:    "Running-config synthesis duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		runsTotal: prometheus.NewDesc(
			"bigsh_runs_total",
			"Running-config synthesis runs.",
			nil, nil,
		),
		commandsTotal: prometheus.NewDesc(
			"bigsh_commands_total",
			"Commands emitted across all runs.",
			nil, nil,
		),
		errorsTotal: prometheus.NewDesc(
			"bigsh_top_path_errors_total",
			"Top paths skipped because the datastore returned an error code.",
			[]string{"code"}, nil,
		),
		subsetSearches: prometheus.NewDesc(
			"bigsh_subset_searches_total",
			"Field-subset searches for partially covered commands.",
			nil, nil,
		),
		subsetBoundHits: prometheus.NewDesc(
			"bigsh_subset_bound_exceeded_total",
			"Field-subset searches skipped for exceeding the search limit.",
			nil, nil,
		),
		unresolvedTotal: prometheus.NewDesc(
			"bigsh_unresolved_submodes_total",
			"Ambiguous submode entries left unresolved.",
			nil, nil,
		),
		lastRunSeconds: prometheus.NewDesc(
			"bigsh_last_run_timestamp_seconds",
			"Unix time of the last finished run.",
			nil, nil,
		),
	}
}

func (c *Collector) RunFinished(elapsed time.Duration, commands int, codes []int) {
	c.duration.Observe(elapsed.Seconds())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	c.commands += uint64(commands)
	for _, code := range codes {
		c.errors[code]++
	}
	c.lastRun = time.Now()
}

func (c *Collector) SubsetSearch() {
	c.mu.Lock()
	c.subsets++
	c.mu.Unlock()
}

func (c *Collector) SubsetBoundExceeded() {
	c.mu.Lock()
	c.bounds++
	c.mu.Unlock()
}

func (c *Collector) UnresolvedSubmode() {
	c.mu.Lock()
	c.unresolved++
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsTotal
	ch <- c.commandsTotal
	ch <- c.errorsTotal
	ch <- c.subsetSearches
	ch <- c.subsetBoundHits
	ch <- c.unresolvedTotal
	ch <- c.lastRunSeconds
	c.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.runsTotal, c.runs)
	counter(c.commandsTotal, c.commands)
	counter(c.subsetSearches, c.subsets)
	counter(c.subsetBoundHits, c.bounds)
	counter(c.unresolvedTotal, c.unresolved)
	for code, n := range c.errors {
		counter(c.errorsTotal, n, strconv.Itoa(code))
	}
	if !c.lastRun.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastRunSeconds, prometheus.GaugeValue,
			float64(c.lastRun.UnixNano())/1e9)
	}
	c.duration.Collect(ch)
}

// Registry returns an isolated registry holding c.
func (c *Collector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return reg
}

// WriteTextfile writes c in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Registry())
}
