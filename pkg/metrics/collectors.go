package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// runtimeGauge pairs one descriptor with the function that reads its
// value out of a MemStats snapshot, so Describe and Collect iterate one
// table instead of repeating every metric by hand.
type runtimeGauge struct {
	desc *prometheus.Desc
	kind prometheus.ValueType
	read func(*runtime.MemStats) float64
}

// RuntimeCollector exports the gateway process's runtime gauges
// (goroutines, heap, GC). Registered once by InitMetrics.
type RuntimeCollector struct {
	gauges []runtimeGauge
}

// NewRuntimeCollector builds the collector InitMetrics registers.
func NewRuntimeCollector(namespace, subsystem string) *RuntimeCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name),
			help, nil, nil,
		)
	}

	return &RuntimeCollector{
		gauges: []runtimeGauge{
			{
				desc: desc("runtime_goroutines", "Number of goroutines"),
				kind: prometheus.GaugeValue,
				read: func(*runtime.MemStats) float64 { return float64(runtime.NumGoroutine()) },
			},
			{
				desc: desc("runtime_memory_alloc_bytes", "Bytes allocated and still in use"),
				kind: prometheus.GaugeValue,
				read: func(ms *runtime.MemStats) float64 { return float64(ms.Alloc) },
			},
			{
				desc: desc("runtime_memory_total_alloc_bytes", "Total bytes allocated (even if freed)"),
				kind: prometheus.CounterValue,
				read: func(ms *runtime.MemStats) float64 { return float64(ms.TotalAlloc) },
			},
			{
				desc: desc("runtime_memory_sys_bytes", "Bytes obtained from the OS"),
				kind: prometheus.GaugeValue,
				read: func(ms *runtime.MemStats) float64 { return float64(ms.Sys) },
			},
			{
				desc: desc("runtime_gc_runs_total", "Completed GC cycles"),
				kind: prometheus.CounterValue,
				read: func(ms *runtime.MemStats) float64 { return float64(ms.NumGC) },
			},
			{
				desc: desc("runtime_gc_pause_seconds", "Most recent GC pause"),
				kind: prometheus.GaugeValue,
				read: func(ms *runtime.MemStats) float64 {
					if ms.NumGC == 0 {
						return 0
					}
					return float64(ms.PauseNs[(ms.NumGC-1)%uint32(len(ms.PauseNs))]) / 1e9
				},
			},
		},
	}
}

func (c *RuntimeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *RuntimeCollector) Collect(ch chan<- prometheus.Metric) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, g.kind, g.read(&ms))
	}
}

// RequestTracker keeps a per-method count of in-flight requests behind
// one shared gauge, refusing to go negative when End is called without
// a matching Start.
type RequestTracker struct {
	mu       sync.Mutex
	active   map[string]int
	inFlight prometheus.Gauge
}

func NewRequestTracker(inFlight prometheus.Gauge) *RequestTracker {
	return &RequestTracker{
		active:   make(map[string]int),
		inFlight: inFlight,
	}
}

// Start counts one request in.
func (t *RequestTracker) Start(method string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[method]++
	t.inFlight.Inc()
}

// End counts one request out; unmatched Ends are dropped.
func (t *RequestTracker) End(method string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[method] == 0 {
		return
	}
	t.active[method]--
	t.inFlight.Dec()
}

// Timer measures one operation into a labeled histogram.
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

func NewTimer(histogram *prometheus.HistogramVec, labels ...string) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram.WithLabelValues(labels...),
	}
}

// ObserveDuration records and returns the elapsed time since NewTimer.
func (t *Timer) ObserveDuration() time.Duration {
	elapsed := time.Since(t.start)
	t.observer.Observe(elapsed.Seconds())
	return elapsed
}
