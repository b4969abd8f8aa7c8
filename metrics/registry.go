package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "headlight"

var (
	registryOnce   sync.Once
	globalRegistry *prometheus.Registry
)

// GetRegistry returns the process-wide prometheus registry used by every
// component registry. It is created lazily on first use.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		globalRegistry = prometheus.NewRegistry()
		globalRegistry.MustRegister(prometheus.NewGoCollector())
	})
	return globalRegistry
}

// CountBuckets is a shared histogram bucket layout for small counts.
var CountBuckets = []float64{1, 2, 4, 8, 16, 32, 64, 128, 256}

// ComponentRegistry namespaces metrics per component and registers them on
// the global registry.
type ComponentRegistry struct {
	subsystem string
	registry  *prometheus.Registry
}

// NewComponentRegistry creates a registry for the given component. An empty
// subsystem leaves metric names un-prefixed beyond the namespace.
func NewComponentRegistry(component, subsystem string) *ComponentRegistry {
	if subsystem == "" {
		subsystem = component
	}
	return &ComponentRegistry{
		subsystem: subsystem,
		registry:  GetRegistry(),
	}
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGauge(opts)
	r.registry.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGaugeVec(opts, labels)
	r.registry.MustRegister(g)
	return g
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounter(opts)
	r.registry.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounterVec(opts, labels)
	r.registry.MustRegister(c)
	return c
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	h := prometheus.NewHistogram(opts)
	r.registry.MustRegister(h)
	return h
}
