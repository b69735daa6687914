package trackers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes the latest value and step of every series as
// Prometheus gauges labelled by series name.
type Prometheus struct {
	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	steps    *prometheus.GaugeVec
}

// NewPrometheus returns a new Prometheus Recorder with its own registry.
// Metric names are prefixed by namespace.
func NewPrometheus(namespace string) (*Prometheus, error) {
	values := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "series_value",
		Help:      "Latest recorded value of a training series.",
	}, []string{"name"})
	steps := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "series_step",
		Help:      "Step (episode or update index) of the latest value.",
	}, []string{"name"})

	registry := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{values, steps} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Prometheus{
		registry: registry,
		values:   values,
		steps:    steps,
	}, nil
}

// Record implements the Recorder interface
func (p *Prometheus) Record(name string, value float64, step int) {
	p.values.WithLabelValues(name).Set(value)
	p.steps.WithLabelValues(name).Set(float64(step))
}

// Registry returns the registry holding the gauges
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler serving the gauges in the Prometheus
// exposition format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
