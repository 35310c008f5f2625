// Package metrics exposes Prometheus metrics for the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "housebot"

type Provider struct {
	reg *prometheus.Registry

	updates        *prometheus.CounterVec
	updateDuration prometheus.Histogram
	lookups        *prometheus.CounterVec
	geocodes       *prometheus.CounterVec
	comparisons    *prometheus.CounterVec
	expired        prometheus.Counter
}

func NewProvider(version string) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info for this binary (value is always 1).",
		},
		[]string{"version"},
	)
	if version == "" {
		version = "dev"
	}
	build.WithLabelValues(version).Set(1)

	p := &Provider{
		reg: reg,
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates by outcome.",
		}, []string{"result"}),
		updateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Time spent handling one update.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Nearest building lookups by query source and outcome.",
		}, []string{"source", "result"}),
		geocodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Address geocoding attempts by outcome.",
		}, []string{"result"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Completed comparison flows by outcome.",
		}, []string{"result"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Comparison flows reset after being idle too long.",
		}),
	}
	reg.MustRegister(build, p.updates, p.updateDuration, p.lookups, p.geocodes, p.comparisons, p.expired)
	return p
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (p *Provider) GaugeFunc(name, help string, fn func() float64) {
	p.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveUpdate records one handled update. result is one of handled,
// failed, panicked or dropped.
func (p *Provider) ObserveUpdate(result string, d time.Duration) {
	p.updates.WithLabelValues(result).Inc()
	if d > 0 {
		p.updateDuration.Observe(d.Seconds())
	}
}

func (p *Provider) ObserveLookup(source, result string) {
	p.lookups.WithLabelValues(source, result).Inc()
}

func (p *Provider) ObserveGeocode(result string) {
	p.geocodes.WithLabelValues(result).Inc()
}

func (p *Provider) ObserveComparison(result string) {
	p.comparisons.WithLabelValues(result).Inc()
}

func (p *Provider) AddExpired(n int) {
	p.expired.Add(float64(n))
}
