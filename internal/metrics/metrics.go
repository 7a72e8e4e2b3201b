// Package metrics exposes decode loop health as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/christian-lee/ft8mon/internal/cycle"
	"github.com/christian-lee/ft8mon/internal/report"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	cycles      *prometheus.CounterVec // by outcome
	decodes     prometheus.Counter     // distinct decodes
	duplicates  prometheus.Counter     // engine reports collapsed by dedup
	lastTally   prometheus.Gauge
	lastCycle   prometheus.Gauge // unix time of the last decoded cycle
	decodeTime  prometheus.Histogram
	acquireTime prometheus.Histogram
	snr         prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ft8mon_cycles_total",
			Help: "Cycles processed, by outcome (decoded, skipped, failed).",
		}, []string{"outcome"}),
		decodes: f.NewCounter(prometheus.CounterOpts{
			Name: "ft8mon_decodes_total",
			Help: "Distinct messages decoded.",
		}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "ft8mon_duplicate_reports_total",
			Help: "Engine reports of a message already decoded in the same cycle.",
		}),
		lastTally: f.NewGauge(prometheus.GaugeOpts{
			Name: "ft8mon_last_cycle_decodes",
			Help: "Distinct messages in the most recent decoded cycle.",
		}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Name: "ft8mon_last_cycle_timestamp_seconds",
			Help: "Start of the most recent decoded cycle.",
		}),
		decodeTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ft8mon_decode_duration_seconds",
			Help:    "Wall time spent in the decode engine per cycle.",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 4, 5, 7.5, 10, 15},
		}),
		acquireTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ft8mon_acquire_duration_seconds",
			Help:    "Time to fetch the cycle window from the sample source.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		snr: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ft8mon_decode_snr_db",
			Help:    "Reported SNR of distinct decodes.",
			Buckets: prometheus.LinearBuckets(-24, 4, 12),
		}),
	}
}

// ObserveCycle implements cycle.Observer.
func (m *Metrics) ObserveCycle(res cycle.CycleResult) {
	m.cycles.WithLabelValues(res.Outcome.String()).Inc()
	if res.Outcome == cycle.Skipped {
		return
	}
	m.acquireTime.Observe(res.Acquire.Seconds())
	// A failed pass can still have emitted decodes.
	m.decodes.Add(float64(res.Decodes))
	m.duplicates.Add(float64(res.Duplicates))
	if res.Outcome != cycle.Decoded {
		return
	}
	m.lastTally.Set(float64(res.Decodes))
	m.decodeTime.Observe(res.Elapsed.Seconds())
	if !res.CycleStart.IsZero() {
		m.lastCycle.Set(float64(res.CycleStart.Unix()))
	}
}

// Emit implements cycle.Emitter.
func (m *Metrics) Emit(d report.Decode) {
	m.snr.Observe(d.Record.SNR)
}

// Registry is the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
