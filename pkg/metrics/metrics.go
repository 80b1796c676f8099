package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds all Prometheus metrics for blurs and service jobs.
type Metrics struct {
	Blurs        *prometheus.CounterVec
	BlurDuration prometheus.Histogram
	Bands        prometheus.Counter
	Pixels       prometheus.Counter
	Jobs         *prometheus.CounterVec
}

// New creates and registers all metrics with the provided registry.
func New(reg prometheus.Registerer) *Metrics {
	blurs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boxblur_blurs_total",
		Help: "Total blur calls by result",
	}, []string{"result"})

	blurDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "boxblur_blur_duration_seconds",
		Help:    "Time spent in a single blur call",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	bands := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boxblur_bands_total",
		Help: "Total row bands handed to workers",
	})

	pixels := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boxblur_pixels_total",
		Help: "Total pixels blurred successfully",
	})

	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boxblur_jobs_total",
		Help: "Total queued image jobs processed by result",
	}, []string{"result"})

	reg.MustRegister(blurs, blurDuration, bands, pixels, jobs)

	return &Metrics{
		Blurs:        blurs,
		BlurDuration: blurDuration,
		Bands:        bands,
		Pixels:       pixels,
		Jobs:         jobs,
	}
}

// ObserveBlur implements blur.Observer.
func (m *Metrics) ObserveBlur(bands, pixels int, duration time.Duration, err error) {
	m.BlurDuration.Observe(duration.Seconds())
	m.Bands.Add(float64(bands))
	if err != nil {
		m.Blurs.WithLabelValues(resultError).Inc()
		return
	}
	m.Blurs.WithLabelValues(resultSuccess).Inc()
	m.Pixels.Add(float64(pixels))
}

// ObserveJob counts one processed queue job.
func (m *Metrics) ObserveJob(err error) {
	if err != nil {
		m.Jobs.WithLabelValues(resultError).Inc()
		return
	}
	m.Jobs.WithLabelValues(resultSuccess).Inc()
}
