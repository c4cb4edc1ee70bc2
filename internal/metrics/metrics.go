package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/sleepwatch/internal/domain/detection"
)

const namespace = "sleepwatch"

// Metrics holds the watcher's collectors on a private registry.
type Metrics struct {
	// registry holds every collector below.
	registry *prometheus.Registry

	alarmStarts      prometheus.Counter
	alarmStops       prometheus.Counter
	alarmPlaying     prometheus.Gauge
	tonesScheduled   prometheus.Counter
	toneFailures     prometheus.Counter
	audioUnavailable prometheus.Counter
	detections       *prometheus.CounterVec
	classifyDuration prometheus.Histogram
	skippedTicks     prometheus.Counter
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		alarmStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_starts_total",
			Help:      "Times the alarm went from idle to playing",
		}),
		alarmStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_stops_total",
			Help:      "Times the alarm went from playing to idle",
		}),
		alarmPlaying: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_playing",
			Help:      "1 while the alarm pattern repeats",
		}),
		tonesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tones_scheduled_total",
			Help:      "Tones handed to the audio context",
		}),
		toneFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tone_failures_total",
			Help:      "Tones the audio context refused",
		}),
		audioUnavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_unavailable_total",
			Help:      "Times the engine entered degraded mode",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detection results by status",
		}, []string{"status"}),
		classifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Round trip of one capture and classification",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Poll ticks skipped because a request was outstanding",
		}),
	}

	m.registry.MustRegister(
		m.alarmStarts,
		m.alarmStops,
		m.alarmPlaying,
		m.tonesScheduled,
		m.toneFailures,
		m.audioUnavailable,
		m.detections,
		m.classifyDuration,
		m.skippedTicks,
	)

	// Pre-create status series so dashboards see zeros.
	for _, status := range []detection.Status{detection.StatusSleeping, detection.StatusAwake, detection.StatusError} {
		m.detections.WithLabelValues(string(status))
	}

	return m
}

// AlarmStarted implements alarm.Observer.
func (m *Metrics) AlarmStarted() {
	m.alarmStarts.Inc()
	m.alarmPlaying.Set(1)
}

// AlarmStopped implements alarm.Observer.
func (m *Metrics) AlarmStopped() {
	m.alarmStops.Inc()
	m.alarmPlaying.Set(0)
}

// ToneScheduled implements alarm.Observer.
func (m *Metrics) ToneScheduled() {
	m.tonesScheduled.Inc()
}

// ToneFailed implements alarm.Observer.
func (m *Metrics) ToneFailed() {
	m.toneFailures.Inc()
}

// AudioUnavailable implements alarm.Observer.
func (m *Metrics) AudioUnavailable() {
	m.audioUnavailable.Inc()
}

// ObserveDetection counts a result and records how long it took.
func (m *Metrics) ObserveDetection(result *detection.Result, elapsed time.Duration) {
	m.detections.WithLabelValues(string(result.Status)).Inc()
	m.classifyDuration.Observe(elapsed.Seconds())
}

// TickSkipped counts a poll tick dropped by single-flight.
func (m *Metrics) TickSkipped() {
	m.skippedTicks.Inc()
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
