// README: Prometheus counters and histograms for turn outcomes.
package turn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	turns          *prometheus.CounterVec
	fragments      prometheus.Counter
	extractSeconds prometheus.Histogram
	dropped        prometheus.Counter
	sessions       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmap",
			Name:      "turns_total",
			Help:      "Finished turns by terminal state.",
		}, []string{"state"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatmap",
			Name:      "stream_fragments_total",
			Help:      "Answer fragments received from the model.",
		}),
		extractSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatmap",
			Name:      "extract_duration_seconds",
			Help:      "Latency of the extraction call.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatmap",
			Name:      "dropped_locations_total",
			Help:      "Extracted locations rejected for invalid coordinates.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmap",
			Name:      "sessions",
			Help:      "Conversations currently held in memory.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.turns, m.fragments, m.extractSeconds, m.dropped, m.sessions)
	}
	return m
}

func (m *Metrics) turnFinished(s State) {
	if m != nil {
		m.turns.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) fragment() {
	if m != nil {
		m.fragments.Inc()
	}
}

func (m *Metrics) extractDone(d time.Duration) {
	if m != nil {
		m.extractSeconds.Observe(d.Seconds())
	}
}

func (m *Metrics) droppedLocations(n int) {
	if m != nil && n > 0 {
		m.dropped.Add(float64(n))
	}
}

func (m *Metrics) setSessions(n int) {
	if m != nil {
		m.sessions.Set(float64(n))
	}
}
