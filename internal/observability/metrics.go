package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"

	// LabelOther replaces label values the arbiter controls but that are
	// outside the known set.
	LabelOther = "other"
)

var (
	knownTypes = map[string]bool{
		"LOGIN": true, "LOGIN/SUCCESS": true, "LOGIN/FAILURE": true,
		"START": true, "MOVE": true, "NEXT": true, "END": true, "INVALID": true,
	}
	knownResults = map[string]bool{"1-0": true, "0-1": true, "1/2-1/2": true}
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grebe",
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames read from or written to the arbiter.",
		},
		[]string{"direction"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grebe",
			Subsystem: "wire",
			Name:      "frame_bytes_total",
			Help:      "Body bytes carried by frames, prefix excluded.",
		},
		[]string{"direction"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grebe",
			Subsystem: "wire",
			Name:      "messages_total",
			Help:      "Decoded messages by type.",
		},
		[]string{"direction", "type"},
	)
	wireErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grebe",
			Subsystem: "wire",
			Name:      "errors_total",
			Help:      "Framing, format and connection failures.",
		},
		[]string{"kind"},
	)
	games = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grebe",
			Subsystem: "session",
			Name:      "games_total",
			Help:      "Games ended by the arbiter, by result.",
		},
		[]string{"result"},
	)
	loginDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grebe",
			Subsystem: "session",
			Name:      "login_duration_seconds",
			Help:      "Time from LOGIN sent to START received.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, frameBytes, messages, wireErrors, games, loginDuration)
	})
}

func RecordFrame(direction string, bodyLen int) {
	RegisterMetrics()
	frames.WithLabelValues(direction).Inc()
	frameBytes.WithLabelValues(direction).Add(float64(bodyLen))
}

func RecordMessage(direction, messageType string) {
	RegisterMetrics()
	messages.WithLabelValues(direction, boundLabel(knownTypes, messageType)).Inc()
}

func RecordWireError(kind string) {
	RegisterMetrics()
	wireErrors.WithLabelValues(kind).Inc()
}

func RecordGameEnd(result string) {
	RegisterMetrics()
	games.WithLabelValues(boundLabel(knownResults, result)).Inc()
}

func RecordLogin(outcome string, duration time.Duration) {
	RegisterMetrics()
	loginDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func boundLabel(known map[string]bool, value string) string {
	if known[value] {
		return value
	}
	return LabelOther
}
