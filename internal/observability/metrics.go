package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialbench",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "serialbench",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialbench",
			Subsystem: "framing",
			Name:      "frames_total",
			Help:      "Frames emitted by the framer.",
		},
		[]string{"port", "strategy"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialbench",
			Subsystem: "framing",
			Name:      "bytes_total",
			Help:      "Bytes fed to or written by a session.",
		},
		[]string{"port", "direction"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialbench",
			Subsystem: "framing",
			Name:      "errors_total",
			Help:      "Framing errors by kind.",
		},
		[]string{"port", "kind"},
	)
	checksumMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serialbench",
			Subsystem: "checksum",
			Name:      "mismatch_total",
			Help:      "Received frames whose checksum trailer did not verify.",
		},
		[]string{"port", "algorithm"},
	)
	scriptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "serialbench",
			Subsystem: "script",
			Name:      "duration_seconds",
			Help:      "Framing script invocation time in seconds.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		},
		[]string{"port"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesTotal, bytesTotal, framingErrors, checksumMismatches, scriptDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(port, strategy string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(port, strategy).Inc()
}

func RecordBytes(port, direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	bytesTotal.WithLabelValues(port, direction).Add(float64(n))
}

func RecordFramingError(port, kind string) {
	RegisterMetrics()
	framingErrors.WithLabelValues(port, kind).Inc()
}

func RecordChecksumMismatch(port, algorithm string) {
	RegisterMetrics()
	checksumMismatches.WithLabelValues(port, algorithm).Inc()
}

func ObserveScript(port string, d time.Duration) {
	RegisterMetrics()
	scriptDuration.WithLabelValues(port).Observe(d.Seconds())
}
