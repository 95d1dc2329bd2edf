// Package metrics exposes tool call metrics in Prometheus format.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for hybridfs_tool_calls_total.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder owns a private registry so tests and multiple servers in one
// process never collide on the default one.
type Recorder struct {
	registry *prometheus.Registry

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	filesScanned prometheus.Counter
}

// NewRecorder creates and registers all collectors.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridfs_tool_calls_total",
			Help: "Total number of tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)
	r.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hybridfs_tool_duration_seconds",
			Help:    "Tool call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)
	r.filesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hybridfs_search_files_scanned_total",
		Help: "Files examined by directory searches",
	})

	for _, c := range []prometheus.Collector{r.toolCalls, r.toolDuration, r.filesScanned} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return r, nil
}

// ObserveCall records one finished tool call.
func (r *Recorder) ObserveCall(tool string, elapsed time.Duration, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.toolCalls.WithLabelValues(tool, outcome).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// FilesScanned adds n to the directory search file counter. Its signature
// matches the search engine's scan observer.
func (r *Recorder) FilesScanned(n int) {
	if n > 0 {
		r.filesScanned.Add(float64(n))
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry at /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
