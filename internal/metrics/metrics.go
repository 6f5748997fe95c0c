package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_requests_total",
			Help: "Total number of widget API requests executed",
		},
		[]string{"endpoint", "status", "blocked", "block_src"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trends_request_duration_seconds",
			Help:    "Duration of widget API requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_retries_total",
			Help: "Total retry attempts by failure kind",
		},
		[]string{"kind"},
	)

	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_items_total",
			Help: "Processed input items by terminal state",
		},
		[]string{"state", "cause"},
	)

	EmptyWidgetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trends_empty_widgets_total",
			Help: "Widget fetches that degraded to an empty section",
		},
		[]string{"widget"},
	)
)

// RecordRequest updates the request metrics for one transport attempt.
func RecordRequest(endpoint string, status int, blocked bool, blockSrc string, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	blockedStr := "false"
	if blocked {
		blockedStr = "true"
	}
	RequestsTotal.WithLabelValues(endpoint, statusStr, blockedStr, blockSrc).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRetry counts one consumed retry attempt.
func RecordRetry(kind string) {
	RetriesTotal.WithLabelValues(kind).Inc()
}

// RecordItem counts one input item reaching a terminal state.
func RecordItem(state, cause string) {
	ItemsTotal.WithLabelValues(state, cause).Inc()
}

// RecordEmptyWidget counts a widget section emitted empty.
func RecordEmptyWidget(widget string) {
	EmptyWidgetsTotal.WithLabelValues(widget).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
