// Package metrics provides the Prometheus recorder and the OpenTelemetry
// trace exporter behind the engine's observation hooks.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insdata/temposync/internal/config"
	"github.com/insdata/temposync/internal/domain/model"
	"github.com/insdata/temposync/internal/support/logger"
)

// PrometheusRecorder implements engine.Metrics on a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	taskDurationSeconds *prometheus.HistogramVec
	taskStatusCounter   *prometheus.CounterVec

	chunkDurationSeconds *prometheus.HistogramVec
	chunkOutcomeCounter  *prometheus.CounterVec

	rowsInsertedCounter *prometheus.CounterVec
	rowsUpdatedCounter  *prometheus.CounterVec
}

// NewPrometheusRecorder builds the recorder and registers all collectors,
// including the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		taskDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "temposync_task_duration_seconds",
			Help:    "Duration of sync task executions.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"dataset", "status"}),
		taskStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "temposync_task_total",
			Help: "Total sync task executions by terminal status.",
		}, []string{"dataset", "status"}),
		chunkDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "temposync_chunk_duration_seconds",
			Help:    "Duration of chunk processing.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dataset", "outcome"}),
		chunkOutcomeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "temposync_chunk_total",
			Help: "Total processed chunks by outcome.",
		}, []string{"dataset", "outcome"}),
		rowsInsertedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "temposync_rows_inserted_total",
			Help: "Total fact rows newly inserted.",
		}, []string{"dataset"}),
		rowsUpdatedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "temposync_rows_updated_total",
			Help: "Total fact rows updated in place.",
		}, []string{"dataset"}),
	}

	registry.MustRegister(r.taskDurationSeconds)
	registry.MustRegister(r.taskStatusCounter)
	registry.MustRegister(r.chunkDurationSeconds)
	registry.MustRegister(r.chunkOutcomeCounter)
	registry.MustRegister(r.rowsInsertedCounter)
	registry.MustRegister(r.rowsUpdatedCounter)
	return r
}

// Registry returns the underlying Prometheus registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// TaskStarted implements engine.Metrics.
func (r *PrometheusRecorder) TaskStarted(dataset string) {
	r.taskStatusCounter.WithLabelValues(dataset, "started").Inc()
}

// TaskFinished implements engine.Metrics.
func (r *PrometheusRecorder) TaskFinished(dataset string, status model.TaskStatus, elapsed time.Duration) {
	r.taskStatusCounter.WithLabelValues(dataset, string(status)).Inc()
	r.taskDurationSeconds.WithLabelValues(dataset, string(status)).Observe(elapsed.Seconds())
}

// ChunkObserved implements engine.Metrics.
func (r *PrometheusRecorder) ChunkObserved(dataset, outcome string, elapsed time.Duration) {
	r.chunkOutcomeCounter.WithLabelValues(dataset, outcome).Inc()
	r.chunkDurationSeconds.WithLabelValues(dataset, outcome).Observe(elapsed.Seconds())
}

// RowsWritten implements engine.Metrics.
func (r *PrometheusRecorder) RowsWritten(dataset string, inserted, updated int64) {
	r.rowsInsertedCounter.WithLabelValues(dataset).Add(float64(inserted))
	r.rowsUpdatedCounter.WithLabelValues(dataset).Add(float64(updated))
}

// Server exposes the registry over HTTP at /metrics.
type Server struct {
	cfg config.MetricsConfig
	srv *http.Server
}

// NewServer builds the exposition server; it is inert when disabled.
func NewServer(cfg config.MetricsConfig, recorder *PrometheusRecorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))
	return &Server{
		cfg: cfg,
		srv: &http.Server{Addr: cfg.ListenAddr, Handler: mux},
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	if !s.cfg.Enabled {
		return
	}
	go func() {
		logger.Infof("metrics exposition listening on %s", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed: %v", err)
		}
	}()
}

// Stop shuts the exposition server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
