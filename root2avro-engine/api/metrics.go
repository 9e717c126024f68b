package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VanDung-dev/root2avro/root2avro-engine/core"
)

// Metrics holds all Prometheus metrics of the conversion service. It
// implements core.Observer.
type Metrics struct {
	// Row metrics
	RowsTotal   prometheus.Counter
	RowsFailed  prometheus.Counter
	RowLatency  prometheus.Histogram
	RowsWritten prometheus.Counter
	RowsSkipped prometheus.Counter

	// Conversion metrics
	ConversionsTotal  *prometheus.CounterVec
	ConversionLatency prometheus.Histogram
	SequencerHeld     prometheus.Histogram

	// Transport metrics
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RequestBytes      prometheus.Histogram
	ConnectionsActive prometheus.Gauge
	AuthFailures      prometheus.Counter
}

var _ core.Observer = (*Metrics)(nil)

// NewMetrics creates metrics with the given namespace registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RowsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Total number of rows projected",
		}),
		RowsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_failed_total",
			Help:      "Total number of rows that failed projection",
		}),
		RowLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "row_latency_seconds",
			Help:      "Row projection latency in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		RowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Total number of records written",
		}),
		RowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Total number of rows dropped from partial output",
		}),

		ConversionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Total conversions by status",
		}, []string{"status"}),
		ConversionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_latency_seconds",
			Help:      "Conversion latency in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		}),
		SequencerHeld: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sequencer_max_held",
			Help:      "Largest number of records held back for ordering per conversion",
			Buckets:   []float64{0, 1, 4, 16, 64, 256, 1024},
		}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests by transport and status",
		}, []string{"transport", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration by transport",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
		RequestBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_bytes",
			Help:      "Size of Arrow request payloads",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open TCP connections",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total failed authentication attempts",
		}),
	}
}

// ObserveRow records one row projection.
func (m *Metrics) ObserveRow(ok bool, d time.Duration) {
	m.RowsTotal.Inc()
	m.RowLatency.Observe(d.Seconds())
	if !ok {
		m.RowsFailed.Inc()
	}
}

// ObserveConversion records a finished conversion.
func (m *Metrics) ObserveConversion(stats core.Stats, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ConversionsTotal.WithLabelValues(status).Inc()
	m.ConversionLatency.Observe(stats.Duration.Seconds())
	m.RowsWritten.Add(float64(stats.Written))
	m.RowsSkipped.Add(float64(stats.Skipped))
	m.SequencerHeld.Observe(float64(stats.Sequencer.MaxHeld))
}

// RecordRequest records a transport request.
func (m *Metrics) RecordRequest(transport string, size int, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(transport, status).Inc()
	m.RequestDuration.WithLabelValues(transport).Observe(duration.Seconds())
	m.RequestBytes.Observe(float64(size))
}

// MetricsServer runs an HTTP server exposing /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a new metrics server on the given address serving
// the metrics of gatherer.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the HTTP handler of the server.
func (s *MetricsServer) Handler() http.Handler { return s.server.Handler }

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop gracefully stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
