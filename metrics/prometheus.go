package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace         = "mobius_worker"
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) int64
}

func newCounter(name, help string, value func(Snapshot) int64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		value: value,
	}
}

// Exporter publishes a Collector's counters to Prometheus. Values are
// read from a fresh Snapshot on every scrape.
type Exporter struct {
	collector *Collector
	counters  []counterDesc
	info      *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter creates an exporter over c.
func NewExporter(c *Collector) *Exporter {
	return &Exporter{
		collector: c,
		counters: []counterDesc{
			newCounter("sessions_started_total", "Sessions started.", func(s Snapshot) int64 { return s.SessionsStarted }),
			newCounter("sessions_completed_total", "Sessions that reached END_OF_STREAM.", func(s Snapshot) int64 { return s.SessionsCompleted }),
			newCounter("sessions_failed_total", "Sessions that ended in a fault.", func(s Snapshot) int64 { return s.SessionsFailed }),
			newCounter("sessions_truncated_total", "Sessions whose input closed before END_OF_DATA_SECTION.", func(s Snapshot) int64 { return s.SessionsTruncated }),
			newCounter("records_in_total", "Input records decoded.", func(s Snapshot) int64 { return s.RecordsIn }),
			newCounter("records_out_total", "Output records written.", func(s Snapshot) int64 { return s.RecordsOut }),
			newCounter("bytes_in_total", "Bytes read from the transport.", func(s Snapshot) int64 { return s.BytesIn }),
			newCounter("bytes_out_total", "Bytes written to the transport.", func(s Snapshot) int64 { return s.BytesOut }),
			newCounter("frame_decode_errors_total", "Frames that failed to decode.", func(s Snapshot) int64 { return s.FrameDecodeErrors }),
			newCounter("broadcasts_added_total", "Broadcast variables added.", func(s Snapshot) int64 { return s.BroadcastsAdded }),
			newCounter("broadcasts_removed_total", "Broadcast variables removed.", func(s Snapshot) int64 { return s.BroadcastsRemoved }),
			newCounter("accumulator_updates_total", "Accumulator updates reported.", func(s Snapshot) int64 { return s.AccumulatorUpdates }),
			newCounter("state_keys_timed_out_total", "State keys evicted by timeout.", func(s Snapshot) int64 { return s.StateKeysTimedOut }),
			newCounter("checkpoint_write_success_total", "Successful checkpoint write calls.", func(s Snapshot) int64 { return s.CheckpointWriteSuccess }),
			newCounter("checkpoint_write_failure_total", "Failed checkpoint write calls.", func(s Snapshot) int64 { return s.CheckpointWriteFailure }),
		},
		info: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "info"),
			"Worker dimensions.",
			[]string{"transport", "mode", "worker_id"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range e.counters {
		ch <- c.desc
	}
	ch <- e.info
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.collector.Snapshot()
	for _, c := range e.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(s)))
	}
	ch <- prometheus.MustNewConstMetric(e.info, prometheus.GaugeValue, 1, s.Transport, s.Mode, s.WorkerID)
}

// NewRegistry returns a private registry holding an exporter over c.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewExporter(c))
	return reg
}

// Handler returns the router serving /metrics and /healthz.
func Handler(c *Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(NewRegistry(c), promhttp.HandlerOpts{}))
	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}

// Serve runs the metrics server on ln until ctx is cancelled.
func Serve(ctx context.Context, ln net.Listener, c *Collector) error {
	srv := &http.Server{
		Handler:           Handler(c),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
