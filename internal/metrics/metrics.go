// Package metrics exposes the worker's optional Prometheus endpoint:
// three series covering total verifications, checkpoints emitted, and
// per-worker-slot progress. It is never required - the HTTP listener
// only starts when --metrics-addr (or the TOML config's metrics_addr)
// is set, matching spec.md's "no persistent state / no external
// requirement" posture.
//
// Construction follows the factory-per-registry shape used throughout
// the pack's Prometheus integration (see DESIGN.md): a package-level
// default registry for production use, an explicit registry for
// tests.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the worker's exported series.
type Metrics struct {
	tried            prometheus.Gauge
	checkpointsTotal prometheus.Counter
	perWorkerTried   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default
// Prometheus registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against reg,
// so tests can use a private registry and avoid collisions with other
// packages' metrics.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tried: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crack_worker_tried",
			Help: "Cumulative candidate verifications performed by the current job, as of the last checkpoint.",
		}),
		checkpointsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "crack_worker_checkpoints_total",
			Help: "Total CHECKPOINT messages emitted by this worker process.",
		}),
		perWorkerTried: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crack_worker_per_worker_tried",
			Help: "Verifications performed by each worker-pool slot, as of the last checkpoint.",
		}, []string{"slot"}),
	}
}

// ObserveCheckpoint records one checkpoint: the cumulative tried count
// and the per-slot snapshot that accompanied it. Checkpoint tried
// values are already monotonically increasing (spec.md §4.4), so the
// gauge is simply set rather than accumulated.
func (m *Metrics) ObserveCheckpoint(tried int64, perWorkerTried []int64) {
	if m == nil {
		return
	}
	m.checkpointsTotal.Inc()
	m.tried.Set(float64(tried))
	for slot, n := range perWorkerTried {
		m.perWorkerTried.WithLabelValues(slotLabel(slot)).Set(float64(n))
	}
}

// Handler returns the HTTP handler serving /metrics in the Prometheus
// text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServe starts a minimal HTTP server exposing /metrics on
// addr and blocks until ctx is cancelled or the listener fails. It is
// meant to be run in its own goroutine by cmd/worker when
// --metrics-addr is set.
func ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func slotLabel(slot int) string {
	return strconv.Itoa(slot)
}
