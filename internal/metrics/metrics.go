package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/hyperlend-runner/internal/retry"
)

const namespace = "hyperlend"

// Recorder owns a private registry so that several runs (and tests) in one
// process never collide on metric names.
type Recorder struct {
	reg *prometheus.Registry

	results  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rpcCalls *prometheus.CounterVec
	captcha  *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "results_total",
			Help:      "Finished wallet tasks by operation and status",
		}, []string{"op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Wall time of one wallet task",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"op"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "JSON-RPC round trips by method and outcome class",
		}, []string{"method", "class"}),
		captcha: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "captcha",
			Name:      "solves_total",
			Help:      "Captcha solve attempts by outcome",
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "in_flight",
			Help:      "Wallet tasks currently holding a gate slot",
		}),
	}
	r.reg.MustRegister(
		r.results, r.duration, r.rpcCalls, r.captcha, r.inFlight,
		collectors.NewGoCollector(),
	)
	return r
}

// TaskDone records one finished task.
func (r *Recorder) TaskDone(op, status string, took time.Duration) {
	r.results.WithLabelValues(op, status).Inc()
	r.duration.WithLabelValues(op).Observe(took.Seconds())
}

// RPCCall fits chain.Options.OnCall.
func (r *Recorder) RPCCall(method string, err error) {
	class := "ok"
	if err != nil {
		class = string(retry.Classify(err).Class)
	}
	r.rpcCalls.WithLabelValues(method, class).Inc()
}

// CaptchaSolve fits captcha.Config.OnSolve.
func (r *Recorder) CaptchaSolve(outcome string) {
	r.captcha.WithLabelValues(outcome).Inc()
}

func (r *Recorder) SetInFlight(n int) { r.inFlight.Set(float64(n)) }

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("metrics server shutdown: %v", err)
		}
	}()

	log.Infof("metrics listening on %s", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
