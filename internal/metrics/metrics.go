package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	lifecyclePhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tbox",
			Subsystem: "lifecycle",
			Name:      "phase",
			Help:      "Current lifecycle phase (1 = active phase, 0 = inactive).",
		}, []string{"phase"},
	)
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbox",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Number of lifecycle phase transitions.",
		}, []string{"from", "to"},
	)
	taskExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbox",
			Subsystem: "lifecycle",
			Name:      "task_exits_total",
			Help:      "Completions of the execution task by exit code.",
		}, []string{"code"},
	)
	shutdowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbox",
			Subsystem: "lifecycle",
			Name:      "shutdown_total",
			Help:      "Shutdowns by triggering reason.",
		}, []string{"reason"},
	)
	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tbox",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Key-value store operations by result.",
		}, []string{"op", "result"},
	)
	storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tbox",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in key-value store operations, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops,
// even when they pass a different registerer.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{lifecyclePhase, lifecycleTransitions, taskExits, shutdowns, storeOps, storeOpDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

// SetPhase marks phase as the single active phase among known.
func SetPhase(phase string, known []string) {
	if !regOK.Load() {
		return
	}
	for _, p := range known {
		v := 0.0
		if p == phase {
			v = 1
		}
		lifecyclePhase.WithLabelValues(p).Set(v)
	}
}

func RecordTransition(from, to string) {
	if regOK.Load() {
		lifecycleTransitions.WithLabelValues(from, to).Inc()
	}
}

func RecordTaskExit(code int) {
	if regOK.Load() {
		taskExits.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func RecordShutdown(reason string) {
	if regOK.Load() {
		shutdowns.WithLabelValues(reason).Inc()
	}
}

func RecordStoreOp(op string, err error, seconds float64) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOps.WithLabelValues(op, result).Inc()
	storeOpDuration.WithLabelValues(op).Observe(seconds)
}
