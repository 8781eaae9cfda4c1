package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for gateway operations.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes uint64, err error)
	RecordOperation(op string, duration time.Duration, err error)
}

// PrometheusObserver exports gateway metrics to Prometheus.
type PrometheusObserver struct {
	duration    *prometheus.HistogramVec
	failures    *prometheus.CounterVec
	uploadBytes prometheus.Counter
}

// NewPrometheusObserver registers operation latency, failure and upload size metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "trigger_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	observer := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of storage gateway operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed storage gateway operations.",
		}, []string{"operation"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully uploaded to the storage account.",
		}),
	}

	if err := reg.Register(observer.duration); err != nil {
		existing, ok := alreadyRegistered[*prometheus.HistogramVec](err)
		if !ok {
			return nil, fmt.Errorf("register storage histogram: %w", err)
		}
		observer.duration = existing
	}
	if err := reg.Register(observer.failures); err != nil {
		existing, ok := alreadyRegistered[*prometheus.CounterVec](err)
		if !ok {
			return nil, fmt.Errorf("register storage error counter: %w", err)
		}
		observer.failures = existing
	}
	if err := reg.Register(observer.uploadBytes); err != nil {
		existing, ok := alreadyRegistered[prometheus.Counter](err)
		if !ok {
			return nil, fmt.Errorf("register uploaded bytes counter: %w", err)
		}
		observer.uploadBytes = existing
	}
	return observer, nil
}

// RecordUpload tracks upload duration, size and failures.
func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes uint64, err error) {
	if o == nil {
		return
	}
	o.RecordOperation("upload", duration, err)
	if err == nil {
		o.uploadBytes.Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordOperation(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.failures.WithLabelValues(op).Inc()
	}
}

func alreadyRegistered[T prometheus.Collector](err error) (T, bool) {
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		existing, ok := are.ExistingCollector.(T)
		return existing, ok
	}
	var zero T
	return zero, false
}

type nopObserver struct{}

func (nopObserver) RecordUpload(time.Duration, uint64, error) {}

func (nopObserver) RecordOperation(string, time.Duration, error) {}
