package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusObserverRecordsGatewayOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer, err := NewPrometheusObserver("test", reg)
	require.NoError(t, err)

	g := newTestGateway(t, newCountingStore(t), WithObserver(observer))
	ctx := context.Background()

	_, err = g.UploadText(ctx, "12345", "c", "o")
	require.NoError(t, err)
	_, err = g.DownloadText(ctx, "c", "missing")
	require.Error(t, err)

	assert.Equal(t, float64(5), testutil.ToFloat64(observer.uploadBytes))
	assert.Equal(t, float64(1), testutil.ToFloat64(observer.failures.WithLabelValues("download_text")))
	assert.Equal(t, float64(0), testutil.ToFloat64(observer.failures.WithLabelValues("upload")))
}

func TestNewPrometheusObserverReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusObserver("test", reg)
	require.NoError(t, err)
	second, err := NewPrometheusObserver("test", reg)
	require.NoError(t, err)

	second.RecordOperation("delete", time.Millisecond, errors.New("x"))
	assert.Equal(t, float64(1), testutil.ToFloat64(first.failures.WithLabelValues("delete")))
}

func TestNilPrometheusObserverIsSafe(t *testing.T) {
	var o *PrometheusObserver
	assert.NotPanics(t, func() {
		o.RecordUpload(time.Second, 10, nil)
		o.RecordOperation("probe", time.Second, nil)
	})
}
