package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbirk/yarmi/pkg/frame"
)

func TestMetricsCountFramesAndFaults(t *testing.T) {

	metrics := NewMetrics(prometheus.NewRegistry())

	s, peer := newPipeSession(t, nil, ConnConfig{
		Metrics: metrics,
		Dispatcher: DispatcherFunc(func(ctx context.Context, body []byte) error {
			switch string(body) {
			case "bad":
				return errors.New("bad body")
			case "unknown":
				ConnFromContext(ctx).OnProtocolError(1, 1, "unknown call id")
				return nil
			}
			return ConnFromContext(ctx).SendMessage(body)
		}),
	})
	require.NoError(t, s.Start())

	writeFrames(peer, "hello", "bad", "unknown", "world")

	for _, expected := range []string{"hello", "world"} {
		body, err := frame.ReadFrame(peer, 0)
		require.NoError(t, err)
		assert.Equal(t, expected, string(body))
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.framesRead.WithLabelValues(RoleSession)))
	assert.Equal(t, float64(4*frame.HeaderSize+len("hello")+len("bad")+len("unknown")+len("world")),
		testutil.ToFloat64(metrics.bytesRead.WithLabelValues(RoleSession)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.faults.WithLabelValues(RoleSession, faultDispatch)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.faults.WithLabelValues(RoleSession, faultTransport)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.protocolFaults.WithLabelValues(RoleSession)))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.framesWritten.WithLabelValues(RoleSession)) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(2*frame.HeaderSize+len("hello")+len("world")),
		testutil.ToFloat64(metrics.bytesWritten.WithLabelValues(RoleSession)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.queuedWrites.WithLabelValues(RoleSession)))
}

func TestMetricsTransportFault(t *testing.T) {

	metrics := NewMetrics(prometheus.NewRegistry())
	s, peer := newPipeSession(t, nil, ConnConfig{
		Metrics: metrics,
	})
	require.NoError(t, s.Start())

	peer.Close()
	s.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.faults.WithLabelValues(RoleSession, faultTransport)))
}

func TestNilMetricsRecordNothing(t *testing.T) {

	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.frameRead(RoleClient, 10)
		metrics.written(RoleClient, 10)
		metrics.fault(RoleClient, faultTransport)
		metrics.protocolFault(RoleClient)
		metrics.dropped(RoleClient)
		metrics.queueDelta(RoleClient, 1)
	})
}

func TestMetricsRegisterOnce(t *testing.T) {

	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() {
		NewMetrics(reg)
	})
}
