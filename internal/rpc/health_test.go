package rpc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evmRPCServer creates an httptest server that answers every request with
// blockNum as a hex result and counts the requests it served.
func evmRPCServer(t *testing.T, blockNum uint64, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"0x%x"}`, blockNum)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// slowServer answers only after delay.
func slowServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const deadURL = "http://127.0.0.1:19994"

// ---------------------------------------------------------------------------
// HealthCheck
// ---------------------------------------------------------------------------

func TestHealthCheckHealthy(t *testing.T) {
	srv := evmRPCServer(t, 1000, nil)

	ep, c, err := HealthCheck(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()

	assert.True(t, ep.Healthy)
	assert.True(t, ep.Checked)
	assert.Equal(t, srv.URL, ep.URL)
	assert.Equal(t, uint64(1000), ep.BlockNumber)
	assert.Greater(t, ep.Latency, time.Duration(0), "latency should be measured")
	assert.Equal(t, srv.URL, c.URL())
}

func TestHealthCheckUnreachable(t *testing.T) {
	ep, c, err := HealthCheck(context.Background(), deadURL, time.Second)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.False(t, ep.Healthy)
	assert.True(t, ep.Checked)
	assert.Equal(t, err, ep.Err)
}

func TestHealthCheckTimeout(t *testing.T) {
	srv := slowServer(t, 2*time.Second)

	start := time.Now()
	ep, c, err := HealthCheck(context.Background(), srv.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.False(t, ep.Healthy)
	assert.Less(t, time.Since(start), time.Second, "timeout should bound the check")
}

func TestHealthCheckCancelledContext(t *testing.T) {
	srv := evmRPCServer(t, 1000, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ep, c, err := HealthCheck(ctx, srv.URL, time.Second)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.False(t, ep.Healthy)
}
