package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tooldeck/internal/domain"
	"tooldeck/internal/infra/catalog"
	"tooldeck/internal/infra/health"
)

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}

func startServer(t *testing.T, opts HTTPServerOptions) (string, context.CancelFunc, chan error) {
	t.Helper()
	port := freePort(t)
	opts.Addr = fmt.Sprintf("127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- StartHTTPServer(ctx, opts, zap.NewNop())
	}()
	// Wait for server to start
	time.Sleep(100 * time.Millisecond)
	return "http://" + opts.Addr, cancel, errChan
}

func TestStartHTTPServer_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.ObserveCall("Echo", nil, 5*time.Millisecond)

	base, cancel, errChan := startServer(t, HTTPServerOptions{
		EnableMetrics: true,
		Registry:      registry,
	})
	defer cancel()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tooldeck_call_duration_seconds")

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestStartHTTPServer_HealthzDegraded(t *testing.T) {
	tracker := health.NewTracker(zap.NewNop())
	tracker.RecordFailure("Browser", errors.New("chromium binary not found"))
	tracker.RecordSuccess("Echo")

	base, cancel, _ := startServer(t, HTTPServerOptions{Health: tracker})
	defer cancel()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "degraded", report.Status)
	require.Len(t, report.Unhealthy, 1)
	assert.Equal(t, "Browser", report.Unhealthy[0].Name)
}

func TestStartHTTPServer_ToolsEndpoint(t *testing.T) {
	store := catalog.NewStore()
	require.NoError(t, store.Load([]domain.ToolSpec{
		{Name: "Echo", Type: "echo", Category: "core"},
		{Name: "Fetch", Type: "http_request", Category: "net"},
	}, domain.LoadMerge))

	base, cancel, _ := startServer(t, HTTPServerOptions{Catalog: store})
	defer cancel()

	resp, err := http.Get(base + "/tools?category=net")
	require.NoError(t, err)
	defer resp.Body.Close()

	var specs []domain.ToolSpec
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&specs))
	require.Len(t, specs, 1)
	assert.Equal(t, "Fetch", specs[0].Name)
}

func TestStartHTTPServer_PortInUse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	addr := listener.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = StartHTTPServer(ctx, HTTPServerOptions{Addr: addr}, zap.NewNop())
	require.Error(t, err)
}
