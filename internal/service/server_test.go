package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/internal/metrics"
	"github.com/edgecomet/detailwatch/internal/sink"
	"github.com/edgecomet/detailwatch/internal/watch"
	"github.com/edgecomet/detailwatch/pkg/types"
)

type fakeWatcher struct {
	status    watch.Status
	refreshes atomic.Int32
	refetches atomic.Int32
}

func (f *fakeWatcher) Status() watch.Status { return f.status }
func (f *fakeWatcher) RequestRefresh()      { f.refreshes.Add(1) }
func (f *fakeWatcher) RequestRefetch()      { f.refetches.Add(1) }

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*Server, *fakeWatcher, *sink.LatestStore, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	mc := metrics.NewMetricsCollectorWithRegistry("test", reg, zap.NewNop())
	w := &fakeWatcher{status: watch.Status{SessionID: "s-1", URL: "https://www.tiktok.com/@someone", Mode: "profile"}}
	latest := sink.NewLatestStore()
	s := NewServer(configtypes.ServerConfig{ID: "dw-1", Listen: "127.0.0.1:0"}, w, latest, mc, zap.NewNop())
	return s, w, latest, reg
}

func serve(t *testing.T, s *Server, method, path string) (*fasthttp.RequestCtx, envelope) {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	s.Handler()(ctx)

	var env envelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	return ctx, env
}

func requestCount(t *testing.T, reg *prometheus.Registry, endpoint, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "test_watcher_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, endpoint, status) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, endpoint, status string) bool {
	var gotEndpoint, gotStatus string
	for _, l := range m.GetLabel() {
		switch l.GetName() {
		case "endpoint":
			gotEndpoint = l.GetValue()
		case "status":
			gotStatus = l.GetValue()
		}
	}
	return gotEndpoint == endpoint && gotStatus == status
}

func TestLatest(t *testing.T) {
	s, _, latest, reg := newTestServer(t)

	ctx, env := serve(t, s, fasthttp.MethodGet, PathLatest)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.False(t, env.Success)

	fragment := `"webapp.video-detail":{"itemInfo":{"itemStruct":{"id":"v1"}}}`
	payload, err := extract.Parse(fragment, types.PageModeVideoOrPhoto)
	require.NoError(t, err)
	require.NoError(t, latest.Publish(context.Background(), &extract.Result{
		SessionID: "s-1",
		Mode:      "video",
		Source:    types.SourceFetch,
		Fragment:  fragment,
		Payload:   payload,
	}))

	ctx, env = serve(t, s, fasthttp.MethodGet, PathLatest)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, env.Success)

	var got extract.Result
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, fragment, got.Fragment)
	assert.Equal(t, types.SourceFetch, got.Source)
	require.NotNil(t, got.Payload)
	assert.Equal(t, "v1", got.Payload.Video.VideoID)

	assert.Equal(t, float64(1), requestCount(t, reg, PathLatest, "404"))
	assert.Equal(t, float64(1), requestCount(t, reg, PathLatest, "200"))
}

func TestHealth(t *testing.T) {
	orig := memoryReader
	t.Cleanup(func() { memoryReader = orig })

	s, w, latest, _ := newTestServer(t)
	until := time.Now().Add(5 * time.Second).UTC()
	w.status.RetryActive = true
	w.status.RetryUntil = until
	w.status.Navigations = 2
	require.NoError(t, latest.NavigationChanged(context.Background(), types.NavigationEvent{URL: "https://www.tiktok.com/@x", Trigger: types.TriggerPoll}))
	require.NoError(t, latest.Publish(context.Background(), &extract.Result{Fragment: "{}"}))
	require.NoError(t, latest.Publish(context.Background(), &extract.Result{Fragment: "{\"a\":1}"}))

	memoryReader = func() (*MemoryStats, error) {
		return &MemoryStats{TotalBytes: 8 << 30, AvailableBytes: 4 << 30, UsedPercent: 50}, nil
	}

	ctx, env := serve(t, s, fasthttp.MethodGet, PathHealth)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var health HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "dw-1", health.ServerID)
	assert.Equal(t, "s-1", health.SessionID)
	assert.Equal(t, "profile", health.Mode)
	assert.True(t, health.RetryActive)
	require.NotNil(t, health.RetryUntil)
	assert.True(t, until.Equal(*health.RetryUntil))
	assert.Nil(t, health.LastAccepted)
	assert.Equal(t, int64(2), health.Navigations)
	assert.Equal(t, int64(2), health.Delivered)
	require.NotNil(t, health.LastNavigation)
	assert.Equal(t, types.TriggerPoll, health.LastNavigation.Trigger)
	require.NotNil(t, health.Memory)
	assert.Equal(t, float64(50), health.Memory.UsedPercent)
}

func TestHealth_MemoryUnavailable(t *testing.T) {
	orig := memoryReader
	t.Cleanup(func() { memoryReader = orig })
	memoryReader = func() (*MemoryStats, error) { return nil, errors.New("no /proc") }

	s, _, _, _ := newTestServer(t)
	ctx, env := serve(t, s, fasthttp.MethodGet, PathHealth)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.NotContains(t, string(env.Data), `"memory"`)
	assert.NotContains(t, string(env.Data), `"retry_until"`)
}

func TestTriggers(t *testing.T) {
	s, w, _, _ := newTestServer(t)

	ctx, env := serve(t, s, fasthttp.MethodPost, PathRefresh)
	assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
	assert.True(t, env.Success)
	assert.Equal(t, "refresh scheduled", env.Message)

	ctx, _ = serve(t, s, fasthttp.MethodPost, PathRefetch)
	assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())

	assert.Equal(t, int32(1), w.refreshes.Load())
	assert.Equal(t, int32(1), w.refetches.Load())
}

func TestRouting(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		endpoint   string
	}{
		{"unknown path", fasthttp.MethodGet, "/render", fasthttp.StatusNotFound, "other"},
		{"refresh is POST only", fasthttp.MethodGet, PathRefresh, fasthttp.StatusMethodNotAllowed, PathRefresh},
		{"latest is GET only", fasthttp.MethodPost, PathLatest, fasthttp.StatusMethodNotAllowed, PathLatest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, w, _, reg := newTestServer(t)
			ctx, env := serve(t, s, tt.method, tt.path)
			assert.Equal(t, tt.wantStatus, ctx.Response.StatusCode())
			assert.False(t, env.Success)
			assert.Equal(t, float64(1), requestCount(t, reg, tt.endpoint, strconv.Itoa(tt.wantStatus)))
			assert.Zero(t, w.refreshes.Load())
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	require.NoError(t, s.Start())

	status, body, err := fasthttp.Get(nil, "http://"+s.Addr()+PathHealth)
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), `"session_id":"s-1"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestServer_StartInvalidListen(t *testing.T) {
	s := NewServer(configtypes.ServerConfig{ID: "dw-1", Listen: "not-a-port"}, &fakeWatcher{}, sink.NewLatestStore(), nil, zap.NewNop())
	assert.Error(t, s.Start())
	assert.Empty(t, s.Addr())
	assert.NoError(t, s.Shutdown(context.Background()))
}
