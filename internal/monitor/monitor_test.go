package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/db"
	"github.com/banshee-data/obstacle.report/internal/vision"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
	"github.com/banshee-data/obstacle.report/internal/vision/l5decision"
	"github.com/banshee-data/obstacle.report/internal/vision/pipeline"
)

type noopDetector struct{}

func (noopDetector) Detect(ctx context.Context, frame *vision.GrayImage) (pipeline.DetectorOutput, error) {
	return pipeline.DetectorOutput{}, nil
}

func testWebServer(t *testing.T) *WebServer {
	t.Helper()

	cfg := config.Default()
	coordinator := l5decision.NewCoordinator(cfg.Radar, cfg.Decision, l5decision.NewBrakeInterface())
	engine, err := pipeline.NewEngine(pipeline.EngineOptions{
		Config:      cfg,
		Detector:    noopDetector{},
		Coordinator: coordinator,
	})
	require.NoError(t, err)

	return NewWebServer(WebServerConfig{
		Address: "127.0.0.1:0",
		Engine:  engine,
		Config:  cfg,
	})
}

func sampleObjects() []l2fusion.FusedObject {
	return []l2fusion.FusedObject{
		{Class: "person", Depth: 2.4, Position: l2fusion.Position{X: -0.5, Z: 2.4}, RiskLevel: l2fusion.RiskDanger, RiskScore: 0.9},
		{Class: "car", Depth: 7.1, Position: l2fusion.Position{X: 1.2, Z: 7.1}, RiskLevel: l2fusion.RiskSafe, RiskScore: 0.1},
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ws := testWebServer(t)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReflectsLastCycle(t *testing.T) {
	t.Parallel()

	ws := testWebServer(t)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	require.NoError(t, ws.RecordCycle(&pipeline.CycleResult{
		Objects:   sampleObjects(),
		Directive: l5decision.BrakeDirective{ShouldBrake: true, BrakeLevel: 1.0, Reason: l5decision.ReasonObstacle},
	}))

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Stats     pipeline.StatsSnapshot `json:"stats"`
		LastCycle *pipeline.CycleResult  `json:"last_cycle"`
		Clients   int                    `json:"websocket_clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.NotNil(t, status.LastCycle)
	assert.Len(t, status.LastCycle.Objects, 2)
	assert.True(t, status.LastCycle.Directive.ShouldBrake)
	assert.Equal(t, 0, status.Clients)
}

func TestConfigEndpoint(t *testing.T) {
	t.Parallel()

	ws := testWebServer(t)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var cfg config.EngineConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, config.Default().Risk.SafeDistance, cfg.Risk.SafeDistance)
}

func TestRiskChartWithoutRecording(t *testing.T) {
	t.Parallel()

	ws := testWebServer(t)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/charts/risk")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBEVEndpointRendersPNG(t *testing.T) {
	t.Parallel()

	ws := testWebServer(t)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	require.NoError(t, ws.RecordCycle(&pipeline.CycleResult{Objects: sampleObjects()}))

	resp, err := http.Get(srv.URL + "/bev.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.NotZero(t, img.Bounds().Dx())
}

func TestWebsocketReceivesBroadcast(t *testing.T) {
	t.Parallel()

	ws := testWebServer(t)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens in the upgrade handler; wait for it to land.
	require.Eventually(t, func() bool { return ws.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, ws.RecordCycle(&pipeline.CycleResult{
		Directive: l5decision.BrakeDirective{ShouldBrake: true, BrakeLevel: 0.5, Reason: l5decision.ReasonTTCEmergency},
	}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got pipeline.CycleResult
	require.NoError(t, conn.ReadJSON(&got))
	assert.True(t, got.Directive.ShouldBrake)
	assert.Equal(t, l5decision.ReasonTTCEmergency, got.Directive.Reason)
}

func TestHubDropsClosedClients(t *testing.T) {
	t.Parallel()

	ws := testWebServer(t)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ws.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	// Two broadcasts: the first may still hit OS buffers, the second
	// must observe the write failure and evict the client.
	require.Eventually(t, func() bool {
		ws.hub.Broadcast(map[string]string{"ping": "1"})
		return ws.hub.ClientCount() == 0
	}, 2*time.Second, 50*time.Millisecond)
}

func TestRiskTimelineHTML(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	html, err := RiskTimelineHTML([]db.RiskSample{
		{Timestamp: base, Score: 0.1},
		{Timestamp: base.Add(150 * time.Millisecond), Score: 0.45},
		{Timestamp: base.Add(300 * time.Millisecond), Score: 0.9},
	})
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
	assert.Contains(t, string(html), "Collision risk")
}

func TestRenderBEVEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderBEV(nil, 10.0, &buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.NotZero(t, img.Bounds().Dx())
}
