// Package monitor serves the engine's HTTP interface: health and status
// endpoints, the live websocket feed, the risk timeline chart and the
// bird's-eye-view render.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/db"
	"github.com/banshee-data/obstacle.report/internal/httputil"
	"github.com/banshee-data/obstacle.report/internal/monitoring"
	"github.com/banshee-data/obstacle.report/internal/units"
	"github.com/banshee-data/obstacle.report/internal/version"
	"github.com/banshee-data/obstacle.report/internal/vision/l2fusion"
	"github.com/banshee-data/obstacle.report/internal/vision/l5decision"
	"github.com/banshee-data/obstacle.report/internal/vision/pipeline"
)

// WebServerConfig contains the web server's dependencies. DB and RunID are
// optional; without them the chart endpoint reports 404.
type WebServerConfig struct {
	Address string
	Engine  *pipeline.Engine
	Config  config.EngineConfig
	DB      *db.DB
	RunID   string
}

// WebServer handles the HTTP monitoring interface.
type WebServer struct {
	address string
	engine  *pipeline.Engine
	cfg     config.EngineConfig
	db      *db.DB
	runID   string
	hub     *Hub
	server  *http.Server

	mu   sync.Mutex
	last *pipeline.CycleResult
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address: cfg.Address,
		engine:  cfg.Engine,
		cfg:     cfg.Config,
		db:      cfg.DB,
		runID:   cfg.RunID,
		hub:     NewHub(),
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

// RecordCycle stores the result for the status endpoints and pushes it to
// websocket clients. It implements the pipeline's CycleRecorder so the web
// view can be wired as a cycle sink alongside persistence.
func (ws *WebServer) RecordCycle(result *pipeline.CycleResult) error {
	ws.mu.Lock()
	ws.last = result
	ws.mu.Unlock()

	ws.hub.Broadcast(result)
	return nil
}

// Handler returns the route mux, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start runs the HTTP server until ctx is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("monitor: http server listening on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("monitor: http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		return ws.server.Close()
	}
	ws.hub.Close()
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/config", ws.handleConfig)
	mux.HandleFunc("/charts/risk", ws.handleRiskChart)
	mux.HandleFunc("/bev.png", ws.handleBEV)
	mux.HandleFunc("/ws", ws.hub.HandleWS)

	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("monitor: admin routes unavailable: %v", err)
		}
	}
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

// statusResponse is the /api/status payload. Speeds are metres per second
// unless the units query parameter requested a display conversion.
type statusResponse struct {
	RunID     string                    `json:"run_id,omitempty"`
	Units     string                    `json:"units"`
	Stats     pipeline.StatsSnapshot    `json:"stats"`
	Directive l5decision.BrakeDirective `json:"directive"`
	LastCycle *pipeline.CycleResult     `json:"last_cycle,omitempty"`
	Clients   int                       `json:"websocket_clients"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	last := ws.last
	ws.mu.Unlock()

	unit := units.MPS
	if q := r.URL.Query().Get("units"); q != "" {
		if !units.IsValid(q) {
			httputil.WriteJSONError(w, http.StatusBadRequest, "unknown units "+q)
			return
		}
		unit = q
	}
	if last != nil && unit != units.MPS {
		converted := *last
		converted.Objects = append([]l2fusion.FusedObject(nil), last.Objects...)
		for i := range converted.Objects {
			converted.Objects[i].RadarVelocity = units.ConvertSpeed(converted.Objects[i].RadarVelocity, unit)
		}
		last = &converted
	}

	resp := statusResponse{
		RunID:     ws.runID,
		Units:     unit,
		Stats:     ws.engine.Stats(),
		Directive: ws.engine.LastDirective(),
		LastCycle: last,
		Clients:   ws.hub.ClientCount(),
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (ws *WebServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, ws.cfg)
}

func (ws *WebServer) handleRiskChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil || ws.runID == "" {
		httputil.WriteJSONError(w, http.StatusNotFound, "no run recording active")
		return
	}
	samples, err := ws.db.RiskHistory(ws.runID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	html, err := RiskTimelineHTML(samples)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (ws *WebServer) handleBEV(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	last := ws.last
	ws.mu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	if last == nil {
		if err := RenderBEV(nil, ws.cfg.Fusion.MaxDepth, w); err != nil {
			monitoring.Logf("monitor: bev render: %v", err)
		}
		return
	}
	if err := RenderBEV(last.Objects, ws.cfg.Fusion.MaxDepth, w); err != nil {
		monitoring.Logf("monitor: bev render: %v", err)
	}
}
