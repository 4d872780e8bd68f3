// ABOUTME: HTTP API for submitting scans, reading results, and streaming updates.
// ABOUTME: Websocket subscribers get a snapshot on connect, then live hub events.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/jfeddern/ScanRelay/internal/events"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

// ScanService is the orchestrator surface the API exposes
type ScanService interface {
	StartScan(ctx context.Context, req types.ScanRequest) (*types.ScanStatus, error)
	GetStatus(scanID string) (*types.ScanStatus, error)
	ListScans() ([]*types.ScanStatus, error)
	SearchScans(target string, limit int) ([]*types.ScanStatus, error)
}

// Server handles the REST and websocket API
type Server struct {
	service  ScanService
	hub      *events.Hub
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// New creates the API server
func New(service ScanService, hub *events.Hub, logger *logrus.Logger) *Server {
	return &Server{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browser dashboard connects cross-origin in development
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Register mounts all API routes on the mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scans", s.handleStartScan)
	mux.HandleFunc("GET /api/scans", s.handleListScans)
	mux.HandleFunc("GET /api/scans/{id}", s.handleGetScan)
	mux.HandleFunc("GET /api/scans/{id}/findings", s.handleGetFindings)
	mux.HandleFunc("GET /ws/scans/{id}", s.handleWebsocket)
	mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req types.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scan, err := s.service.StartScan(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.WithFields(logrus.Fields{
		"component": "server",
		"scan_id":   scan.ScanID,
		"target":    req.DisplayTarget(),
	}).Info("Scan accepted")

	writeJSON(w, http.StatusAccepted, scan)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	var scans []*types.ScanStatus
	var err error

	if target := r.URL.Query().Get("target"); target != "" {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit: "+raw)
				return
			}
		}
		scans, err = s.service.SearchScans(target, limit)
	} else {
		scans, err = s.service.ListScans()
	}
	if err != nil {
		s.logger.WithError(err).WithField("component", "server").Error("Failed to list scans")
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if scans == nil {
		scans = []*types.ScanStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.service.GetStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleGetFindings(w http.ResponseWriter, r *http.Request) {
	scan, err := s.service.GetStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}

	findings := scan.Findings

	if raw := r.URL.Query().Get("severity"); raw != "" {
		severity := types.Severity(raw)
		if severity.Rank() == 0 {
			writeError(w, http.StatusBadRequest, "invalid severity: "+raw)
			return
		}
		var filtered []types.Finding
		for _, f := range findings {
			if f.Severity == severity {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		if limit < len(findings) {
			findings = findings[:limit]
		}
	}

	if findings == nil {
		findings = []types.Finding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id":  scan.ScanID,
		"findings": findings,
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	scanID := r.PathValue("id")
	scan, err := s.service.GetStatus(scanID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).WithField("component", "server").Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribe before sending the snapshot so no update is lost in between
	ch, cancel := s.hub.Subscribe(scanID)
	defer cancel()

	if err := conn.WriteJSON(events.Event{ScanID: scanID, Status: scan}); err != nil {
		return
	}

	// Drain client frames so close and ping control messages are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SecurityMiddleware sets baseline security headers on every response
func SecurityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
