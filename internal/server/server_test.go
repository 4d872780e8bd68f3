// ABOUTME: HTTP API tests with a stub scan service.
// ABOUTME: Covers request validation, findings filtering, and the websocket stream.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jfeddern/ScanRelay/internal/events"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type stubService struct {
	scans   map[string]*types.ScanStatus
	started []types.ScanRequest
}

func newStubService() *stubService {
	return &stubService{scans: make(map[string]*types.ScanStatus)}
}

func (s *stubService) StartScan(ctx context.Context, req types.ScanRequest) (*types.ScanStatus, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.started = append(s.started, req)
	return &types.ScanStatus{
		ScanID: "scan-new",
		Target: req.DisplayTarget(),
		Progress: []*types.AgentProgress{
			{Agent: types.AgentStatic, Status: types.StatusPending},
		},
	}, nil
}

func (s *stubService) GetStatus(scanID string) (*types.ScanStatus, error) {
	scan, ok := s.scans[scanID]
	if !ok {
		return nil, errors.New("not found")
	}
	return scan, nil
}

func (s *stubService) ListScans() ([]*types.ScanStatus, error) {
	var scans []*types.ScanStatus
	for _, scan := range s.scans {
		scans = append(scans, scan)
	}
	return scans, nil
}

func (s *stubService) SearchScans(target string, limit int) ([]*types.ScanStatus, error) {
	var scans []*types.ScanStatus
	for _, scan := range s.scans {
		if strings.Contains(scan.Target, target) {
			scans = append(scans, scan)
		}
		if limit > 0 && len(scans) == limit {
			break
		}
	}
	return scans, nil
}

func testServer(t *testing.T) (*stubService, *events.Hub, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	service := newStubService()
	hub := events.NewHub(logger)
	mux := http.NewServeMux()
	New(service, hub, logger).Register(mux)

	srv := httptest.NewServer(SecurityMiddleware(mux))
	t.Cleanup(srv.Close)
	return service, hub, srv
}

func TestStartScanEndpoint(t *testing.T) {
	service, _, srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/scans", "application/json",
		strings.NewReader(`{"repo_url": "https://github.com/acme/web-app.git"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	var scan types.ScanStatus
	if err := json.NewDecoder(resp.Body).Decode(&scan); err != nil {
		t.Fatal(err)
	}
	if scan.ScanID != "scan-new" {
		t.Errorf("scan_id = %s", scan.ScanID)
	}
	if len(scan.Progress) != 1 || scan.Progress[0].Status != types.StatusPending {
		t.Errorf("initial progress = %+v", scan.Progress)
	}
	if len(service.started) != 1 {
		t.Errorf("started scans = %d, want 1", len(service.started))
	}
}

func TestStartScanRejectsBadRequests(t *testing.T) {
	_, _, srv := testServer(t)

	for name, payload := range map[string]string{
		"malformed json": `{`,
		"no sources":     `{}`,
	} {
		resp, err := http.Post(srv.URL+"/api/scans", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestGetScanNotFound(t *testing.T) {
	_, _, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/api/scans/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFindingsFiltering(t *testing.T) {
	service, _, srv := testServer(t)
	service.scans["scan-1"] = &types.ScanStatus{
		ScanID: "scan-1",
		Findings: []types.Finding{
			{ID: "f1", Severity: types.SeverityCritical},
			{ID: "f2", Severity: types.SeverityLow},
			{ID: "f3", Severity: types.SeverityCritical},
		},
	}

	get := func(query string) (int, []types.Finding) {
		resp, err := http.Get(srv.URL + "/api/scans/scan-1/findings" + query)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var body struct {
			Findings []types.Finding `json:"findings"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body.Findings
	}

	code, findings := get("")
	if code != 200 || len(findings) != 3 {
		t.Errorf("unfiltered: code=%d findings=%d", code, len(findings))
	}

	code, findings = get("?severity=critical")
	if code != 200 || len(findings) != 2 {
		t.Errorf("severity filter: code=%d findings=%d", code, len(findings))
	}

	code, findings = get("?severity=critical&limit=1")
	if code != 200 || len(findings) != 1 {
		t.Errorf("limit: code=%d findings=%d", code, len(findings))
	}

	code, _ = get("?severity=bogus")
	if code != 400 {
		t.Errorf("invalid severity: code=%d, want 400", code)
	}

	code, _ = get("?limit=zero")
	if code != 400 {
		t.Errorf("invalid limit: code=%d, want 400", code)
	}
}

func TestWebsocketStreamsSnapshotThenEvents(t *testing.T) {
	service, hub, srv := testServer(t)
	service.scans["scan-1"] = &types.ScanStatus{ScanID: "scan-1", Target: "https://app.example.com"}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/scans/scan-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// The wire shape is {scan_id, status}; decode raw to pin the keys
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snapshot struct {
		ScanID string            `json:"scan_id"`
		Status *types.ScanStatus `json:"status"`
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.ScanID != "scan-1" || snapshot.Status == nil || snapshot.Status.ScanID != "scan-1" {
		t.Fatalf("unexpected snapshot: %s", raw)
	}

	// A publish after connect must reach the subscriber. The hub may not
	// have registered the connection yet, so retry briefly.
	go func() {
		for i := 0; i < 50; i++ {
			if hub.SubscriberCount("scan-1") > 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		hub.Publish(&types.ScanStatus{ScanID: "scan-1", Logs: []string{"progress"}})
	}()

	var update events.Event
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.ScanID != "scan-1" || update.Status == nil || len(update.Status.Logs) != 1 {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestListScansSearch(t *testing.T) {
	service, _, srv := testServer(t)
	service.scans["scan-1"] = &types.ScanStatus{ScanID: "scan-1", Target: "https://github.com/acme/web-app.git"}
	service.scans["scan-2"] = &types.ScanStatus{ScanID: "scan-2", Target: "https://app.example.com"}

	resp, err := http.Get(srv.URL + "/api/scans?target=acme")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Scans []types.ScanStatus `json:"scans"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Scans) != 1 || body.Scans[0].ScanID != "scan-1" {
		t.Errorf("search result = %+v", body.Scans)
	}

	bad, err := http.Get(srv.URL + "/api/scans?target=acme&limit=-1")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid limit status = %d, want 400", bad.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, _, srv := testServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
