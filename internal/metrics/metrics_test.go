// ABOUTME: Tests for the scrape-time metrics handler.
// ABOUTME: Asserts on the rendered exposition text from a stub scan lister.

package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type stubLister struct {
	scans []*types.ScanStatus
	err   error
}

func (s *stubLister) ListScans() ([]*types.ScanStatus, error) {
	return s.scans, s.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func scrape(t *testing.T, lister ScanLister) (int, string) {
	t.Helper()
	handler := Handler(lister, testLogger())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Code, rec.Body.String()
}

func TestMetricsExposition(t *testing.T) {
	lister := &stubLister{scans: []*types.ScanStatus{
		{
			ScanID:    "scan-1",
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Progress: []*types.AgentProgress{
				{Agent: types.AgentStatic, Status: types.StatusCompleted},
				{Agent: types.AgentReport, Status: types.StatusRunning},
			},
			Findings: []types.Finding{
				{Severity: types.SeverityCritical},
				{Severity: types.SeverityCritical},
				{Severity: types.SeverityLow},
			},
		},
		{
			ScanID:    "scan-2",
			CreatedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
			Progress: []*types.AgentProgress{
				{Agent: types.AgentStatic, Status: types.StatusCompleted},
			},
		},
	}}

	code, body := scrape(t, lister)
	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}

	expectations := []string{
		`scanrelay_scans{state="running"} 1`,
		`scanrelay_scans{state="done"} 1`,
		`scanrelay_agent_status{agent="static",status="completed"} 2`,
		`scanrelay_agent_status{agent="report",status="running"} 1`,
		`scanrelay_findings{severity="critical"} 2`,
		`scanrelay_findings{severity="low"} 1`,
	}
	for _, want := range expectations {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}

	if !strings.Contains(body, "scanrelay_last_scan_created_timestamp_seconds") {
		t.Error("last scan timestamp metric missing")
	}
}

func TestMetricsListerFailure(t *testing.T) {
	code, _ := scrape(t, &stubLister{err: errors.New("db closed")})
	if code != 500 {
		t.Errorf("status = %d, want 500", code)
	}
}

func TestMetricsEmptyState(t *testing.T) {
	code, body := scrape(t, &stubLister{})
	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}
	if strings.Contains(body, `scanrelay_scans{`) {
		t.Error("no scan series expected with no scans")
	}
}
