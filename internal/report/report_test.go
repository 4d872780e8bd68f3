// ABOUTME: Unit tests for markdown and PDF report rendering.
// ABOUTME: Checks severity ordering, summaries, and output files.

package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jfeddern/ScanRelay/internal/types"
)

func sampleInput() Input {
	return Input{
		ScanID:      "scan-123",
		Target:      "https://github.com/acme/web-app.git",
		Mode:        "deep",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Findings: []types.Finding{
			{ID: "f1", Title: "Outdated dependency", Severity: types.SeverityMedium, SourceAgent: types.AgentDependency, Description: "lodash 4.17.15"},
			{ID: "f2", Title: "Hardcoded AWS key", Severity: types.SeverityCritical, SourceAgent: types.AgentSecret, Remediation: "Rotate the key"},
			{ID: "f3", Title: "Missing CSP header", Severity: types.SeverityLow, SourceAgent: types.AgentDAST},
		},
	}
}

func TestRenderMarkdownOrdersBySeverity(t *testing.T) {
	md := RenderMarkdown(sampleInput())

	critical := strings.Index(md, "Hardcoded AWS key")
	medium := strings.Index(md, "Outdated dependency")
	low := strings.Index(md, "Missing CSP header")
	if critical == -1 || medium == -1 || low == -1 {
		t.Fatal("report is missing findings")
	}
	if !(critical < medium && medium < low) {
		t.Error("findings should be ordered critical > medium > low")
	}

	if !strings.Contains(md, "| critical | 1 |") {
		t.Error("severity table should count 1 critical")
	}
	if !strings.Contains(md, "scan-123") {
		t.Error("report should carry the scan id")
	}
	if !strings.Contains(md, "Rotate the key") {
		t.Error("remediation should be rendered")
	}
}

func TestRenderMarkdownEmptyScan(t *testing.T) {
	in := Input{ScanID: "scan-0", Target: "https://app.example.com", GeneratedAt: time.Now()}
	md := RenderMarkdown(in)

	if !strings.Contains(md, "No findings were reported.") {
		t.Error("empty scan should say so")
	}
	if !strings.Contains(md, "completed without findings") {
		t.Error("fallback summary should mention the clean result")
	}
}

func TestRenderMarkdownUsesProvidedSummary(t *testing.T) {
	in := sampleInput()
	in.Summary = "Custom executive summary text."

	if !strings.Contains(RenderMarkdown(in), "Custom executive summary text.") {
		t.Error("provided summary should override the fallback")
	}
}

func TestWriteMarkdownAndPDF(t *testing.T) {
	dir := t.TempDir()
	in := sampleInput()

	mdPath, err := WriteMarkdown(in, dir)
	if err != nil {
		t.Fatalf("WriteMarkdown failed: %v", err)
	}
	if _, err := os.Stat(mdPath); err != nil {
		t.Errorf("markdown file missing: %v", err)
	}

	pdfPath, err := WritePDF(in, dir)
	if err != nil {
		t.Fatalf("WritePDF failed: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatalf("pdf file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF") {
		t.Error("pdf output should start with %PDF header")
	}
}

func TestCountBySeverity(t *testing.T) {
	counts := CountBySeverity(sampleInput().Findings)
	if counts[types.SeverityCritical] != 1 || counts[types.SeverityMedium] != 1 || counts[types.SeverityLow] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}
