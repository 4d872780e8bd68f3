// ABOUTME: Scan report rendering to markdown and PDF.
// ABOUTME: Findings are grouped by severity, highest first.

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/jfeddern/ScanRelay/internal/types"
)

// Input carries everything a report needs from a finished scan
type Input struct {
	ScanID      string
	Target      string
	Mode        string
	GeneratedAt time.Time
	Findings    []types.Finding

	// Summary is an optional LLM-written executive summary. When empty the
	// renderer falls back to a counting summary.
	Summary string
}

var severityOrder = []types.Severity{
	types.SeverityCritical,
	types.SeverityHigh,
	types.SeverityMedium,
	types.SeverityLow,
	types.SeverityInfo,
}

// CountBySeverity tallies findings per canonical severity
func CountBySeverity(findings []types.Finding) map[types.Severity]int {
	counts := make(map[types.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

func sortedFindings(findings []types.Finding) []types.Finding {
	sorted := append([]types.Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})
	return sorted
}

func fallbackSummary(in Input) string {
	counts := CountBySeverity(in.Findings)
	if len(in.Findings) == 0 {
		return fmt.Sprintf("The scan of %s completed without findings.", in.Target)
	}
	parts := make([]string, 0, len(severityOrder))
	for _, sev := range severityOrder {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
		}
	}
	return fmt.Sprintf("The scan of %s produced %d findings: %s.", in.Target, len(in.Findings), strings.Join(parts, ", "))
}

// RenderMarkdown produces the full markdown report
func RenderMarkdown(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Security Scan Report\n\n")
	fmt.Fprintf(&b, "- **Scan ID:** %s\n", in.ScanID)
	fmt.Fprintf(&b, "- **Target:** %s\n", in.Target)
	if in.Mode != "" {
		fmt.Fprintf(&b, "- **Mode:** %s\n", in.Mode)
	}
	fmt.Fprintf(&b, "- **Generated:** %s\n\n", in.GeneratedAt.UTC().Format(time.RFC3339))

	b.WriteString("## Executive Summary\n\n")
	summary := in.Summary
	if summary == "" {
		summary = fallbackSummary(in)
	}
	b.WriteString(summary)
	b.WriteString("\n\n")

	b.WriteString("## Findings by Severity\n\n")
	b.WriteString("| Severity | Count |\n|---|---|\n")
	counts := CountBySeverity(in.Findings)
	for _, sev := range severityOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", sev, counts[sev])
	}
	b.WriteString("\n")

	b.WriteString("## Findings\n\n")
	if len(in.Findings) == 0 {
		b.WriteString("No findings were reported.\n")
		return b.String()
	}

	for i, f := range sortedFindings(in.Findings) {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, f.Title)
		fmt.Fprintf(&b, "- **Severity:** %s\n", f.Severity)
		fmt.Fprintf(&b, "- **Source:** %s\n", f.SourceAgent)
		if f.ID != "" {
			fmt.Fprintf(&b, "- **ID:** %s\n", f.ID)
		}
		b.WriteString("\n")
		if f.Description != "" {
			b.WriteString(f.Description)
			b.WriteString("\n\n")
		}
		if f.Remediation != "" {
			fmt.Fprintf(&b, "**Remediation:** %s\n\n", f.Remediation)
		}
		for _, ref := range f.References {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
		if len(f.References) > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteMarkdown renders the report and writes it under dir.
// Returns the written path.
func WriteMarkdown(in Input, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("scan-report-%s.md", in.ScanID))
	if err := os.WriteFile(path, []byte(RenderMarkdown(in)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// WritePDF renders the report as a PDF under dir. Returns the written path.
func WritePDF(in Input, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Security Scan Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Security Scan Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Scan ID: "+in.ScanID, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Target: "+in.Target, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Generated: "+in.GeneratedAt.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Executive Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	summary := in.Summary
	if summary == "" {
		summary = fallbackSummary(in)
	}
	pdf.MultiCell(0, 5, summary, "", "L", false)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Findings by Severity", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	counts := CountBySeverity(in.Findings)
	for _, sev := range severityOrder {
		pdf.CellFormat(60, 6, string(sev), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", counts[sev]), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Findings", "", 1, "L", false, 0, "")
	for i, f := range sortedFindings(in.Findings) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, fmt.Sprintf("%d. [%s] %s", i+1, strings.ToUpper(string(f.Severity)), f.Title), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, "Source: "+string(f.SourceAgent), "", 1, "L", false, 0, "")
		if f.Description != "" {
			pdf.MultiCell(0, 5, f.Description, "", "L", false)
		}
		if f.Remediation != "" {
			pdf.MultiCell(0, 5, "Remediation: "+f.Remediation, "", "L", false)
		}
		pdf.Ln(3)
	}

	path := filepath.Join(dir, fmt.Sprintf("scan-report-%s.pdf", in.ScanID))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", err
	}
	return path, nil
}
