// ABOUTME: Parser for semgrep JSON output into canonical findings.
// ABOUTME: Maps semgrep ERROR/WARNING severities onto the canonical scale.

package parsers

import (
	"encoding/json"
	"fmt"

	"github.com/jfeddern/ScanRelay/internal/types"
)

type semgrepReport struct {
	Results []semgrepResult `json:"results"`
}

type semgrepResult struct {
	CheckID string `json:"check_id"`
	Path    string `json:"path"`
	Start   struct {
		Line int `json:"line"`
		Col  int `json:"col"`
	} `json:"start"`
	Extra struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"extra"`
}

// ParseSemgrep converts semgrep JSON output into canonical findings.
// Malformed or empty payloads yield an empty list, never an error.
func ParseSemgrep(raw []byte) []types.Finding {
	var report semgrepReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil
	}

	var findings []types.Finding
	for idx, result := range report.Results {
		title := result.CheckID
		if title == "" {
			title = "semgrep finding"
		}
		findings = append(findings, types.Finding{
			ID:          fmt.Sprintf("semgrep-%d", idx+1),
			Title:       title,
			Severity:    types.ParseSeverity(result.Extra.Severity),
			Description: result.Extra.Message,
			Remediation: "Review code referenced by the semgrep rule.",
			SourceAgent: types.AgentStatic,
			Metadata: map[string]any{
				"path": result.Path,
				"line": result.Start.Line,
			},
		})
	}
	return findings
}
