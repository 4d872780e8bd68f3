// ABOUTME: Parser for ffuf content-discovery JSON output into canonical findings.
// ABOUTME: Uses the last valid JSON blob from stdout since ffuf may emit several.

package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jfeddern/ScanRelay/internal/types"
)

type ffufReport struct {
	Results []ffufResult `json:"results"`
}

type ffufResult struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Length int    `json:"length"`
}

// ParseFfuf converts ffuf stdout into canonical findings. ffuf may emit
// multiple JSON blobs on one stream; the last valid one wins.
// Malformed or empty payloads yield an empty list, never an error.
func ParseFfuf(raw []byte) []types.Finding {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil
	}

	var report *ffufReport
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var candidate ffufReport
		if err := json.Unmarshal([]byte(line), &candidate); err == nil {
			report = &candidate
		}
	}
	if report == nil {
		return nil
	}

	var findings []types.Finding
	for idx, result := range report.Results {
		findings = append(findings, types.Finding{
			ID:          fmt.Sprintf("ffuf-%d", idx+1),
			Title:       fmt.Sprintf("Discovered path: %s", result.URL),
			Severity:    types.SeverityMedium,
			Description: "ffuf discovered a reachable endpoint while fuzzing",
			Remediation: "Ensure sensitive paths enforce authentication and rate limiting.",
			SourceAgent: types.AgentFuzzer,
			Metadata: map[string]any{
				"url":    result.URL,
				"status": result.Status,
				"length": result.Length,
			},
		})
	}
	return findings
}
