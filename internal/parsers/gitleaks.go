// ABOUTME: Parser for gitleaks detect JSON output into canonical findings.
// ABOUTME: Every leaked secret is reported at critical severity.

package parsers

import (
	"encoding/json"
	"fmt"

	"github.com/jfeddern/ScanRelay/internal/types"
)

type gitleaksEntry struct {
	RuleID      string `json:"RuleID"`
	Rule        string `json:"rule"`
	Description string `json:"Description"`
	File        string `json:"File"`
	StartLine   int    `json:"StartLine"`
}

// ParseGitleaks converts gitleaks JSON output into canonical findings.
// Malformed or empty payloads yield an empty list, never an error.
func ParseGitleaks(raw []byte) []types.Finding {
	var entries []gitleaksEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	var findings []types.Finding
	for idx, entry := range entries {
		rule := entry.RuleID
		if rule == "" {
			rule = entry.Rule
		}
		if rule == "" {
			rule = "gitleaks finding"
		}
		description := entry.Description
		if description == "" {
			description = "Secret detected by gitleaks"
		}
		findings = append(findings, types.Finding{
			ID:          fmt.Sprintf("gitleaks-%d", idx+1),
			Title:       rule,
			Severity:    types.SeverityCritical,
			Description: description,
			Remediation: "Rotate the credential and add secret scanning pre-commit hooks.",
			SourceAgent: types.AgentSecret,
			Metadata: map[string]any{
				"file": entry.File,
				"line": entry.StartLine,
				"rule": rule,
			},
		})
	}
	return findings
}
