// ABOUTME: Parser for trivy filesystem scan JSON output into canonical findings.
// ABOUTME: Normalizes vulnerability titles, severities, and fix guidance per package.

package parsers

import (
	"encoding/json"

	"github.com/jfeddern/ScanRelay/internal/types"
)

type trivyReport struct {
	Results []trivyResult `json:"Results"`
}

type trivyResult struct {
	Target          string               `json:"Target"`
	Vulnerabilities []trivyVulnerability `json:"Vulnerabilities"`
}

type trivyVulnerability struct {
	VulnerabilityID  string   `json:"VulnerabilityID"`
	PkgName          string   `json:"PkgName"`
	InstalledVersion string   `json:"InstalledVersion"`
	FixedVersion     string   `json:"FixedVersion"`
	Title            string   `json:"Title"`
	Description      string   `json:"Description"`
	Severity         string   `json:"Severity"`
	PrimaryURL       string   `json:"PrimaryURL"`
	References       []string `json:"References"`
}

// ParseTrivy converts trivy JSON output into canonical findings.
// Malformed or empty payloads yield an empty list, never an error.
func ParseTrivy(raw []byte) []types.Finding {
	var report trivyReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil
	}

	var findings []types.Finding
	for _, result := range report.Results {
		for _, v := range result.Vulnerabilities {
			title := v.Title
			if title == "" {
				title = v.VulnerabilityID
			}
			remediation := v.PrimaryURL
			if remediation == "" {
				remediation = "See vendor guidance"
			}
			id := v.VulnerabilityID
			if id == "" {
				id = "trivy"
			}
			findings = append(findings, types.Finding{
				ID:          id,
				Title:       title,
				Severity:    types.ParseSeverity(v.Severity),
				Description: v.Description,
				Remediation: remediation,
				References:  v.References,
				SourceAgent: types.AgentDependency,
				Metadata: map[string]any{
					"package":           v.PkgName,
					"installed_version": v.InstalledVersion,
					"fixed_version":     v.FixedVersion,
					"target":            result.Target,
				},
			})
		}
	}
	return findings
}
