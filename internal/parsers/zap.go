// ABOUTME: Parser for ZAP baseline scan JSON reports into canonical findings.
// ABOUTME: Maps ZAP risk descriptions onto the canonical scale, defaulting to medium.

package parsers

import (
	"encoding/json"
	"strings"

	"github.com/jfeddern/ScanRelay/internal/types"
)

type zapReport struct {
	Site []zapSite `json:"site"`
}

type zapSite struct {
	Name   string     `json:"@name"`
	Alerts []zapAlert `json:"alerts"`
}

type zapAlert struct {
	PluginID  string `json:"pluginid"`
	Alert     string `json:"alert"`
	RiskDesc  string `json:"riskdesc"`
	Desc      string `json:"desc"`
	Solution  string `json:"solution"`
	Reference string `json:"reference"`
	CWEID     string `json:"cweid"`
}

// ParseZAP converts a ZAP baseline JSON report into canonical findings.
// Malformed or empty payloads yield an empty list, never an error.
func ParseZAP(raw []byte) []types.Finding {
	var report zapReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil
	}

	var findings []types.Finding
	for _, site := range report.Site {
		for _, alert := range site.Alerts {
			title := alert.Alert
			if title == "" {
				title = "ZAP finding"
			}
			remediation := alert.Solution
			if remediation == "" {
				remediation = "See ZAP recommendation"
			}
			id := alert.PluginID
			if id == "" {
				id = "zap"
			}
			findings = append(findings, types.Finding{
				ID:          id,
				Title:       title,
				Severity:    zapSeverity(alert.RiskDesc),
				Description: alert.Desc,
				Remediation: remediation,
				SourceAgent: types.AgentDAST,
				Metadata: map[string]any{
					"site":      site.Name,
					"reference": alert.Reference,
					"cweid":     alert.CWEID,
				},
			})
		}
	}
	return findings
}

// zapSeverity maps a ZAP riskdesc ("High (Medium)") to the canonical scale.
// Unrecognized risk labels default to medium rather than low: a ZAP alert
// with a garbled risk is still a live-target signal worth triage.
func zapSeverity(riskDesc string) types.Severity {
	risk := strings.ToLower(strings.TrimSpace(riskDesc))
	if idx := strings.IndexAny(risk, " ("); idx > 0 {
		risk = risk[:idx]
	}
	switch risk {
	case "high":
		return types.SeverityHigh
	case "medium":
		return types.SeverityMedium
	case "low":
		return types.SeverityLow
	case "informational":
		return types.SeverityInfo
	default:
		return types.SeverityMedium
	}
}
