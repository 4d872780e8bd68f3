// ABOUTME: Parser for nuclei JSONL output into canonical findings.
// ABOUTME: Tolerates interleaved non-JSON lines on the stream.

package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jfeddern/ScanRelay/internal/types"
)

type nucleiEntry struct {
	TemplateID string `json:"template-id"`
	MatchedAt  string `json:"matched-at"`
	Info       struct {
		Name        string   `json:"name"`
		Severity    string   `json:"severity"`
		Description string   `json:"description"`
		Reference   []string `json:"reference"`
	} `json:"info"`
}

// ParseNuclei converts nuclei JSONL stdout into canonical findings.
// Lines that fail to decode are skipped; the function never errors.
func ParseNuclei(raw []byte) []types.Finding {
	var findings []types.Finding
	idx := 0
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry nucleiEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		idx++

		id := entry.TemplateID
		if id == "" {
			id = fmt.Sprintf("nuclei-%d", idx)
		}
		title := entry.Info.Name
		if title == "" {
			title = "Nuclei finding"
		}
		findings = append(findings, types.Finding{
			ID:          id,
			Title:       title,
			Severity:    types.ParseSeverity(entry.Info.Severity),
			Description: entry.Info.Description,
			Remediation: "Review template references and patch the affected service.",
			References:  entry.Info.Reference,
			SourceAgent: types.AgentTemplate,
			Metadata: map[string]any{
				"matched-at": entry.MatchedAt,
			},
		})
	}
	return findings
}
