// ABOUTME: Threat analysis agent that deduplicates and prioritizes accumulated findings.
// ABOUTME: Dedup is local to this agent's view; stored findings are never rewritten.

package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type threatAgent struct {
	logger *logrus.Logger
}

func newThreatAgent(logger *logrus.Logger) Agent {
	return &threatAgent{logger: logger}
}

func (a *threatAgent) Name() types.AgentName { return types.AgentThreat }
func (a *threatAgent) Kind() TargetKind      { return KindAny }

// attackVectorKeywords are scanned in finding titles and LLM output to tag
// the likely attack classes present in a scan
var attackVectorKeywords = []string{
	"sql injection",
	"cross-site scripting",
	"xss",
	"remote code execution",
	"command injection",
	"path traversal",
	"ssrf",
	"csrf",
	"deserialization",
	"authentication bypass",
	"hardcoded",
	"exposed",
}

func (a *threatAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	deduped := dedupeFindings(sc.PreviousFindings)

	thinkPrompt := fmt.Sprintf(
		"You are a threat analyst. %d unique findings were collected for %s:\n%s\nRespond with JSON: {\"thought\": \"...\", \"action_plan\": \"...\"}.",
		len(deduped), sc.Target, summarizeFindings(deduped, 20),
	)
	thought := think(ctx, sc.LLM, a.Name(), thinkPrompt,
		fmt.Sprintf("Prioritizing %d unique findings by severity and attack class.", len(deduped)),
		"Rank findings, identify attack vectors, and surface the top risks.",
		a.logger)
	emit(thoughtItem(thought))

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Severity.Rank() > deduped[j].Severity.Rank()
	})

	vectors := extractAttackVectors(deduped, "")
	description := a.describe(ctx, sc, deduped, &vectors)

	emit(findingItem(types.Finding{
		ID:          fmt.Sprintf("%s-threat-analysis", sc.ScanID),
		Title:       fmt.Sprintf("Threat analysis: %d unique findings prioritized", len(deduped)),
		Severity:    types.SeverityInfo,
		Description: description,
		SourceAgent: a.Name(),
		Metadata: map[string]any{
			"unique_findings": len(deduped),
			"attack_vectors":  vectors,
		},
	}))
	return nil
}

func (a *threatAgent) describe(ctx context.Context, sc *Context, deduped []types.Finding, vectors *[]string) string {
	var b strings.Builder
	if len(deduped) == 0 {
		b.WriteString("No findings to prioritize.")
	} else {
		b.WriteString("Top priorities:\n")
		for i, f := range deduped {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "%d. [%s] %s (%s)\n", i+1, f.Severity, f.Title, f.SourceAgent)
		}
	}

	if sc.LLM == nil || !sc.LLM.Available() || len(deduped) == 0 {
		return b.String()
	}

	prompt := fmt.Sprintf(
		"As a threat analyst, describe the most likely attack paths an adversary would take against %s given these findings:\n%s",
		sc.Target, summarizeFindings(deduped, 30),
	)
	insights, err := sc.LLM.Generate(ctx, prompt, llm.Options{Temperature: 0.4, MaxTokens: 600})
	if err != nil {
		a.logger.WithError(err).WithField("component", "agents").Warn("Threat insight LLM call failed, keeping priority list only")
		return b.String()
	}

	*vectors = extractAttackVectors(deduped, insights)
	b.WriteString("\nThreat insights:\n")
	b.WriteString(strings.TrimSpace(insights))
	return b.String()
}

// dedupeFindings collapses findings sharing a lowercased title and source
// agent. First occurrence wins.
func dedupeFindings(findings []types.Finding) []types.Finding {
	seen := make(map[string]bool, len(findings))
	out := make([]types.Finding, 0, len(findings))
	for _, f := range findings {
		key := strings.ToLower(f.Title) + "|" + string(f.SourceAgent)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

func extractAttackVectors(findings []types.Finding, extra string) []string {
	corpus := strings.ToLower(extra)
	for _, f := range findings {
		corpus += " " + strings.ToLower(f.Title) + " " + strings.ToLower(f.Description)
	}

	var vectors []string
	for _, kw := range attackVectorKeywords {
		if strings.Contains(corpus, kw) {
			vectors = append(vectors, kw)
		}
	}
	return vectors
}
