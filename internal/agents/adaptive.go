// ABOUTME: Adaptive analysis agent that reasons over accumulated findings with an LLM.
// ABOUTME: Degrades to a severity-count analysis when no LLM is reachable.

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type adaptiveAgent struct {
	logger *logrus.Logger
}

func newAdaptiveAgent(logger *logrus.Logger) Agent {
	return &adaptiveAgent{logger: logger}
}

func (a *adaptiveAgent) Name() types.AgentName { return types.AgentAdaptive }
func (a *adaptiveAgent) Kind() TargetKind      { return KindAny }

type adaptiveAnalysis struct {
	RiskLevel       string   `json:"risk_level"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

func (a *adaptiveAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	thinkPrompt := fmt.Sprintf(
		"You are a security analyst reviewing scan results for %s. Findings so far:\n%s\nRespond with JSON: {\"thought\": \"...\", \"action_plan\": \"...\"}.",
		sc.Target, summarizeFindings(sc.PreviousFindings, 20),
	)
	thought := think(ctx, sc.LLM, a.Name(), thinkPrompt,
		fmt.Sprintf("Reviewing %d findings to assess overall risk.", len(sc.PreviousFindings)),
		"Correlate findings across agents and rate the target's exposure.",
		a.logger)
	emit(thoughtItem(thought))

	analysis := a.analyze(ctx, sc)

	description := analysis.Summary
	if len(analysis.Recommendations) > 0 {
		description += "\n\nRecommendations:\n- " + strings.Join(analysis.Recommendations, "\n- ")
	}

	emit(findingItem(types.Finding{
		ID:          fmt.Sprintf("%s-adaptive-analysis", sc.ScanID),
		Title:       fmt.Sprintf("Adaptive risk analysis: %s risk", analysis.RiskLevel),
		Severity:    types.SeverityInfo,
		Description: description,
		SourceAgent: a.Name(),
		Metadata:    map[string]any{"risk_level": analysis.RiskLevel},
	}))
	return nil
}

func (a *adaptiveAgent) analyze(ctx context.Context, sc *Context) adaptiveAnalysis {
	fallback := basicAnalysis(sc.PreviousFindings)
	if sc.LLM == nil || !sc.LLM.Available() {
		return fallback
	}

	prompt := fmt.Sprintf(
		"Analyze these security findings for %s and respond ONLY with JSON of the form "+
			`{"risk_level": "critical|high|medium|low", "summary": "...", "recommendations": ["..."]}.`+
			"\nFindings:\n%s",
		sc.Target, summarizeFindings(sc.PreviousFindings, 50),
	)
	text, err := sc.LLM.Generate(ctx, prompt, llm.Options{Temperature: 0.3, MaxTokens: 800})
	if err != nil {
		a.logger.WithError(err).WithField("component", "agents").Warn("Adaptive analysis LLM call failed, using basic analysis")
		return fallback
	}

	var analysis adaptiveAnalysis
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &analysis); err != nil || analysis.Summary == "" {
		a.logger.WithField("component", "agents").Warn("Adaptive analysis response was not valid JSON, using basic analysis")
		return fallback
	}
	if analysis.RiskLevel == "" {
		analysis.RiskLevel = fallback.RiskLevel
	}
	return analysis
}

// basicAnalysis rates risk from severity counts alone
func basicAnalysis(findings []types.Finding) adaptiveAnalysis {
	var critical, high, total int
	for _, f := range findings {
		total++
		switch f.Severity {
		case types.SeverityCritical:
			critical++
		case types.SeverityHigh:
			high++
		}
	}

	level := "low"
	switch {
	case critical > 0:
		level = "critical"
	case high > 0:
		level = "high"
	case total > 5:
		level = "medium"
	}

	return adaptiveAnalysis{
		RiskLevel: level,
		Summary: fmt.Sprintf("Automated assessment of %d findings: %d critical, %d high. Overall risk rated %s.",
			total, critical, high, level),
		Recommendations: []string{"Address critical and high severity findings first."},
	}
}
