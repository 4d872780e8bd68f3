// ABOUTME: Report agent that renders the final scan report to markdown and PDF.
// ABOUTME: An LLM-written executive summary is used when available.

package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/report"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type reportAgent struct {
	logger *logrus.Logger
}

func newReportAgent(logger *logrus.Logger) Agent {
	return &reportAgent{logger: logger}
}

func (a *reportAgent) Name() types.AgentName { return types.AgentReport }
func (a *reportAgent) Kind() TargetKind      { return KindAny }

func (a *reportAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	thinkPrompt := fmt.Sprintf(
		"You are writing a security report for %s covering %d findings. Respond with JSON: {\"thought\": \"...\", \"action_plan\": \"...\"}.",
		sc.Target, len(sc.PreviousFindings),
	)
	thought := think(ctx, sc.LLM, a.Name(), thinkPrompt,
		fmt.Sprintf("Compiling the final report over %d findings.", len(sc.PreviousFindings)),
		"Write an executive summary and render markdown and PDF reports.",
		a.logger)
	emit(thoughtItem(thought))

	in := report.Input{
		ScanID:      sc.ScanID,
		Target:      sc.Target,
		Mode:        sc.Mode,
		GeneratedAt: time.Now().UTC(),
		Findings:    sc.PreviousFindings,
		Summary:     a.executiveSummary(ctx, sc),
	}

	mdPath, err := report.WriteMarkdown(in, sc.OutputDir)
	if err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}

	metadata := map[string]any{"markdown_path": mdPath}
	pdfPath, err := report.WritePDF(in, sc.OutputDir)
	if err != nil {
		// The markdown report is the deliverable; PDF rendering failing
		// should not fail the agent
		a.logger.WithError(err).WithField("component", "agents").Warn("PDF report rendering failed")
	} else {
		metadata["pdf_path"] = pdfPath
	}

	emit(findingItem(types.Finding{
		ID:          fmt.Sprintf("%s-scan-report", sc.ScanID),
		Title:       "Scan report generated",
		Severity:    types.SeverityInfo,
		Description: fmt.Sprintf("Full scan report covering %d findings written to %s.", len(sc.PreviousFindings), mdPath),
		SourceAgent: a.Name(),
		Metadata:    metadata,
	}))
	return nil
}

func (a *reportAgent) executiveSummary(ctx context.Context, sc *Context) string {
	if sc.LLM == nil || !sc.LLM.Available() {
		return ""
	}

	prompt := fmt.Sprintf(
		"Write a 3-5 sentence executive summary of a security scan of %s. Findings:\n%s",
		sc.Target, summarizeFindings(sc.PreviousFindings, 40),
	)
	summary, err := sc.LLM.Generate(ctx, prompt, llm.Options{Temperature: 0.4, MaxTokens: 400})
	if err != nil {
		a.logger.WithError(err).WithField("component", "agents").Warn("Executive summary LLM call failed, using counting summary")
		return ""
	}
	return stripCodeFences(summary)
}
