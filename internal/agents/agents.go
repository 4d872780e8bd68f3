// ABOUTME: Agent contract shared by tool-wrapping and LLM meta agents.
// ABOUTME: Defines the scan context, the emit item stream, and the reasoning helper.

package agents

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

// TargetKind declares which target an agent operates on
type TargetKind string

const (
	// KindPath agents analyze a cloned workspace on disk
	KindPath TargetKind = "path"
	// KindURL agents probe a live HTTP endpoint
	KindURL TargetKind = "url"
	// KindAny agents reason over accumulated results, not a target
	KindAny TargetKind = "any"
)

// Context carries everything one agent invocation needs. Target is already
// resolved to the agent's kind by the orchestrator.
type Context struct {
	ScanID           string
	Target           string
	Mode             string
	OutputDir        string
	PreviousFindings []types.Finding
	LLM              llm.Client
	Metadata         map[string]any
}

// Item is one result emitted by an agent: exactly one field is set
type Item struct {
	Thought *types.AgentThought
	Finding *types.Finding
}

func thoughtItem(t types.AgentThought) Item {
	return Item{Thought: &t}
}

func findingItem(f types.Finding) Item {
	return Item{Finding: &f}
}

// Agent is one pipeline stage. Run emits items synchronously through emit;
// a returned error marks the agent failed without aborting the scan.
type Agent interface {
	Name() types.AgentName
	Kind() TargetKind
	Run(ctx context.Context, sc *Context, emit func(Item)) error
}

// Launcher is the subset of the tool launcher agents depend on
type Launcher interface {
	Run(ctx context.Context, spec launcher.Spec) (launcher.Result, error)
}

const (
	thinkTemperature = 0.7
	thinkMaxTokens   = 500
)

// think asks the LLM for a reasoning step before an agent acts. It always
// returns a usable thought: without a working LLM the fallback text is used,
// because reasoning is observational and must never block a scan.
func think(ctx context.Context, client llm.Client, agent types.AgentName, prompt, fallbackThought, fallbackPlan string, logger *logrus.Logger) types.AgentThought {
	thought := types.AgentThought{
		Agent:      agent,
		Thought:    fallbackThought,
		ActionPlan: fallbackPlan,
		Timestamp:  time.Now().UTC(),
	}

	if client == nil || !client.Available() {
		return thought
	}

	text, err := client.Generate(ctx, prompt, llm.Options{Temperature: thinkTemperature, MaxTokens: thinkMaxTokens})
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"component": "agents",
			"agent":     agent,
		}).Warn("LLM reasoning failed, using fallback thought")
		return thought
	}

	// Providers often answer structured prompts with JSON; accept either shape
	var structured struct {
		Thought    string `json:"thought"`
		ActionPlan string `json:"action_plan"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &structured); err == nil && structured.Thought != "" {
		thought.Thought = structured.Thought
		if structured.ActionPlan != "" {
			thought.ActionPlan = structured.ActionPlan
		}
		return thought
	}

	thought.Thought = strings.TrimSpace(text)
	return thought
}

// stripCodeFences removes a surrounding markdown code fence if present
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func validatePathTarget(target string) error {
	if target == "" {
		return types.ErrInvalidTarget
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return types.ErrInvalidTarget
	}
	return nil
}

func validateURLTarget(target string) error {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return nil
	}
	return types.ErrInvalidTarget
}

func summarizeFindings(findings []types.Finding, limit int) string {
	if len(findings) == 0 {
		return "no findings so far"
	}
	var b strings.Builder
	for i, f := range findings {
		if i >= limit {
			b.WriteString("- ...\n")
			break
		}
		b.WriteString("- [")
		b.WriteString(string(f.Severity))
		b.WriteString("] ")
		b.WriteString(f.Title)
		b.WriteString(" (")
		b.WriteString(string(f.SourceAgent))
		b.WriteString(")\n")
	}
	return b.String()
}
