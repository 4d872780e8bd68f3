// ABOUTME: Common types shared across the ScanRelay system.
// ABOUTME: Defines the canonical finding model, agent lifecycle records, and scan aggregates.

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTarget is returned by an agent when the supplied target does not
// match its declared target kind (filesystem path vs. HTTP URL).
var ErrInvalidTarget = errors.New("invalid target for agent")

// Severity is the canonical ordered severity scale for findings
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "informational"
)

// Rank returns an integer rank for ordering (critical=5 ... informational=1, unknown=0)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// ParseSeverity maps a tool-native severity label to the canonical scale.
// It is total: unrecognized labels map to low, the lowest non-informational tier.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info", "informational":
		return SeverityInfo
	default:
		return SeverityLow
	}
}

// AgentName identifies one pipeline stage
type AgentName string

const (
	AgentStatic     AgentName = "static"
	AgentDependency AgentName = "dependency"
	AgentSecret     AgentName = "secret"
	AgentFuzzer     AgentName = "fuzzer"
	AgentDAST       AgentName = "dast"
	AgentTemplate   AgentName = "template"
	AgentAdaptive   AgentName = "adaptive"
	AgentThreat     AgentName = "threat"
	AgentReport     AgentName = "report"
)

// AgentStatus is the per-agent lifecycle state machine:
// pending -> running -> {completed | failed | skipped}
type AgentStatus string

const (
	StatusPending   AgentStatus = "pending"
	StatusRunning   AgentStatus = "running"
	StatusCompleted AgentStatus = "completed"
	StatusFailed    AgentStatus = "failed"
	StatusSkipped   AgentStatus = "skipped"
)

// Terminal reports whether the status is a terminal state
func (s AgentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Finding is one canonical security issue record. Findings are immutable once
// appended to a scan; agents only ever read prior findings.
type Finding struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Remediation string         `json:"remediation"`
	References  []string       `json:"references,omitempty"`
	SourceAgent AgentName      `json:"source_agent"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AgentThought is a transient reasoning artifact produced before an agent acts.
// It is observational only and never drives control flow.
type AgentThought struct {
	Agent      AgentName `json:"agent"`
	Thought    string    `json:"thought"`
	ActionPlan string    `json:"action_plan"`
	Timestamp  time.Time `json:"timestamp"`
}

// VoiceEventType classifies narration events emitted during a scan
type VoiceEventType string

const (
	VoiceGreeting   VoiceEventType = "greeting"
	VoiceAgentStart VoiceEventType = "agent_start"
	VoiceFinding    VoiceEventType = "finding"
	VoiceCompletion VoiceEventType = "completion"
	VoiceThinking   VoiceEventType = "thinking"
)

// VoiceEvent is one narration event
type VoiceEvent struct {
	ScanID    string         `json:"scan_id"`
	EventType VoiceEventType `json:"event_type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentProgress is the lifecycle record for one enabled agent within a scan
type AgentProgress struct {
	Agent           AgentName   `json:"agent"`
	Status          AgentStatus `json:"status"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	EndedAt         *time.Time  `json:"ended_at,omitempty"`
	PercentComplete float64     `json:"percent_complete"`
	Message         string      `json:"message,omitempty"`
}

// ScanStatus is the root aggregate for one scan. The orchestrator exclusively
// mutates it while the scan runs; everyone else reads snapshots.
type ScanStatus struct {
	ScanID        string           `json:"scan_id"`
	Target        string           `json:"target"`
	Mode          string           `json:"mode"`
	CreatedAt     time.Time        `json:"created_at"`
	Progress      []*AgentProgress `json:"progress"`
	Findings      []Finding        `json:"findings"`
	Logs          []string         `json:"logs"`
	Thoughts      []AgentThought   `json:"thoughts"`
	VoiceEvents   []VoiceEvent     `json:"voice_events"`
	RepoURL       string           `json:"repo_url,omitempty"`
	RepoBranch    string           `json:"repo_branch,omitempty"`
	TargetURL     string           `json:"target_url,omitempty"`
	WorkspacePath string           `json:"workspace_path,omitempty"`
}

// Done reports whether every enabled agent has reached a terminal state.
// There is no separate scan-level status field; this is the completion check.
func (s *ScanStatus) Done() bool {
	for _, p := range s.Progress {
		if !p.Status.Terminal() {
			return false
		}
	}
	return true
}

// Snapshot returns a deep copy safe to hand to observers while the
// orchestrator keeps mutating the original.
func (s *ScanStatus) Snapshot() *ScanStatus {
	cp := *s

	cp.Progress = make([]*AgentProgress, len(s.Progress))
	for i, p := range s.Progress {
		pc := *p
		if p.StartedAt != nil {
			t := *p.StartedAt
			pc.StartedAt = &t
		}
		if p.EndedAt != nil {
			t := *p.EndedAt
			pc.EndedAt = &t
		}
		cp.Progress[i] = &pc
	}

	cp.Findings = append([]Finding(nil), s.Findings...)
	cp.Logs = append([]string(nil), s.Logs...)
	cp.Thoughts = append([]AgentThought(nil), s.Thoughts...)
	cp.VoiceEvents = append([]VoiceEvent(nil), s.VoiceEvents...)
	return &cp
}

// ScanRequest describes one scan submission
type ScanRequest struct {
	RepoURL    string `json:"repo_url,omitempty"`
	RepoBranch string `json:"repo_branch,omitempty"`
	RepoToken  string `json:"repo_token,omitempty"`

	TargetURL string `json:"target_url,omitempty"`

	// Target is the legacy bare target (path or URL). Deprecated.
	Target string `json:"target,omitempty"`

	Mode          string   `json:"mode,omitempty"`
	EnabledAgents []string `json:"enabled_agents,omitempty"`
	ScanName      string   `json:"scan_name,omitempty"`
}

// Validate checks that at least one scan source was supplied
func (r *ScanRequest) Validate() error {
	if r.RepoURL == "" && r.TargetURL == "" && r.Target == "" {
		return fmt.Errorf("at least one source is required: repo_url, target_url, or target (legacy)")
	}
	return nil
}

// DisplayTarget returns the string shown for the scan target
func (r *ScanRequest) DisplayTarget() string {
	switch {
	case r.RepoURL != "":
		return r.RepoURL
	case r.TargetURL != "":
		return r.TargetURL
	case r.Target != "":
		return r.Target
	}
	return "unknown"
}
