// ABOUTME: Factory wiring every known agent from configuration.
// ABOUTME: The orchestrator selects from this registry per scan request.

package agents

import (
	"fmt"

	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

// Config holds tool binary locations and tuning for the tool agents
type Config struct {
	SemgrepBin   string
	SemgrepRules string
	TrivyBin     string
	GitleaksBin  string
	FfufBin      string
	FuzzWordlist string
	ZapBin       string
	NucleiBin    string
}

// DefaultConfig resolves tool binaries by name from PATH
func DefaultConfig() Config {
	return Config{
		SemgrepBin:   "semgrep",
		SemgrepRules: "auto",
		TrivyBin:     "trivy",
		GitleaksBin:  "gitleaks",
		FfufBin:      "ffuf",
		FuzzWordlist: "/usr/share/wordlists/common.txt",
		ZapBin:       "zap-baseline.py",
		NucleiBin:    "nuclei",
	}
}

// Registry maps agent names to ready-to-run agents
type Registry map[types.AgentName]Agent

// NewRegistry constructs every supported agent
func NewRegistry(l Launcher, cfg Config, logger *logrus.Logger) Registry {
	return Registry{
		types.AgentStatic:     newStaticAgent(l, cfg, logger),
		types.AgentDependency: newDependencyAgent(l, cfg, logger),
		types.AgentSecret:     newSecretAgent(l, cfg, logger),
		types.AgentFuzzer:     newFuzzerAgent(l, cfg, logger),
		types.AgentDAST:       newDASTAgent(l, cfg, logger),
		types.AgentTemplate:   newTemplateAgent(l, cfg, logger),
		types.AgentAdaptive:   newAdaptiveAgent(logger),
		types.AgentThreat:     newThreatAgent(logger),
		types.AgentReport:     newReportAgent(logger),
	}
}

// Lookup resolves an agent by its string name
func (r Registry) Lookup(name string) (Agent, error) {
	agent, ok := r[types.AgentName(name)]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", name)
	}
	return agent, nil
}
