// ABOUTME: Static analysis agent wrapping semgrep against a cloned workspace.
// ABOUTME: Emits canonical findings parsed from semgrep JSON output.

package agents

import (
	"context"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/parsers"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type staticAgent struct {
	launcher Launcher
	bin      string
	rules    string
	logger   *logrus.Logger
}

func newStaticAgent(l Launcher, cfg Config, logger *logrus.Logger) Agent {
	rules := cfg.SemgrepRules
	if rules == "" {
		rules = "auto"
	}
	return &staticAgent{launcher: l, bin: cfg.SemgrepBin, rules: rules, logger: logger}
}

func (a *staticAgent) Name() types.AgentName { return types.AgentStatic }
func (a *staticAgent) Kind() TargetKind      { return KindPath }

func (a *staticAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	if err := validatePathTarget(sc.Target); err != nil {
		return err
	}

	result, err := a.launcher.Run(ctx, launcher.Spec{
		Command: []string{a.bin, "--config", a.rules, "--json", "--quiet", sc.Target},
	})
	if err != nil {
		return err
	}

	for _, f := range parsers.ParseSemgrep([]byte(result.Stdout)) {
		emit(findingItem(f))
	}
	return nil
}
