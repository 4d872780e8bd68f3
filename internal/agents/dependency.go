// ABOUTME: Dependency audit agent wrapping trivy filesystem scans.
// ABOUTME: Reports known-vulnerable packages found in the workspace.

package agents

import (
	"context"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/parsers"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type dependencyAgent struct {
	launcher Launcher
	bin      string
	logger   *logrus.Logger
}

func newDependencyAgent(l Launcher, cfg Config, logger *logrus.Logger) Agent {
	return &dependencyAgent{launcher: l, bin: cfg.TrivyBin, logger: logger}
}

func (a *dependencyAgent) Name() types.AgentName { return types.AgentDependency }
func (a *dependencyAgent) Kind() TargetKind      { return KindPath }

func (a *dependencyAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	if err := validatePathTarget(sc.Target); err != nil {
		return err
	}

	result, err := a.launcher.Run(ctx, launcher.Spec{
		Command: []string{a.bin, "fs", "--format", "json", "--scanners", "vuln", sc.Target},
	})
	if err != nil {
		return err
	}

	for _, f := range parsers.ParseTrivy([]byte(result.Stdout)) {
		emit(findingItem(f))
	}
	return nil
}
