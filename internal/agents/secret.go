// ABOUTME: Secret detection agent wrapping gitleaks against a cloned workspace.
// ABOUTME: Treats gitleaks exit code 1 as leaks found, not as tool failure.

package agents

import (
	"context"
	"errors"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/parsers"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type secretAgent struct {
	launcher Launcher
	bin      string
	logger   *logrus.Logger
}

func newSecretAgent(l Launcher, cfg Config, logger *logrus.Logger) Agent {
	return &secretAgent{launcher: l, bin: cfg.GitleaksBin, logger: logger}
}

func (a *secretAgent) Name() types.AgentName { return types.AgentSecret }
func (a *secretAgent) Kind() TargetKind      { return KindPath }

func (a *secretAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	if err := validatePathTarget(sc.Target); err != nil {
		return err
	}

	result, err := a.launcher.Run(ctx, launcher.Spec{
		Command: []string{
			a.bin, "detect",
			"--source", sc.Target,
			"--no-banner",
			"--report-format", "json",
			"--report-path", "/dev/stdout",
		},
	})
	if err != nil {
		// gitleaks exits 1 when it finds leaks; the report is still on stdout
		var execErr *launcher.ExecError
		if errors.As(err, &execErr) && execErr.Result.ExitCode == 1 && !execErr.Timeout {
			result = execErr.Result
		} else {
			return err
		}
	}

	for _, f := range parsers.ParseGitleaks([]byte(result.Stdout)) {
		emit(findingItem(f))
	}
	return nil
}
