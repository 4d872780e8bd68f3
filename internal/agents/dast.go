// ABOUTME: Dynamic analysis agent wrapping the ZAP baseline scan.
// ABOUTME: Reads the JSON report file ZAP writes rather than stdout.

package agents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/parsers"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type dastAgent struct {
	launcher Launcher
	bin      string
	logger   *logrus.Logger
}

func newDASTAgent(l Launcher, cfg Config, logger *logrus.Logger) Agent {
	return &dastAgent{launcher: l, bin: cfg.ZapBin, logger: logger}
}

func (a *dastAgent) Name() types.AgentName { return types.AgentDAST }
func (a *dastAgent) Kind() TargetKind      { return KindURL }

func (a *dastAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	if err := validateURLTarget(sc.Target); err != nil {
		return err
	}

	reportName := fmt.Sprintf("zap-report-%s.json", sc.ScanID)
	if err := os.MkdirAll(sc.OutputDir, 0o755); err != nil {
		return err
	}

	_, err := a.launcher.Run(ctx, launcher.Spec{
		Command: []string{a.bin, "-t", sc.Target, "-J", reportName, "-I"},
		Dir:     sc.OutputDir,
	})
	if err != nil {
		// zap-baseline exits non-zero when alerts were raised; the report
		// file decides whether the run actually produced anything
		var execErr *launcher.ExecError
		if !errors.As(err, &execErr) || execErr.Timeout {
			return err
		}
	}

	raw, readErr := os.ReadFile(filepath.Join(sc.OutputDir, reportName))
	if readErr != nil {
		if err != nil {
			return err
		}
		return fmt.Errorf("zap report missing: %w", readErr)
	}

	for _, f := range parsers.ParseZAP(raw) {
		emit(findingItem(f))
	}
	return nil
}
