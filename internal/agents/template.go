// ABOUTME: Template scanning agent wrapping nuclei against a live target URL.
// ABOUTME: Parses nuclei's line-delimited JSON results into canonical findings.

package agents

import (
	"context"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/parsers"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type templateAgent struct {
	launcher Launcher
	bin      string
	logger   *logrus.Logger
}

func newTemplateAgent(l Launcher, cfg Config, logger *logrus.Logger) Agent {
	return &templateAgent{launcher: l, bin: cfg.NucleiBin, logger: logger}
}

func (a *templateAgent) Name() types.AgentName { return types.AgentTemplate }
func (a *templateAgent) Kind() TargetKind      { return KindURL }

func (a *templateAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	if err := validateURLTarget(sc.Target); err != nil {
		return err
	}

	result, err := a.launcher.Run(ctx, launcher.Spec{
		Command: []string{a.bin, "-u", sc.Target, "-jsonl", "-silent"},
	})
	if err != nil {
		return err
	}

	for _, f := range parsers.ParseNuclei([]byte(result.Stdout)) {
		emit(findingItem(f))
	}
	return nil
}
