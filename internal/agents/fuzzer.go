// ABOUTME: Content discovery agent wrapping ffuf directory fuzzing.
// ABOUTME: Reports exposed paths discovered on a live target URL.

package agents

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/parsers"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

type fuzzerAgent struct {
	launcher Launcher
	bin      string
	wordlist string
	logger   *logrus.Logger
}

func newFuzzerAgent(l Launcher, cfg Config, logger *logrus.Logger) Agent {
	return &fuzzerAgent{launcher: l, bin: cfg.FfufBin, wordlist: cfg.FuzzWordlist, logger: logger}
}

func (a *fuzzerAgent) Name() types.AgentName { return types.AgentFuzzer }
func (a *fuzzerAgent) Kind() TargetKind      { return KindURL }

func (a *fuzzerAgent) Run(ctx context.Context, sc *Context, emit func(Item)) error {
	if err := validateURLTarget(sc.Target); err != nil {
		return err
	}
	if _, err := os.Stat(a.wordlist); err != nil {
		return fmt.Errorf("fuzz wordlist not available: %w", err)
	}

	fuzzURL := strings.TrimRight(sc.Target, "/") + "/FUZZ"
	result, err := a.launcher.Run(ctx, launcher.Spec{
		Command: []string{
			a.bin,
			"-u", fuzzURL,
			"-w", a.wordlist,
			"-mc", "200,204,301,302,401,403",
			"-json",
		},
	})
	if err != nil {
		return err
	}

	for _, f := range parsers.ParseFfuf([]byte(result.Stdout)) {
		emit(findingItem(f))
	}
	return nil
}
