// ABOUTME: ScanRelay entrypoint: serves the scan API or runs a one-shot CLI scan.
// ABOUTME: Configuration comes from flags with environment variable fallbacks.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jfeddern/ScanRelay/internal/agents"
	"github.com/jfeddern/ScanRelay/internal/events"
	"github.com/jfeddern/ScanRelay/internal/gitrepo"
	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/metrics"
	"github.com/jfeddern/ScanRelay/internal/orchestrator"
	"github.com/jfeddern/ScanRelay/internal/server"
	"github.com/jfeddern/ScanRelay/internal/store"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/jfeddern/ScanRelay/internal/voice"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
)

type config struct {
	listenAddr   string
	dbPath       string
	workspaceDir string
	outputDir    string
	mode         string
	logLevel     string
	toolTimeout  time.Duration

	llmProvider  string
	llmModel     string
	groqAPIKey   string
	geminiAPIKey string

	voiceAPIKey string
	voiceID     string

	agentCfg agents.Config

	scanOnce  bool
	repoURL   string
	branch    string
	repoToken string
	targetURL string
	agentList string
}

func parseConfig() config {
	var cfg config

	flag.StringVar(&cfg.listenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.dbPath, "db-path", getEnv("DB_PATH", "scanrelay.db"), "SQLite database path")
	flag.StringVar(&cfg.workspaceDir, "workspace-dir", getEnv("WORKSPACE_DIR", os.TempDir()+"/scanrelay-workspaces"), "Directory for cloned repositories")
	flag.StringVar(&cfg.outputDir, "output-dir", getEnv("OUTPUT_DIR", "reports"), "Directory for generated reports")
	flag.StringVar(&cfg.mode, "scan-mode", getEnv("SCAN_MODE", "standard"), "Default scan mode")
	flag.StringVar(&cfg.logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.DurationVar(&cfg.toolTimeout, "tool-timeout", getEnvDuration("TOOL_TIMEOUT", launcher.DefaultTimeout), "Per-tool execution timeout")

	flag.StringVar(&cfg.llmProvider, "llm-provider", getEnv("LLM_PROVIDER", "groq"), "LLM provider (groq, gemini, mock)")
	flag.StringVar(&cfg.llmModel, "llm-model", getEnv("LLM_MODEL", ""), "LLM model override")
	flag.StringVar(&cfg.groqAPIKey, "groq-api-key", os.Getenv("GROQ_API_KEY"), "Groq API key")
	flag.StringVar(&cfg.geminiAPIKey, "gemini-api-key", os.Getenv("GEMINI_API_KEY"), "Gemini API key")

	flag.StringVar(&cfg.voiceAPIKey, "voice-api-key", os.Getenv("ELEVENLABS_API_KEY"), "ElevenLabs API key (empty disables narration)")
	flag.StringVar(&cfg.voiceID, "voice-id", os.Getenv("ELEVENLABS_VOICE_ID"), "ElevenLabs voice id")

	flag.StringVar(&cfg.agentCfg.SemgrepBin, "semgrep-bin", getEnv("SEMGREP_BIN", "semgrep"), "semgrep binary")
	flag.StringVar(&cfg.agentCfg.SemgrepRules, "semgrep-rules", getEnv("SEMGREP_RULES", "auto"), "semgrep rules config")
	flag.StringVar(&cfg.agentCfg.TrivyBin, "trivy-bin", getEnv("TRIVY_BIN", "trivy"), "trivy binary")
	flag.StringVar(&cfg.agentCfg.GitleaksBin, "gitleaks-bin", getEnv("GITLEAKS_BIN", "gitleaks"), "gitleaks binary")
	flag.StringVar(&cfg.agentCfg.FfufBin, "ffuf-bin", getEnv("FFUF_BIN", "ffuf"), "ffuf binary")
	flag.StringVar(&cfg.agentCfg.FuzzWordlist, "fuzz-wordlist", getEnv("FUZZ_WORDLIST", "/usr/share/wordlists/common.txt"), "ffuf wordlist path")
	flag.StringVar(&cfg.agentCfg.ZapBin, "zap-bin", getEnv("ZAP_BIN", "zap-baseline.py"), "ZAP baseline script")
	flag.StringVar(&cfg.agentCfg.NucleiBin, "nuclei-bin", getEnv("NUCLEI_BIN", "nuclei"), "nuclei binary")

	flag.BoolVar(&cfg.scanOnce, "scan", false, "Run a single scan and exit instead of serving")
	flag.StringVar(&cfg.repoURL, "repo-url", "", "Repository URL to scan (scan mode)")
	flag.StringVar(&cfg.branch, "repo-branch", "", "Repository branch (scan mode)")
	flag.StringVar(&cfg.repoToken, "repo-token", os.Getenv("REPO_TOKEN"), "Repository access token (scan mode)")
	flag.StringVar(&cfg.targetURL, "target-url", "", "Live target URL to scan (scan mode)")
	flag.StringVar(&cfg.agentList, "agents", "", "Comma-separated agent list (scan mode, empty derives from sources)")

	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	cfg := parseConfig()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.logLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.dbPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open scan database")
	}
	defer db.Close()

	toolLauncher := launcher.New(logger, cfg.toolTimeout)
	cloner := gitrepo.NewCloner(cfg.workspaceDir, toolLauncher, logger)
	hub := events.NewHub(logger)

	llmClient := llm.NewClient(llm.Config{
		Provider:     cfg.llmProvider,
		Model:        cfg.llmModel,
		GroqAPIKey:   cfg.groqAPIKey,
		GeminiAPIKey: cfg.geminiAPIKey,
	}, logger)
	if llmClient == nil {
		logger.Warn("No LLM provider configured, meta agents run with basic analysis only")
	}

	notifier := voice.NewNotifier(cfg.voiceAPIKey, cfg.voiceID, llmClient, logger)

	registry := agents.NewRegistry(toolLauncher, cfg.agentCfg, logger)
	orch := orchestrator.New(registry, db, cloner, hub, notifier, llmClient,
		orchestrator.Config{OutputDir: cfg.outputDir, Mode: cfg.mode}, logger)

	if cfg.scanOnce {
		os.Exit(runOnce(ctx, cfg, orch, logger))
	}

	serve(ctx, cfg, orch, hub, logger)
}

func serve(ctx context.Context, cfg config, orch *orchestrator.Orchestrator, hub *events.Hub, logger *logrus.Logger) {
	mux := http.NewServeMux()
	server.New(orch, hub, logger).Register(mux)
	mux.Handle("GET /metrics", metrics.Handler(orch, logger))

	srv := &http.Server{
		Addr:         cfg.listenAddr,
		Handler:      server.SecurityMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.WithField("addr", cfg.listenAddr).Info("ScanRelay listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("Server failed")
	}
}

// runOnce submits a single scan, tails its log, and prints a findings table.
// Returns a non-zero exit code when critical or high findings are present.
func runOnce(ctx context.Context, cfg config, orch *orchestrator.Orchestrator, logger *logrus.Logger) int {
	req := types.ScanRequest{
		RepoURL:    cfg.repoURL,
		RepoBranch: cfg.branch,
		RepoToken:  cfg.repoToken,
		TargetURL:  cfg.targetURL,
		Mode:       cfg.mode,
	}
	if cfg.agentList != "" {
		req.EnabledAgents = strings.Split(cfg.agentList, ",")
	}

	created, err := orch.StartScan(ctx, req)
	if err != nil {
		logger.WithError(err).Error("Failed to start scan")
		return 2
	}
	scanID := created.ScanID
	fmt.Printf("Scan %s started\n", scanID)

	done := make(chan error, 1)
	go func() { done <- orch.WaitForCompletion(ctx, scanID) }()

	printed := 0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case err := <-done:
			if err != nil {
				logger.WithError(err).Error("Scan interrupted")
				return 2
			}
			running = false
		case <-ticker.C:
		}
		if status, err := orch.GetStatus(scanID); err == nil {
			for ; printed < len(status.Logs); printed++ {
				fmt.Println(status.Logs[printed])
			}
		}
	}

	status, err := orch.GetStatus(scanID)
	if err != nil {
		logger.WithError(err).Error("Failed to read scan result")
		return 2
	}

	printFindings(status.Findings)

	for _, f := range status.Findings {
		if f.Severity == types.SeverityCritical || f.Severity == types.SeverityHigh {
			return 1
		}
	}
	return 0
}

func printFindings(findings []types.Finding) {
	if len(findings) == 0 {
		fmt.Println("No findings.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Severity", "Title", "Agent"})
	table.SetAutoWrapText(false)
	for _, f := range findings {
		title := f.Title
		if len(title) > 80 {
			title = title[:77] + "..."
		}
		table.Append([]string{strings.ToUpper(string(f.Severity)), title, string(f.SourceAgent)})
	}
	table.Render()
}
