// ABOUTME: Repository cloning into scan-scoped workspaces for code analysis agents.
// ABOUTME: Shallow single-branch clones with token auth, repo info, and cleanup.

package gitrepo

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jfeddern/ScanRelay/internal/launcher"
	"github.com/sirupsen/logrus"
)

// CloneError is fatal for a scan: without a workspace no code agent has a target
type CloneError struct {
	URL string
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s: %v", e.URL, e.Err)
}

func (e *CloneError) Unwrap() error {
	return e.Err
}

// Info describes a cloned repository
type Info struct {
	Branch    string
	Commit    string
	RemoteURL string
}

// Cloner clones repositories into isolated workspace directories
type Cloner struct {
	baseDir  string
	launcher *launcher.Launcher
	logger   *logrus.Logger
}

// NewCloner creates a cloner rooted at baseDir
func NewCloner(baseDir string, l *launcher.Launcher, logger *logrus.Logger) *Cloner {
	return &Cloner{baseDir: baseDir, launcher: l, logger: logger}
}

var repoNamePattern = regexp.MustCompile(`([^/:]+/[^/:]+?)(?:\.git)?$`)
var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// Clone performs a shallow single-branch clone into a workspace directory
// scoped by scan id. The caller owns the returned path until Cleanup.
func (c *Cloner) Clone(ctx context.Context, repoURL, branch, token, scanID string) (string, error) {
	logger := c.logger.WithFields(logrus.Fields{
		"component": "gitrepo",
		"repo":      repoURL,
		"branch":    branch,
	})

	if err := validateRepoURL(repoURL); err != nil {
		return "", &CloneError{URL: repoURL, Err: err}
	}
	if branch == "" {
		branch = "main"
	}

	workspace := filepath.Join(c.baseDir, scanID+"-"+sanitizeRepoName(repoURL))
	if _, err := os.Stat(workspace); err == nil {
		logger.WithField("workspace", workspace).Warn("Workspace already exists, removing")
		if err := os.RemoveAll(workspace); err != nil {
			return "", &CloneError{URL: repoURL, Err: err}
		}
	}
	if err := os.MkdirAll(c.baseDir, 0o755); err != nil {
		return "", &CloneError{URL: repoURL, Err: err}
	}

	cloneURL := repoURL
	if token != "" && strings.HasPrefix(repoURL, "https://") {
		cloneURL = strings.Replace(repoURL, "https://", "https://"+token+"@", 1)
	}

	logger.Info("Cloning repository")
	_, err := c.launcher.Run(ctx, launcher.Spec{
		Command: []string{"git", "clone", "--depth", "1", "--branch", branch, "--single-branch", cloneURL, workspace},
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		os.RemoveAll(workspace)
		return "", &CloneError{URL: repoURL, Err: err}
	}

	logger.WithField("workspace", workspace).Info("Repository cloned")
	return workspace, nil
}

// Cleanup removes a workspace directory. Safe to call on the failure path.
func (c *Cloner) Cleanup(workspace string) error {
	if workspace == "" {
		return nil
	}
	c.logger.WithFields(logrus.Fields{
		"component": "gitrepo",
		"workspace": workspace,
	}).Info("Cleaning up workspace")
	return os.RemoveAll(workspace)
}

// Info returns branch, short commit, and sanitized remote URL of a clone.
// Fields default to "unknown" when git queries fail; Info never errors.
func (c *Cloner) Info(ctx context.Context, workspace string) Info {
	info := Info{Branch: "unknown", Commit: "unknown", RemoteURL: "unknown"}

	if out, err := c.gitQuery(ctx, workspace, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		info.Branch = out
	}
	if out, err := c.gitQuery(ctx, workspace, "rev-parse", "HEAD"); err == nil && len(out) >= 8 {
		info.Commit = out[:8]
	}
	if out, err := c.gitQuery(ctx, workspace, "config", "--get", "remote.origin.url"); err == nil {
		// Strip any embedded token before the URL is logged or persisted
		info.RemoteURL = regexp.MustCompile(`https://[^@/]+@`).ReplaceAllString(out, "https://")
	}

	return info
}

func (c *Cloner) gitQuery(ctx context.Context, workspace string, args ...string) (string, error) {
	command := append([]string{"git", "-C", workspace}, args...)
	result, err := c.launcher.Run(ctx, launcher.Spec{Command: command, Timeout: 30 * time.Second})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

func validateRepoURL(repoURL string) error {
	if strings.HasPrefix(repoURL, "git@") {
		return nil
	}
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return fmt.Errorf("invalid repository URL: %w", err)
	}
	if parsed.Scheme != "https" || parsed.Host == "" {
		return fmt.Errorf("unsupported repository URL: %s", repoURL)
	}
	return nil
}

func sanitizeRepoName(repoURL string) string {
	match := repoNamePattern.FindStringSubmatch(repoURL)
	if match == nil {
		return "repo"
	}
	name := strings.ReplaceAll(match[1], "/", "-")
	return strings.ToLower(unsafeNameChars.ReplaceAllString(name, "-"))
}
