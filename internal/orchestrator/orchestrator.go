// ABOUTME: Sequential scan orchestrator: derives the agent set, runs each agent
// ABOUTME: through its lifecycle, and fans out snapshots, persistence, and narration.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jfeddern/ScanRelay/internal/agents"
	"github.com/jfeddern/ScanRelay/internal/events"
	"github.com/jfeddern/ScanRelay/internal/gitrepo"
	"github.com/jfeddern/ScanRelay/internal/llm"
	"github.com/jfeddern/ScanRelay/internal/types"
	"github.com/sirupsen/logrus"
)

// Store is the persistence surface the orchestrator needs
type Store interface {
	Save(scan *types.ScanStatus) error
	Load(scanID string) (*types.ScanStatus, error)
	List() ([]*types.ScanStatus, error)
	Search(target string, limit int) ([]*types.ScanStatus, error)
}

// Cloner prepares and removes scan workspaces
type Cloner interface {
	Clone(ctx context.Context, repoURL, branch, token, scanID string) (string, error)
	Cleanup(workspace string) error
	Info(ctx context.Context, workspace string) gitrepo.Info
}

// Narrator produces voice events for scan milestones
type Narrator interface {
	Enabled() bool
	Greeting(ctx context.Context, scanID, target string) types.VoiceEvent
	AgentStart(ctx context.Context, scanID string, agent types.AgentName) types.VoiceEvent
	Thought(ctx context.Context, scanID string, thought types.AgentThought) types.VoiceEvent
	Finding(ctx context.Context, scanID string, finding types.Finding) types.VoiceEvent
	Completion(ctx context.Context, scanID string, findingCount int) types.VoiceEvent
}

// Config tunes the orchestrator
type Config struct {
	OutputDir string
	Mode      string
}

var staticFamily = []types.AgentName{types.AgentStatic, types.AgentDependency, types.AgentSecret}
var dynamicFamily = []types.AgentName{types.AgentFuzzer, types.AgentDAST, types.AgentTemplate}
var metaFamily = []types.AgentName{types.AgentAdaptive, types.AgentThreat, types.AgentReport}

type scanEntry struct {
	request types.ScanRequest
	status  *types.ScanStatus
	done    chan struct{}
}

// Orchestrator runs scans one agent at a time and owns all scan state mutation
type Orchestrator struct {
	registry agents.Registry
	store    Store
	cloner   Cloner
	hub      *events.Hub
	narrator Narrator
	llm      llm.Client
	cfg      Config
	logger   *logrus.Logger

	mu    sync.RWMutex
	scans map[string]*scanEntry
}

// New wires an orchestrator from its collaborators
func New(registry agents.Registry, store Store, cloner Cloner, hub *events.Hub, narrator Narrator, client llm.Client, cfg Config, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		store:    store,
		cloner:   cloner,
		hub:      hub,
		narrator: narrator,
		llm:      client,
		cfg:      cfg,
		logger:   logger,
		scans:    make(map[string]*scanEntry),
	}
}

// StartScan validates the request, registers the scan with every enabled agent
// pending, and launches the pipeline in the background. Returns the initial
// mostly-pending snapshot.
func (o *Orchestrator) StartScan(ctx context.Context, req types.ScanRequest) (*types.ScanStatus, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Legacy bare URL targets behave like target_url
	if req.Target != "" && req.TargetURL == "" && strings.HasPrefix(req.Target, "http") {
		req.TargetURL = req.Target
		req.Target = ""
	}

	enabled, err := o.deriveAgents(req)
	if err != nil {
		return nil, err
	}

	scanID := uuid.NewString()
	mode := req.Mode
	if mode == "" {
		mode = o.cfg.Mode
	}

	status := &types.ScanStatus{
		ScanID:     scanID,
		Target:     req.DisplayTarget(),
		Mode:       mode,
		CreatedAt:  time.Now().UTC(),
		RepoURL:    req.RepoURL,
		RepoBranch: req.RepoBranch,
		TargetURL:  req.TargetURL,
	}
	for _, name := range enabled {
		status.Progress = append(status.Progress, &types.AgentProgress{
			Agent:  name,
			Status: types.StatusPending,
		})
	}

	entry := &scanEntry{request: req, status: status, done: make(chan struct{})}
	o.mu.Lock()
	o.scans[scanID] = entry
	o.mu.Unlock()

	o.logf(entry, "Scan %s created for %s with %d agents", scanID, status.Target, len(enabled))
	o.persistAndPublish(entry)

	go o.runScan(entry)

	o.mu.RLock()
	snapshot := status.Snapshot()
	o.mu.RUnlock()
	return snapshot, nil
}

// deriveAgents decides which agents a request enables. An explicit list is
// honored after validation; otherwise the families follow the scan sources,
// and the meta agents always run.
func (o *Orchestrator) deriveAgents(req types.ScanRequest) ([]types.AgentName, error) {
	if len(req.EnabledAgents) > 0 {
		var enabled []types.AgentName
		for _, name := range req.EnabledAgents {
			agent, err := o.registry.Lookup(name)
			if err != nil {
				return nil, err
			}
			enabled = append(enabled, agent.Name())
		}
		return enabled, nil
	}

	var enabled []types.AgentName
	if req.RepoURL != "" || req.Target != "" {
		enabled = append(enabled, staticFamily...)
	}
	if req.TargetURL != "" {
		enabled = append(enabled, dynamicFamily...)
	}
	enabled = append(enabled, metaFamily...)
	return enabled, nil
}

func (o *Orchestrator) runScan(entry *scanEntry) {
	defer close(entry.done)

	ctx := context.Background()
	scanID := entry.status.ScanID
	logger := o.logger.WithFields(logrus.Fields{
		"component": "orchestrator",
		"scan_id":   scanID,
	})

	o.addVoice(entry, o.narrator.Greeting(ctx, scanID, entry.status.Target))

	workspace, cloned, err := o.prepareWorkspace(ctx, entry)
	if err != nil {
		logger.WithError(err).Error("Workspace preparation failed, scan aborted")
		o.logf(entry, "Fatal: %v", err)
		o.failAllAgents(entry, fmt.Sprintf("workspace unavailable: %v", err))
		o.addVoice(entry, o.narrator.Completion(ctx, scanID, 0))
		o.persistAndPublish(entry)
		return
	}
	if cloned {
		// Workspaces are removed even when agents fail mid-scan
		defer func() {
			if err := o.cloner.Cleanup(workspace); err != nil {
				logger.WithError(err).Warn("Workspace cleanup failed")
			}
		}()
	}

	for _, progress := range o.progressOrder(entry) {
		o.runAgent(ctx, entry, progress, workspace)
	}

	findingCount := o.findingCount(entry)
	o.logf(entry, "Scan finished with %d findings", findingCount)
	o.addVoice(entry, o.narrator.Completion(ctx, scanID, findingCount))
	o.persistAndPublish(entry)
	logger.WithField("findings", findingCount).Info("Scan finished")
}

// prepareWorkspace resolves the filesystem target: a fresh clone for repo
// scans, the given directory for legacy local-path scans, nothing for
// URL-only scans. The bool reports whether the workspace was cloned.
func (o *Orchestrator) prepareWorkspace(ctx context.Context, entry *scanEntry) (string, bool, error) {
	req := entry.request
	scanID := entry.status.ScanID

	if req.RepoURL != "" {
		o.logf(entry, "Cloning %s", req.RepoURL)
		o.persistAndPublish(entry)

		workspace, err := o.cloner.Clone(ctx, req.RepoURL, req.RepoBranch, req.RepoToken, scanID)
		if err != nil {
			return "", false, err
		}

		info := o.cloner.Info(ctx, workspace)
		o.mu.Lock()
		entry.status.WorkspacePath = workspace
		if entry.status.RepoBranch == "" {
			entry.status.RepoBranch = info.Branch
		}
		o.mu.Unlock()
		o.logf(entry, "Cloned %s at %s (%s)", info.RemoteURL, info.Branch, info.Commit)
		return workspace, true, nil
	}

	if req.Target != "" {
		// Pre-existing local directory: never cleaned up
		o.mu.Lock()
		entry.status.WorkspacePath = req.Target
		o.mu.Unlock()
		return req.Target, false, nil
	}

	return "", false, nil
}

func (o *Orchestrator) runAgent(ctx context.Context, entry *scanEntry, progress *types.AgentProgress, workspace string) {
	scanID := entry.status.ScanID
	agent, ok := o.registry[progress.Agent]
	if !ok {
		// Skipped is reserved for slots with no registered implementation
		o.logf(entry, "Agent %s skipped: not registered", progress.Agent)
		o.finalizeAgent(entry, progress, types.StatusSkipped, "agent not registered")
		o.persistAndPublish(entry)
		return
	}

	target := o.resolveTarget(agent, entry, workspace)

	now := time.Now().UTC()
	o.mu.Lock()
	progress.Status = types.StatusRunning
	progress.StartedAt = &now
	progress.Message = "running"
	previous := append([]types.Finding(nil), entry.status.Findings...)
	o.mu.Unlock()

	o.logf(entry, "Agent %s started", agent.Name())
	o.persistAndPublish(entry)
	o.addVoice(entry, o.narrator.AgentStart(ctx, scanID, agent.Name()))

	sc := &agents.Context{
		ScanID:           scanID,
		Target:           target,
		Mode:             entry.status.Mode,
		OutputDir:        o.cfg.OutputDir,
		PreviousFindings: previous,
		LLM:              o.llm,
		Metadata:         o.scanMetadata(entry),
	}

	emitted := 0
	runErr := agent.Run(ctx, sc, func(item agents.Item) {
		o.consumeItem(ctx, entry, agent.Name(), item, &emitted)
	})

	switch {
	case runErr == nil:
		o.finalizeAgent(entry, progress, types.StatusCompleted, fmt.Sprintf("%d findings", emitted))
		o.logf(entry, "Agent %s completed with %d findings", agent.Name(), emitted)
	case errors.Is(runErr, types.ErrInvalidTarget):
		// A target-kind mismatch is the agent's own failure, not a skip
		o.finalizeAgent(entry, progress, types.StatusFailed, runErr.Error())
		o.logf(entry, "Agent %s failed: %v", agent.Name(), runErr)
	default:
		o.finalizeAgent(entry, progress, types.StatusFailed, runErr.Error())
		o.logf(entry, "Agent %s failed: %v", agent.Name(), runErr)
		o.logger.WithError(runErr).WithFields(logrus.Fields{
			"component": "orchestrator",
			"scan_id":   scanID,
			"agent":     agent.Name(),
		}).Error("Agent failed")
	}
	o.persistAndPublish(entry)
}

func (o *Orchestrator) consumeItem(ctx context.Context, entry *scanEntry, agent types.AgentName, item agents.Item, emitted *int) {
	scanID := entry.status.ScanID

	if item.Thought != nil {
		o.mu.Lock()
		entry.status.Thoughts = append(entry.status.Thoughts, *item.Thought)
		o.mu.Unlock()
		o.publish(entry)
		// Only reasoning agents narrate their thoughts
		if agent == types.AgentAdaptive || agent == types.AgentThreat {
			o.addVoice(entry, o.narrator.Thought(ctx, scanID, *item.Thought))
		}
	}

	if item.Finding != nil {
		*emitted++
		o.mu.Lock()
		entry.status.Findings = append(entry.status.Findings, *item.Finding)
		o.mu.Unlock()
		o.publish(entry)
		if item.Finding.Severity == types.SeverityCritical || item.Finding.Severity == types.SeverityHigh {
			o.addVoice(entry, o.narrator.Finding(ctx, scanID, *item.Finding))
		}
	}
}

// resolveTarget maps the agent's declared kind onto the scan's sources.
// A missing source resolves to the empty string; the agent's own target
// validation turns that into its failure.
func (o *Orchestrator) resolveTarget(agent agents.Agent, entry *scanEntry, workspace string) string {
	switch agent.Kind() {
	case agents.KindPath:
		return workspace
	case agents.KindURL:
		return entry.status.TargetURL
	default:
		return entry.status.Target
	}
}

// scanMetadata exposes the scan's sources to agents: repo URL and branch for
// code scans, the live URL for dynamic scans, the resolved workspace.
func (o *Orchestrator) scanMetadata(entry *scanEntry) map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()

	meta := make(map[string]any)
	if entry.status.RepoURL != "" {
		meta["repo_url"] = entry.status.RepoURL
	}
	if entry.status.RepoBranch != "" {
		meta["repo_branch"] = entry.status.RepoBranch
	}
	if entry.status.TargetURL != "" {
		meta["target_url"] = entry.status.TargetURL
	}
	if entry.status.WorkspacePath != "" {
		meta["workspace"] = entry.status.WorkspacePath
	}
	return meta
}

// finalizeAgent applies the uniform terminal transition: every outcome gets
// an end timestamp, full percent, and a message, including skipped agents.
func (o *Orchestrator) finalizeAgent(entry *scanEntry, progress *types.AgentProgress, status types.AgentStatus, message string) {
	now := time.Now().UTC()
	o.mu.Lock()
	progress.Status = status
	progress.EndedAt = &now
	progress.PercentComplete = 100
	progress.Message = message
	if progress.StartedAt == nil {
		progress.StartedAt = &now
	}
	o.mu.Unlock()
}

func (o *Orchestrator) failAllAgents(entry *scanEntry, message string) {
	for _, progress := range o.progressOrder(entry) {
		o.finalizeAgent(entry, progress, types.StatusFailed, message)
	}
}

func (o *Orchestrator) progressOrder(entry *scanEntry) []*types.AgentProgress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*types.AgentProgress(nil), entry.status.Progress...)
}

func (o *Orchestrator) findingCount(entry *scanEntry) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(entry.status.Findings)
}

func (o *Orchestrator) logf(entry *scanEntry, format string, args ...any) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	o.mu.Lock()
	entry.status.Logs = append(entry.status.Logs, line)
	o.mu.Unlock()
}

func (o *Orchestrator) addVoice(entry *scanEntry, event types.VoiceEvent) {
	o.mu.Lock()
	entry.status.VoiceEvents = append(entry.status.VoiceEvents, event)
	o.mu.Unlock()
	o.hub.PublishVoice(entry.status.ScanID, &event)
}

func (o *Orchestrator) publish(entry *scanEntry) {
	o.mu.RLock()
	snapshot := entry.status.Snapshot()
	o.mu.RUnlock()
	o.hub.Publish(snapshot)
}

func (o *Orchestrator) persistAndPublish(entry *scanEntry) {
	o.mu.RLock()
	snapshot := entry.status.Snapshot()
	o.mu.RUnlock()

	if err := o.store.Save(snapshot); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"component": "orchestrator",
			"scan_id":   snapshot.ScanID,
		}).Error("Failed to persist scan")
	}
	o.hub.Publish(snapshot)
}

// GetStatus returns a snapshot of a scan, falling back to persisted state
// for scans no longer in memory
func (o *Orchestrator) GetStatus(scanID string) (*types.ScanStatus, error) {
	o.mu.RLock()
	entry, ok := o.scans[scanID]
	if ok {
		snapshot := entry.status.Snapshot()
		o.mu.RUnlock()
		return snapshot, nil
	}
	o.mu.RUnlock()

	return o.store.Load(scanID)
}

// ListScans merges in-memory scans over persisted ones, newest first
func (o *Orchestrator) ListScans() ([]*types.ScanStatus, error) {
	persisted, err := o.store.List()
	if err != nil {
		return nil, err
	}

	o.mu.RLock()
	live := make(map[string]*types.ScanStatus, len(o.scans))
	for id, entry := range o.scans {
		live[id] = entry.status.Snapshot()
	}
	o.mu.RUnlock()

	var scans []*types.ScanStatus
	for _, scan := range persisted {
		if fresh, ok := live[scan.ScanID]; ok {
			scans = append(scans, fresh)
			delete(live, scan.ScanID)
			continue
		}
		scans = append(scans, scan)
	}
	for _, scan := range live {
		scans = append(scans, scan)
	}
	return scans, nil
}

// SearchScans returns persisted scans whose target contains the query.
// Every state transition is saved, so persisted rows cover live scans too.
func (o *Orchestrator) SearchScans(target string, limit int) ([]*types.ScanStatus, error) {
	return o.store.Search(target, limit)
}

// WaitForCompletion blocks until the scan's pipeline goroutine exits
func (o *Orchestrator) WaitForCompletion(ctx context.Context, scanID string) error {
	o.mu.RLock()
	entry, ok := o.scans[scanID]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown scan: %s", scanID)
	}

	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
