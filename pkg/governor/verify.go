package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/governor/decision"
	"github.com/bootyhq/booty/pkg/governor/risk"
	"github.com/bootyhq/booty/pkg/memory"
	"github.com/bootyhq/booty/pkg/statestore"
	"github.com/bootyhq/booty/pkg/types"
	"github.com/bootyhq/booty/pkg/workspace"
)

// process runs the full verification sequence for one job:
// clone → setup/install/test → risk → decide → apply. Any workspace or
// command failure short-circuits to a verification_failed HOLD without ever
// invoking the decision engine. The delivery id is recorded unconditionally
// at the end so each delivery is fully processed at most once.
func (g *Governor) process(ctx context.Context, logger *slog.Logger, j *job) error {
	ev := j.event
	start := g.now()
	defer func() {
		if g.metrics != nil {
			g.metrics.ObserveVerification(g.now().Sub(start))
		}
	}()

	dir, err := g.ws.Prepare(j.id)
	if err != nil {
		return g.verificationFailed(ctx, ev, j.cfg, fmt.Sprintf("workspace preparation failed: %v", err))
	}
	defer func() {
		if err := g.ws.Cleanup(dir); err != nil {
			logger.Warn("workspace cleanup failed", "dir", dir, "err", err)
		}
	}()

	if err := workspace.CloneAtSHA(ctx, dir, g.cloneURL(ev.RepoFullName), ev.HeadSHA); err != nil {
		logger.Warn("clone failed", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "err", err)
		return g.verificationFailed(ctx, ev, j.cfg, "clone failed")
	}

	if err := g.runVerification(ctx, dir, j.cfg); err != nil {
		var cmdErr *workspace.CommandError
		detail := err.Error()
		if errors.As(err, &cmdErr) {
			detail = fmt.Sprintf("%s step failed (timed_out=%t)", cmdErr.Step, cmdErr.TimedOut)
		}
		logger.Info("verification failed", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "detail", detail)
		return g.verificationFailed(ctx, ev, j.cfg, detail)
	}

	cfg, disabled := g.workspaceConfig(logger, dir, j.cfg)
	if disabled {
		// The verified commit turned the governor off; honor that
		// immediately and record the delivery without deciding anything.
		logger.Info("governor disabled by verified commit, skipping decision", "repo", ev.RepoFullName, "sha", ev.HeadSHA)
		if err := g.store.RecordDelivery(ev.RepoFullName, statestore.VerificationKey(ev.RepoFullName, ev.HeadSHA), ev.DeliveryID); err != nil {
			logger.Warn("delivery record write failed", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "err", err)
		}
		return nil
	}

	d, err := g.decide(ctx, logger, ev, cfg)
	if err != nil {
		return err
	}
	if err := g.apply(ctx, logger, ev, cfg, d); err != nil {
		return err
	}

	if err := g.store.RecordDelivery(ev.RepoFullName, statestore.VerificationKey(ev.RepoFullName, ev.HeadSHA), ev.DeliveryID); err != nil {
		logger.Warn("delivery record write failed", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "err", err)
	}
	return nil
}

// workspaceConfig resolves the policy governing this decision. The verified
// workspace's own config wins over the enqueue-time copy, so a commit that
// changes governor policy takes effect immediately, including one that
// disables the governor outright (reported via the second return). An
// unreadable config falls back to the enqueue-time copy.
func (g *Governor) workspaceConfig(logger *slog.Logger, dir string, fallback *config.ReleaseGovernorConfig) (*config.ReleaseGovernorConfig, bool) {
	wsCfg, err := config.LoadReleaseGovernorConfig(dir)
	switch {
	case errors.Is(err, config.ErrDisabled):
		return nil, true
	case err != nil:
		logger.Warn("workspace governor config unreadable, using enqueue-time config", "err", err)
		return fallback, false
	case wsCfg != nil:
		return wsCfg, false
	}
	return fallback, false
}

// runVerification executes the configured setup, install, and test commands
// in order with the configured wall-clock timeout per step.
func (g *Governor) runVerification(ctx context.Context, dir string, cfg *config.ReleaseGovernorConfig) error {
	timeout := time.Duration(cfg.Verification.TimeoutMinutes) * time.Minute
	steps := []struct {
		name    string
		command string
	}{
		{"setup", cfg.Verification.SetupCommand},
		{"install", cfg.Verification.InstallCommand},
		{"test", cfg.Verification.TestCommand},
	}
	for _, step := range steps {
		if err := workspace.RunStep(ctx, dir, step.name, step.command, timeout); err != nil {
			return err
		}
	}
	return nil
}

// decide computes the risk class and evaluates the policy rule table.
func (g *Governor) decide(ctx context.Context, logger *slog.Logger, ev types.WorkflowRunEvent, cfg *config.ReleaseGovernorConfig) (types.Decision, error) {
	classifier, err := risk.NewClassifier(cfg)
	if err != nil {
		return types.Decision{}, err
	}

	state, err := g.store.LoadRelease(ev.RepoFullName)
	if err != nil {
		return types.Decision{}, err
	}

	// Diff against what production currently runs. Before the first deploy
	// there is no baseline, so the diff is empty and risk comes solely
	// from a security override, if any.
	var files []string
	if state.ProductionSHACurrent != "" {
		files, err = g.gh.CompareCommits(ctx, ev.RepoFullName, state.ProductionSHACurrent, ev.HeadSHA)
		if err != nil {
			logger.Warn("diff comparison failed, classifying from empty diff", "repo", ev.RepoFullName, "err", err)
			files = nil
		}
	}
	diffClass := classifier.Classify(files)

	override, err := risk.AwaitOverride(ctx, g.store, ev.RepoFullName, ev.HeadSHA, g.overrideMaxWait, g.overrideInterval)
	if err != nil {
		return types.Decision{}, err
	}
	class := risk.EffectiveClass(diffClass, override)
	if override != nil {
		logger.Info("security override in effect", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "class", class, "reason", override.Reason)
	}

	approval := g.resolveApproval(ctx, ev.RepoFullName, ev.HeadSHA, cfg)
	d := g.engine.Evaluate(decision.Input{
		SHA:       ev.HeadSHA,
		RiskClass: class,
		Config:    cfg,
		State:     state,
		Approval:  approval,
		Degraded:  g.degraded(),
	})
	logger.Info("decision computed",
		"repo", ev.RepoFullName,
		"sha", ev.HeadSHA,
		"outcome", d.Outcome,
		"reason", d.Reason,
		"risk", d.RiskClass,
		"risk_paths", classifier.RiskPaths(files),
	)
	if g.metrics != nil {
		g.metrics.DecisionsTotal.WithLabelValues(string(d.Outcome), string(d.Reason)).Inc()
	}
	return d, nil
}

// apply carries out a decision: ALLOW dispatches the deploy workflow and
// records a pending attempt; HOLD publishes the status and an advisory
// incident note.
func (g *Governor) apply(ctx context.Context, logger *slog.Logger, ev types.WorkflowRunEvent, cfg *config.ReleaseGovernorConfig, d types.Decision) error {
	if !d.Allowed() {
		g.publishDecision(ctx, ev.RepoFullName, d, cfg)
		g.recordIncident(memory.Note{
			Kind:   memory.KindHold,
			Repo:   ev.RepoFullName,
			SHA:    ev.HeadSHA,
			Reason: string(d.Reason),
		})
		return nil
	}

	// Dispatch exactly the SHA that was risk-scored. Substituting "latest
	// main" here would deploy code the decision never saw.
	if err := g.gh.DispatchWorkflow(ctx, ev.RepoFullName, cfg.DeployWorkflowName, "main", map[string]string{"sha": ev.HeadSHA}); err != nil {
		return fmt.Errorf("governor: deploy dispatch: %w", err)
	}

	now := g.now().UTC().Format(time.RFC3339)
	err := g.store.UpdateRelease(ev.RepoFullName, func(state *types.ReleaseState) error {
		state.LastDeployAttemptSHA = ev.HeadSHA
		state.LastDeployTime = now
		state.LastDeployResult = types.DeployPending
		state.AppendHistory(types.DeployRecord{SHA: ev.HeadSHA, Time: now, Result: types.DeployPending})
		return nil
	})
	if err != nil {
		return err
	}

	g.publishDecision(ctx, ev.RepoFullName, d, cfg)
	logger.Info("deploy dispatched", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "workflow", cfg.DeployWorkflowName)
	return nil
}

// verificationFailed posts the HOLD status for a failed verification and
// records the delivery. The decision engine is never consulted on this
// path: a red verification outranks every risk rule.
func (g *Governor) verificationFailed(ctx context.Context, ev types.WorkflowRunEvent, cfg *config.ReleaseGovernorConfig, detail string) error {
	d := types.Decision{
		Outcome: types.OutcomeHold,
		Reason:  types.ReasonVerificationFailed,
		SHA:     ev.HeadSHA,
	}
	g.publishDecision(ctx, ev.RepoFullName, d, cfg)
	if g.metrics != nil {
		g.metrics.DecisionsTotal.WithLabelValues(string(d.Outcome), string(d.Reason)).Inc()
	}
	g.recordIncident(memory.Note{
		Kind:   memory.KindHold,
		Repo:   ev.RepoFullName,
		SHA:    ev.HeadSHA,
		Reason: string(types.ReasonVerificationFailed),
		Detail: detail,
	})
	if err := g.store.RecordDelivery(ev.RepoFullName, statestore.VerificationKey(ev.RepoFullName, ev.HeadSHA), ev.DeliveryID); err != nil {
		g.logger.Warn("delivery record write failed", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "err", err)
	}
	return nil
}

// recordIncident writes an advisory memory note, best-effort.
func (g *Governor) recordIncident(note memory.Note) {
	if g.mem == nil {
		return
	}
	if err := g.mem.Record(note); err != nil {
		g.logger.Warn("incident note write failed", "repo", note.Repo, "err", err)
	}
}
