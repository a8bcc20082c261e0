package governor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/memory"
	"github.com/bootyhq/booty/pkg/statestore"
	"github.com/bootyhq/booty/pkg/types"
)

// failureIssueWindow is how recently a deploy-failure issue for the same
// SHA must have been opened for a new failure to append a comment instead
// of opening a duplicate.
const failureIssueWindow = 30 * time.Minute

// failureIssueLabel tags every deploy-failure issue the governor opens.
const failureIssueLabel = "deploy-failure"

// TrackDeployOutcome processes a completed deploy workflow_run. Runs are
// keyed by run id so a redelivered webhook never double-applies. Success
// advances the production SHA pair; failure leaves it untouched and raises
// (or extends) a deploy-failure issue. Both paths fold the outcome into the
// deploy history that feeds the cooldown and rate-limit rules.
func (g *Governor) TrackDeployOutcome(ctx context.Context, ev types.WorkflowRunEvent, cfg *config.ReleaseGovernorConfig) error {
	repo := ev.RepoFullName
	key := statestore.DeployRunKey(ev.RunID)
	if _, seen, err := g.store.SeenDelivery(repo, key); err != nil {
		return err
	} else if seen {
		g.logger.Debug("duplicate deploy outcome delivery dropped", "repo", repo, "run_id", ev.RunID)
		return nil
	}

	success := ev.Conclusion == "success"
	result := types.DeployFailure
	if success {
		result = types.DeploySuccess
	}
	now := g.now().UTC().Format(time.RFC3339)

	err := g.store.UpdateRelease(repo, func(state *types.ReleaseState) error {
		if success {
			// production_sha_current only ever advances here.
			state.ProductionSHAPrevious = state.ProductionSHACurrent
			state.ProductionSHACurrent = ev.HeadSHA
		}
		state.LastDeployAttemptSHA = ev.HeadSHA
		state.LastDeployTime = now
		state.LastDeployResult = result
		settleHistory(state, ev.HeadSHA, now, result)
		return nil
	})
	if err != nil {
		return err
	}

	if g.metrics != nil {
		g.metrics.DeployOutcomesTotal.WithLabelValues(ev.Conclusion).Inc()
	}
	g.logger.Info("deploy outcome recorded", "repo", repo, "sha", ev.HeadSHA, "conclusion", ev.Conclusion)

	if !success {
		g.reportDeployFailure(ctx, ev)
	}

	if err := g.store.RecordDelivery(repo, key, ev.DeliveryID); err != nil {
		g.logger.Warn("delivery record write failed", "repo", repo, "run_id", ev.RunID, "err", err)
	}
	return nil
}

// settleHistory resolves the pending record for sha to its final result, or
// appends a record when the dispatch-time entry is missing (the attempt may
// predate the governor, or its record may have been evicted).
func settleHistory(state *types.ReleaseState, sha, now string, result types.DeployResult) {
	for i := len(state.DeployHistory) - 1; i >= 0; i-- {
		rec := &state.DeployHistory[i]
		if rec.SHA == sha && rec.Result == types.DeployPending {
			rec.Result = result
			rec.Time = now
			return
		}
	}
	state.AppendHistory(types.DeployRecord{SHA: sha, Time: now, Result: result})
}

// reportDeployFailure opens a deduplicated GitHub issue for a failed or
// cancelled deploy. A failure of the same SHA within the dedup window
// appends a comment to the existing issue instead. Issue traffic is
// advisory; errors are logged and swallowed.
func (g *Governor) reportDeployFailure(ctx context.Context, ev types.WorkflowRunEvent) {
	repo := ev.RepoFullName
	failureType := ev.Conclusion
	if failureType == "" {
		failureType = "failure"
	}

	g.recordIncident(memory.Note{
		Kind:   memory.KindDeployFailure,
		Repo:   repo,
		SHA:    ev.HeadSHA,
		Reason: failureType,
	})

	title := fmt.Sprintf("Deploy failed for %s", shortSHA(ev.HeadSHA))
	body := fmt.Sprintf(
		"The deploy workflow for `%s` concluded with `%s` (run %d).\n\nProduction was left unchanged.",
		ev.HeadSHA, failureType, ev.RunID,
	)

	if number, ok := g.recentFailureIssue(ctx, repo, ev.HeadSHA); ok {
		comment := fmt.Sprintf("Another deploy of `%s` concluded with `%s` (run %d).", ev.HeadSHA, failureType, ev.RunID)
		if err := g.gh.CommentIssue(ctx, repo, number, comment); err != nil {
			g.logger.Warn("deploy failure comment failed", "repo", repo, "issue", number, "err", err)
		}
		return
	}

	labels := []string{failureIssueLabel, "severity:high", failureType}
	if _, err := g.gh.CreateIssue(ctx, repo, title, body, labels); err != nil {
		g.logger.Warn("deploy failure issue creation failed", "repo", repo, "sha", ev.HeadSHA, "err", err)
	}
}

// recentFailureIssue finds an open deploy-failure issue for sha created
// within the dedup window.
func (g *Governor) recentFailureIssue(ctx context.Context, repo, sha string) (int, bool) {
	issues, err := g.gh.ListOpenIssues(ctx, repo, failureIssueLabel)
	if err != nil {
		g.logger.Warn("deploy failure issue lookup failed", "repo", repo, "err", err)
		return 0, false
	}
	cutoff := g.now().UTC().Add(-failureIssueWindow)
	short := shortSHA(sha)
	for _, issue := range issues {
		createdAt, err := time.Parse(time.RFC3339, issue.CreatedAt)
		if err != nil {
			continue
		}
		if createdAt.After(cutoff) && strings.Contains(issue.Title, short) {
			return issue.Number, true
		}
	}
	return 0, false
}
