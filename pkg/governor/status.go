package governor

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/github"
	"github.com/bootyhq/booty/pkg/types"
)

// maxStatusDescription is GitHub's commit-status description limit.
const maxStatusDescription = 140

// shortSHA trims a full SHA down to the conventional 7 characters.
func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// remediationHint returns the one-line operator hint for a HOLD reason.
// Approval-related holds point at the configured approval channel.
func remediationHint(reason types.Reason, cfg *config.ReleaseGovernorConfig) string {
	switch reason {
	case types.ReasonDeployNotConfigured:
		return "set deploy_workflow_name in " + config.RepoConfigPath
	case types.ReasonFirstDeployRequired, types.ReasonHighRiskNoApproval:
		switch cfg.ApprovalMode {
		case config.ApprovalModeComment:
			return fmt.Sprintf("comment %q on the PR to approve", cfg.ApprovalCommand)
		case config.ApprovalModeEnvironment:
			return "set GOVERNOR_APPROVE_DEPLOY=1 to approve"
		default:
			return fmt.Sprintf("add the %q label to the PR to approve", cfg.ApprovalLabel)
		}
	case types.ReasonDegradedHighRisk, types.ReasonDegradedMediumHold:
		return "service degraded; retry after recovery"
	case types.ReasonCooldown:
		return fmt.Sprintf("last attempt of this commit failed; wait %dm before retrying", cfg.CooldownMinutes)
	case types.ReasonRateLimit:
		return fmt.Sprintf("hourly deploy cap (%d) reached; retry later", cfg.MaxDeploysPerHour)
	case types.ReasonVerificationFailed:
		return "fix the failing verification run and push again"
	default:
		return ""
	}
}

// statusDescription renders the human-facing summary for a decision,
// bounded to GitHub's length limit.
func statusDescription(d types.Decision, cfg *config.ReleaseGovernorConfig) string {
	var desc string
	if d.Allowed() {
		desc = fmt.Sprintf("deploy allowed (%s, risk %s) @%s", d.Reason, d.RiskClass, shortSHA(d.SHA))
	} else {
		desc = fmt.Sprintf("deploy held (%s) @%s", d.Reason, shortSHA(d.SHA))
		if hint := remediationHint(d.Reason, cfg); hint != "" {
			desc += ": " + hint
		}
	}
	if len(desc) > maxStatusDescription {
		cut := maxStatusDescription - 3
		// Back up to a rune boundary so a multi-byte label is never split.
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut] + "..."
	}
	return desc
}

// publishDecision posts the commit status for a decision. Status writes are
// advisory; failures are logged, never propagated into control flow.
func (g *Governor) publishDecision(ctx context.Context, repo string, d types.Decision, cfg *config.ReleaseGovernorConfig) {
	state := github.StatusFailure
	if d.Allowed() {
		state = github.StatusSuccess
	}
	status := github.CommitStatus{
		State:       state,
		Description: statusDescription(d, cfg),
		Context:     github.StatusContext,
	}
	if err := g.gh.CreateCommitStatus(ctx, repo, d.SHA, status); err != nil {
		g.logger.Warn("commit status write failed", "repo", repo, "sha", d.SHA, "err", err)
	}
}
