package governor

import (
	"context"
	"strings"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/types"
)

// resolveApproval assembles the three-channel approval context for a
// commit. Every channel is evaluated; the decision engine accepts any one.
// GitHub lookups fail soft to "not approved": a flaky API call must never
// grant an approval, and withholding one only holds the deploy.
func (g *Governor) resolveApproval(ctx context.Context, repo, sha string, cfg *config.ReleaseGovernorConfig) types.ApprovalContext {
	approval := types.ApprovalContext{EnvApproved: g.envApproved()}

	pulls, err := g.gh.ListCommitPulls(ctx, repo, sha)
	if err != nil {
		g.logger.Warn("approval lookup failed, treating as unapproved", "repo", repo, "sha", sha, "err", err)
		return approval
	}

	for _, pr := range pulls {
		for _, label := range pr.Labels {
			if label == cfg.ApprovalLabel {
				approval.LabelApproved = true
			}
		}
		if approval.CommentApproved {
			continue
		}
		comments, err := g.gh.ListIssueComments(ctx, repo, pr.Number)
		if err != nil {
			g.logger.Warn("approval comment lookup failed", "repo", repo, "pr", pr.Number, "err", err)
			continue
		}
		for _, c := range comments {
			if strings.TrimSpace(c.Body) == cfg.ApprovalCommand {
				approval.CommentApproved = true
				break
			}
		}
	}
	return approval
}
