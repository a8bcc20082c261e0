// Package github provides the thin GitHub API surface the governor
// consumes: diff comparison, commit statuses, workflow dispatch, issues,
// pull-request approval signals, and raw file contents.
package github

import "context"

// StatusContext is the commit-status context the governor publishes under.
const StatusContext = "booty/release-governor"

// Commit status states.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// CommitStatus is a status posted against a commit.
type CommitStatus struct {
	State       string `json:"state"`
	Description string `json:"description"`
	Context     string `json:"context"`
	TargetURL   string `json:"target_url,omitempty"`
}

// Issue is the subset of issue fields the governor reads.
type Issue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	CreatedAt string   `json:"created_at"`
	Labels    []string `json:"-"`
}

// PullRequest is the subset of PR fields used for approval resolution.
type PullRequest struct {
	Number int      `json:"number"`
	Labels []string `json:"-"`
}

// Comment is an issue or PR comment body.
type Comment struct {
	Body string `json:"body"`
}

// Client is the GitHub API abstraction the pipeline depends on. The REST
// implementation lives in this package; tests substitute fakes.
type Client interface {
	// CompareCommits returns the changed file paths between base and head.
	CompareCommits(ctx context.Context, repo, base, head string) ([]string, error)

	// CreateCommitStatus posts a status against sha.
	CreateCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error

	// DispatchWorkflow triggers a workflow_dispatch of the named workflow
	// file on ref with the given inputs.
	DispatchWorkflow(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error

	// CreateIssue opens an issue and returns its number.
	CreateIssue(ctx context.Context, repo, title, body string, labels []string) (int, error)

	// CommentIssue appends a comment to an existing issue.
	CommentIssue(ctx context.Context, repo string, number int, body string) error

	// ListOpenIssues returns open issues carrying the given label.
	ListOpenIssues(ctx context.Context, repo, label string) ([]Issue, error)

	// ListCommitPulls returns pull requests associated with a commit.
	ListCommitPulls(ctx context.Context, repo, sha string) ([]PullRequest, error)

	// ListIssueComments returns the comments on an issue or pull request.
	ListIssueComments(ctx context.Context, repo string, number int) ([]Comment, error)

	// GetFileContents fetches a file from the repository at ref.
	GetFileContents(ctx context.Context, repo, path, ref string) ([]byte, error)
}
