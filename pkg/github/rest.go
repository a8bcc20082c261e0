package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// maxRetries bounds retry attempts for transient (5xx / transport) errors.
const maxRetries = 3

// RESTClient implements Client against the GitHub REST v3 API.
type RESTClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	backoff    func(attempt int) time.Duration
}

// RESTOption customises client construction.
type RESTOption func(*RESTClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) RESTOption {
	return func(c *RESTClient) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithBaseURL points the client at a non-default API endpoint (GitHub
// Enterprise, or a test server).
func WithBaseURL(base string) RESTOption {
	return func(c *RESTClient) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithBackoff overrides the retry backoff schedule. Tests use this to avoid
// real sleeps.
func WithBackoff(backoff func(attempt int) time.Duration) RESTOption {
	return func(c *RESTClient) {
		if backoff != nil {
			c.backoff = backoff
		}
	}
}

// NewRESTClient constructs a RESTClient authenticated with token.
func NewRESTClient(token string, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 500 * time.Millisecond
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: request failed with status %d", e.Status)
	}
	return fmt.Sprintf("github: request failed (%d): %s", e.Status, e.Message)
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	return e.Status >= 500
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}
		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			return err
		}
	}
	return lastErr
}

func (c *RESTClient) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &errBody)
		return &APIError{Status: resp.StatusCode, Message: errBody.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decode response: %w", err)
	}
	return nil
}

// CompareCommits returns the changed file paths between base and head.
func (c *RESTClient) CompareCommits(ctx context.Context, repo, base, head string) ([]string, error) {
	var result struct {
		Files []struct {
			Filename string `json:"filename"`
		} `json:"files"`
	}
	path := fmt.Sprintf("/repos/%s/compare/%s...%s", repo, base, head)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	files := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, f.Filename)
	}
	return files, nil
}

// CreateCommitStatus posts a status against sha.
func (c *RESTClient) CreateCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error {
	path := fmt.Sprintf("/repos/%s/statuses/%s", repo, sha)
	return c.do(ctx, http.MethodPost, path, status, nil)
}

// DispatchWorkflow triggers a workflow_dispatch on ref.
func (c *RESTClient) DispatchWorkflow(ctx context.Context, repo, workflow, ref string, inputs map[string]string) error {
	body := struct {
		Ref    string            `json:"ref"`
		Inputs map[string]string `json:"inputs,omitempty"`
	}{Ref: ref, Inputs: inputs}
	path := fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", repo, url.PathEscape(workflow))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

type restIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (i restIssue) toIssue() Issue {
	out := Issue{Number: i.Number, Title: i.Title, CreatedAt: i.CreatedAt}
	for _, l := range i.Labels {
		out.Labels = append(out.Labels, l.Name)
	}
	return out
}

// CreateIssue opens an issue and returns its number.
func (c *RESTClient) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (int, error) {
	req := struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels,omitempty"`
	}{Title: title, Body: body, Labels: labels}
	var created restIssue
	path := fmt.Sprintf("/repos/%s/issues", repo)
	if err := c.do(ctx, http.MethodPost, path, req, &created); err != nil {
		return 0, err
	}
	return created.Number, nil
}

// CommentIssue appends a comment to an issue.
func (c *RESTClient) CommentIssue(ctx context.Context, repo string, number int, body string) error {
	req := struct {
		Body string `json:"body"`
	}{Body: body}
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// ListOpenIssues returns open issues carrying label.
func (c *RESTClient) ListOpenIssues(ctx context.Context, repo, label string) ([]Issue, error) {
	var issues []restIssue
	path := fmt.Sprintf("/repos/%s/issues?state=open&labels=%s&per_page=50", repo, url.QueryEscape(label))
	if err := c.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.toIssue())
	}
	return out, nil
}

// ListCommitPulls returns pull requests associated with a commit.
func (c *RESTClient) ListCommitPulls(ctx context.Context, repo, sha string) ([]PullRequest, error) {
	var pulls []struct {
		Number int `json:"number"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	path := fmt.Sprintf("/repos/%s/commits/%s/pulls", repo, sha)
	if err := c.do(ctx, http.MethodGet, path, nil, &pulls); err != nil {
		return nil, err
	}
	out := make([]PullRequest, 0, len(pulls))
	for _, p := range pulls {
		pr := PullRequest{Number: p.Number}
		for _, l := range p.Labels {
			pr.Labels = append(pr.Labels, l.Name)
		}
		out = append(out, pr)
	}
	return out, nil
}

// ListIssueComments returns comments on an issue or pull request.
func (c *RESTClient) ListIssueComments(ctx context.Context, repo string, number int) ([]Comment, error) {
	var comments []Comment
	path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=100", repo, number)
	if err := c.do(ctx, http.MethodGet, path, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// GetFileContents fetches a file from the repository at ref.
func (c *RESTClient) GetFileContents(ctx context.Context, repo, path, ref string) ([]byte, error) {
	var result struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	endpoint := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", repo, path, url.QueryEscape(ref))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	if result.Encoding != "base64" {
		return []byte(result.Content), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(result.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("github: decode file contents: %w", err)
	}
	return decoded, nil
}
