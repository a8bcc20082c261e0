// Package types defines the shared domain types for the booty release
// governor: workflow events, risk classes, decisions, and the persisted
// release state shared by the pipeline, the decision engine, and the CLI.
package types

import "time"

// RiskClass categorizes the blast radius of a diff.
type RiskClass string

const (
	RiskLow    RiskClass = "LOW"
	RiskMedium RiskClass = "MEDIUM"
	RiskHigh   RiskClass = "HIGH"
)

// Outcome is a terminal release decision. Hold means "do not deploy".
type Outcome string

const (
	OutcomeAllow Outcome = "ALLOW"
	OutcomeHold  Outcome = "HOLD"
)

// Reason identifies which policy rule produced a decision. Reasons double
// as message-template keys for the commit status description.
type Reason string

const (
	ReasonDeployNotConfigured Reason = "deploy_not_configured"
	ReasonFirstDeployRequired Reason = "first_deploy_required"
	ReasonDegradedHighRisk    Reason = "degraded_high_risk"
	ReasonCooldown            Reason = "cooldown"
	ReasonRateLimit           Reason = "rate_limit"
	ReasonAllowLow            Reason = "allow_low"
	ReasonAllowMedium         Reason = "allow_medium"
	ReasonDegradedMediumHold  Reason = "degraded_medium_hold"
	ReasonAllowHighApproved   Reason = "allow_high_approved"
	ReasonHighRiskNoApproval  Reason = "high_risk_no_approval"
	ReasonVerificationFailed  Reason = "verification_failed"
)

// Decision is the result of evaluating the policy rule table for one
// verified head commit. It is ephemeral; persistence happens in the caller.
type Decision struct {
	Outcome   Outcome   `json:"outcome"`
	Reason    Reason    `json:"reason"`
	RiskClass RiskClass `json:"risk_class"`
	SHA       string    `json:"sha"`
}

// Allowed reports whether the decision permits the deploy.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// DeployResult is the lifecycle state of a single deploy attempt.
type DeployResult string

const (
	DeployPending DeployResult = "pending"
	DeploySuccess DeployResult = "success"
	DeployFailure DeployResult = "failure"
)

// DeployRecord is one entry in the deploy history ring.
type DeployRecord struct {
	SHA    string       `json:"sha"`
	Time   string       `json:"time"`
	Result DeployResult `json:"result"`
}

// DeployHistoryCap bounds the persisted deploy history; the oldest entry is
// evicted first once the cap is reached.
const DeployHistoryCap = 24

// ReleaseState is the per-repository durable record of what is deployed and
// what was last attempted. Empty strings mean "never happened".
type ReleaseState struct {
	ProductionSHACurrent  string         `json:"production_sha_current"`
	ProductionSHAPrevious string         `json:"production_sha_previous"`
	LastDeployAttemptSHA  string         `json:"last_deploy_attempt_sha"`
	LastDeployTime        string         `json:"last_deploy_time"`
	LastDeployResult      DeployResult   `json:"last_deploy_result"`
	DeployHistory         []DeployRecord `json:"deploy_history"`
}

// FirstDeploy reports whether this repository has never reached production.
func (s *ReleaseState) FirstDeploy() bool {
	return s.ProductionSHACurrent == ""
}

// AppendHistory appends a record, evicting the oldest entry beyond the cap.
func (s *ReleaseState) AppendHistory(rec DeployRecord) {
	s.DeployHistory = append(s.DeployHistory, rec)
	if len(s.DeployHistory) > DeployHistoryCap {
		s.DeployHistory = s.DeployHistory[len(s.DeployHistory)-DeployHistoryCap:]
	}
}

// SecurityOverride is an out-of-band risk escalation written by the security
// scanning agent and consumed read-only by the governor.
type SecurityOverride struct {
	RiskOverride RiskClass `json:"risk_override"`
	Reason       string    `json:"reason"`
	SHA          string    `json:"sha"`
	Paths        []string  `json:"paths"`
	CreatedAt    string    `json:"created_at"`
}

// OverrideTTL is how long a security override stays live before the store
// prunes it.
const OverrideTTL = 14 * 24 * time.Hour

// Expired reports whether the override is older than OverrideTTL at now.
// Overrides with unparseable timestamps are treated as expired so a corrupt
// entry cannot pin a repository at HIGH risk forever.
func (o *SecurityOverride) Expired(now time.Time) bool {
	created, err := time.Parse(time.RFC3339, o.CreatedAt)
	if err != nil {
		return true
	}
	return now.Sub(created) > OverrideTTL
}

// ApprovalContext carries the three human approval channels. Any single
// channel being true satisfies a HIGH-risk approval requirement.
type ApprovalContext struct {
	EnvApproved     bool `json:"env_approved"`
	LabelApproved   bool `json:"label_approved"`
	CommentApproved bool `json:"comment_approved"`
}

// Any reports whether at least one approval channel granted.
func (a ApprovalContext) Any() bool {
	return a.EnvApproved || a.LabelApproved || a.CommentApproved
}

// WorkflowRunEvent is the normalized form of a GitHub workflow_run webhook
// delivery, produced by the webhook layer.
type WorkflowRunEvent struct {
	Action       string `json:"action"`
	HeadSHA      string `json:"head_sha"`
	HeadBranch   string `json:"head_branch"`
	WorkflowName string `json:"workflow_name"`
	WorkflowPath string `json:"workflow_path"`
	Conclusion   string `json:"conclusion"`
	RepoFullName string `json:"repo_full_name"`
	RunID        int64  `json:"run_id"`
	DeliveryID   string `json:"delivery_id"`
}
