// Package decision implements the release policy rule table. The engine is
// a pure function of its inputs: it never mutates release state, and all
// persistence happens in the caller after the decision is made.
package decision

import (
	"time"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/types"
)

// rateLimitWindow is the trailing window the hourly deploy cap counts over.
const rateLimitWindow = time.Hour

// Input carries everything the rule table evaluates.
type Input struct {
	SHA       string
	RiskClass types.RiskClass
	Config    *config.ReleaseGovernorConfig
	State     *types.ReleaseState
	Approval  types.ApprovalContext
	Degraded  bool
}

// Engine evaluates the policy rule table with an injected clock so the
// cooldown and rate-limit windows are deterministic under test.
type Engine struct {
	now func() time.Time
}

// New returns an Engine on the wall clock.
func New() *Engine {
	return NewWithClock(time.Now)
}

// NewWithClock returns an Engine on the given time source.
func NewWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Evaluate runs the rule table in strict order; the first matching rule
// wins.
//
//  1. No deploy workflow configured: HOLD, always checked first.
//  2. First deploy requiring approval without any approval signal: HOLD.
//  3. Degraded service and HIGH risk: HOLD.
//  4. Cooldown after a failed attempt of this exact SHA: HOLD.
//  5. Hourly deploy cap reached: HOLD.
//  6. LOW risk: ALLOW.
//  7. MEDIUM risk: HOLD while degraded, else ALLOW.
//  8. HIGH risk: ALLOW with any approval channel granted, else HOLD.
func (e *Engine) Evaluate(in Input) types.Decision {
	d := types.Decision{
		RiskClass: in.RiskClass,
		SHA:       in.SHA,
	}

	if in.Config.DeployWorkflowName == "" {
		return hold(d, types.ReasonDeployNotConfigured)
	}

	if in.State.FirstDeploy() && in.Config.RequireApprovalForFirstDeploy && !in.Approval.Any() {
		return hold(d, types.ReasonFirstDeployRequired)
	}

	if in.Degraded && in.RiskClass == types.RiskHigh {
		return hold(d, types.ReasonDegradedHighRisk)
	}

	if e.inCooldown(in) {
		return hold(d, types.ReasonCooldown)
	}

	if e.rateLimited(in) {
		return hold(d, types.ReasonRateLimit)
	}

	switch in.RiskClass {
	case types.RiskLow:
		return allow(d, types.ReasonAllowLow)
	case types.RiskMedium:
		if in.Degraded {
			return hold(d, types.ReasonDegradedMediumHold)
		}
		return allow(d, types.ReasonAllowMedium)
	default:
		if in.Approval.Any() {
			return allow(d, types.ReasonAllowHighApproved)
		}
		return hold(d, types.ReasonHighRiskNoApproval)
	}
}

// inCooldown reports whether the immediately preceding attempt was a
// failure of this exact SHA within the cooldown window. Only retries of the
// same failed SHA are blocked; unrelated new SHAs pass. A missing or
// malformed timestamp counts as "no prior event" — the engine fails open
// rather than blocking on unreadable state.
func (e *Engine) inCooldown(in Input) bool {
	if in.Config.CooldownMinutes <= 0 {
		return false
	}
	st := in.State
	if st.LastDeployAttemptSHA != in.SHA || st.LastDeployResult != types.DeployFailure {
		return false
	}
	failedAt, err := time.Parse(time.RFC3339, st.LastDeployTime)
	if err != nil {
		return false
	}
	elapsed := e.now().UTC().Sub(failedAt)
	return elapsed < time.Duration(in.Config.CooldownMinutes)*time.Minute
}

// rateLimited counts deploy attempts recorded in the trailing hour against
// the configured cap. Entries with malformed timestamps are skipped.
func (e *Engine) rateLimited(in Input) bool {
	if in.Config.MaxDeploysPerHour <= 0 {
		return false
	}
	cutoff := e.now().UTC().Add(-rateLimitWindow)
	count := 0
	for _, rec := range in.State.DeployHistory {
		at, err := time.Parse(time.RFC3339, rec.Time)
		if err != nil {
			continue
		}
		if at.After(cutoff) {
			count++
		}
	}
	return count >= in.Config.MaxDeploysPerHour
}

func hold(d types.Decision, reason types.Reason) types.Decision {
	d.Outcome = types.OutcomeHold
	d.Reason = reason
	return d
}

func allow(d types.Decision, reason types.Reason) types.Decision {
	d.Outcome = types.OutcomeAllow
	d.Reason = reason
	return d
}
