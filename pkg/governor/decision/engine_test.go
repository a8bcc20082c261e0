package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/types"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testConfig() *config.ReleaseGovernorConfig {
	cfg := config.DefaultReleaseGovernorConfig()
	cfg.DeployWorkflowName = "deploy"
	return cfg
}

func baseInput(risk types.RiskClass) Input {
	return Input{
		SHA:       "abc1234def",
		RiskClass: risk,
		Config:    testConfig(),
		State:     &types.ReleaseState{ProductionSHACurrent: "prior00"},
	}
}

func TestEvaluate_AllowLow(t *testing.T) {
	engine := NewWithClock(fixedClock)
	d := engine.Evaluate(baseInput(types.RiskLow))

	assert.Equal(t, types.Decision{
		Outcome:   types.OutcomeAllow,
		Reason:    types.ReasonAllowLow,
		RiskClass: types.RiskLow,
		SHA:       "abc1234def",
	}, d)
}

func TestEvaluate_DeployNotConfiguredAlwaysFirst(t *testing.T) {
	engine := NewWithClock(fixedClock)
	in := baseInput(types.RiskLow)
	in.Config.DeployWorkflowName = ""
	// Stack every other holdable condition; misconfiguration still wins.
	in.Degraded = true
	in.RiskClass = types.RiskHigh

	d := engine.Evaluate(in)
	assert.Equal(t, types.OutcomeHold, d.Outcome)
	assert.Equal(t, types.ReasonDeployNotConfigured, d.Reason)
}

func TestEvaluate_FirstDeployApproval(t *testing.T) {
	engine := NewWithClock(fixedClock)

	in := baseInput(types.RiskLow)
	in.State = &types.ReleaseState{}
	in.Config.RequireApprovalForFirstDeploy = true

	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonFirstDeployRequired, d.Reason)

	in.Approval = types.ApprovalContext{CommentApproved: true}
	d = engine.Evaluate(in)
	assert.Equal(t, types.ReasonAllowLow, d.Reason)
}

func TestEvaluate_DegradedHighPrecedesApprovalRule(t *testing.T) {
	engine := NewWithClock(fixedClock)
	in := baseInput(types.RiskHigh)
	in.Degraded = true

	// Even without approval, the degraded rule must win over rule 8.
	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonDegradedHighRisk, d.Reason)

	// And with approval present the answer is unchanged.
	in.Approval = types.ApprovalContext{EnvApproved: true}
	d = engine.Evaluate(in)
	assert.Equal(t, types.ReasonDegradedHighRisk, d.Reason)
}

func TestEvaluate_CooldownSameSHAOnly(t *testing.T) {
	engine := NewWithClock(fixedClock)
	failedAt := testNow.Add(-5 * time.Minute).Format(time.RFC3339)

	for _, risk := range []types.RiskClass{types.RiskLow, types.RiskMedium, types.RiskHigh} {
		in := baseInput(risk)
		in.Approval = types.ApprovalContext{EnvApproved: true}
		in.State.LastDeployAttemptSHA = in.SHA
		in.State.LastDeployResult = types.DeployFailure
		in.State.LastDeployTime = failedAt
		in.Config.CooldownMinutes = 30

		d := engine.Evaluate(in)
		assert.Equal(t, types.ReasonCooldown, d.Reason, "risk %s", risk)
	}

	// A different SHA is not blocked by someone else's failure.
	in := baseInput(types.RiskLow)
	in.State.LastDeployAttemptSHA = "other999"
	in.State.LastDeployResult = types.DeployFailure
	in.State.LastDeployTime = failedAt
	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonAllowLow, d.Reason)
}

func TestEvaluate_CooldownExpired(t *testing.T) {
	engine := NewWithClock(fixedClock)
	in := baseInput(types.RiskLow)
	in.State.LastDeployAttemptSHA = in.SHA
	in.State.LastDeployResult = types.DeployFailure
	in.State.LastDeployTime = testNow.Add(-45 * time.Minute).Format(time.RFC3339)
	in.Config.CooldownMinutes = 30

	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonAllowLow, d.Reason)
}

func TestEvaluate_MalformedTimestampFailsOpen(t *testing.T) {
	engine := NewWithClock(fixedClock)
	in := baseInput(types.RiskLow)
	in.State.LastDeployAttemptSHA = in.SHA
	in.State.LastDeployResult = types.DeployFailure
	in.State.LastDeployTime = "not-a-timestamp"
	in.Config.CooldownMinutes = 30

	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonAllowLow, d.Reason)
}

func TestEvaluate_RateLimit(t *testing.T) {
	engine := NewWithClock(fixedClock)
	in := baseInput(types.RiskLow)
	in.Config.MaxDeploysPerHour = 6
	for i := 0; i < 6; i++ {
		in.State.AppendHistory(types.DeployRecord{
			SHA:    "sha",
			Time:   testNow.Add(-time.Duration(i*5) * time.Minute).Format(time.RFC3339),
			Result: types.DeploySuccess,
		})
	}

	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonRateLimit, d.Reason)
}

func TestEvaluate_RateLimitIgnoresOldEntries(t *testing.T) {
	engine := NewWithClock(fixedClock)
	in := baseInput(types.RiskLow)
	in.Config.MaxDeploysPerHour = 6
	for i := 0; i < 6; i++ {
		in.State.AppendHistory(types.DeployRecord{
			SHA:    "sha",
			Time:   testNow.Add(-2 * time.Hour).Format(time.RFC3339),
			Result: types.DeploySuccess,
		})
	}

	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonAllowLow, d.Reason)
}

func TestEvaluate_MediumRisk(t *testing.T) {
	engine := NewWithClock(fixedClock)

	in := baseInput(types.RiskMedium)
	d := engine.Evaluate(in)
	assert.Equal(t, types.ReasonAllowMedium, d.Reason)

	in.Degraded = true
	d = engine.Evaluate(in)
	assert.Equal(t, types.ReasonDegradedMediumHold, d.Reason)
}

func TestEvaluate_HighRisk(t *testing.T) {
	engine := NewWithClock(fixedClock)

	in := baseInput(types.RiskHigh)
	d := engine.Evaluate(in)
	assert.Equal(t, types.Decision{
		Outcome:   types.OutcomeHold,
		Reason:    types.ReasonHighRiskNoApproval,
		RiskClass: types.RiskHigh,
		SHA:       in.SHA,
	}, d)

	for _, approval := range []types.ApprovalContext{
		{EnvApproved: true},
		{LabelApproved: true},
		{CommentApproved: true},
	} {
		in.Approval = approval
		d = engine.Evaluate(in)
		assert.Equal(t, types.ReasonAllowHighApproved, d.Reason)
	}
}

func TestEvaluate_PureAndSideEffectFree(t *testing.T) {
	engine := NewWithClock(fixedClock)
	in := baseInput(types.RiskMedium)
	in.State.AppendHistory(types.DeployRecord{SHA: "s", Time: testNow.Format(time.RFC3339), Result: types.DeploySuccess})

	before := *in.State
	beforeHistory := append([]types.DeployRecord(nil), in.State.DeployHistory...)

	first := engine.Evaluate(in)
	second := engine.Evaluate(in)

	require.Equal(t, first, second)
	assert.Equal(t, before.ProductionSHACurrent, in.State.ProductionSHACurrent)
	assert.Equal(t, beforeHistory, in.State.DeployHistory)
}
