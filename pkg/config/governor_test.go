package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultReleaseGovernorConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30, cfg.CooldownMinutes)
	assert.Equal(t, 6, cfg.MaxDeploysPerHour)
	assert.Equal(t, ApprovalModeLabel, cfg.ApprovalMode)
	assert.NotEmpty(t, cfg.HighRiskPaths)
	assert.NoError(t, cfg.Validate())
}

func TestParse_OverridesDefaults(t *testing.T) {
	data := []byte(`
enabled: true
deploy_workflow_name: deploy
cooldown_minutes: 10
max_deploys_per_hour: 3
approval_mode: comment
approval_command: "/ship-it"
high_risk_paths:
  - "secrets/**"
verification:
  test_command: "go test ./..."
  timeout_minutes: 5
`)
	cfg, err := ParseReleaseGovernorConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "deploy", cfg.DeployWorkflowName)
	assert.Equal(t, 10, cfg.CooldownMinutes)
	assert.Equal(t, 3, cfg.MaxDeploysPerHour)
	assert.Equal(t, ApprovalModeComment, cfg.ApprovalMode)
	assert.Equal(t, "/ship-it", cfg.ApprovalCommand)
	assert.Equal(t, []string{"secrets/**"}, cfg.HighRiskPaths)
	assert.Equal(t, "go test ./...", cfg.Verification.TestCommand)
	assert.Equal(t, 5, cfg.Verification.TimeoutMinutes)
}

func TestParse_Disabled(t *testing.T) {
	_, err := ParseReleaseGovernorConfig([]byte("enabled: false\n"))
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestParse_InvalidApprovalMode(t *testing.T) {
	_, err := ParseReleaseGovernorConfig([]byte("approval_mode: carrier-pigeon\n"))
	assert.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := ParseReleaseGovernorConfig([]byte("deploy_workflow_name: [unclosed\n"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOVERNOR_COOLDOWN_MINUTES", "45")
	t.Setenv("GOVERNOR_APPROVAL_MODE", "environment")
	t.Setenv("GOVERNOR_DEPLOY_WORKFLOW", "release")

	cfg, err := ParseReleaseGovernorConfig([]byte("enabled: true\n"))
	require.NoError(t, err)

	assert.Equal(t, 45, cfg.CooldownMinutes)
	assert.Equal(t, ApprovalModeEnvironment, cfg.ApprovalMode)
	assert.Equal(t, "release", cfg.DeployWorkflowName)
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()

	// Missing file means "no policy here".
	cfg, err := LoadReleaseGovernorConfig(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".github"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, RepoConfigPath),
		[]byte("deploy_workflow_name: deploy\n"),
		0o644,
	))

	cfg, err = LoadReleaseGovernorConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "deploy", cfg.DeployWorkflowName)
}

func TestEnvApproved(t *testing.T) {
	assert.False(t, EnvApproved())

	t.Setenv("GOVERNOR_APPROVE_DEPLOY", "1")
	assert.True(t, EnvApproved())

	t.Setenv("GOVERNOR_APPROVE_DEPLOY", "no")
	assert.False(t, EnvApproved())
}
