// Package config loads governor configuration: the per-repository release
// policy file committed to the governed repo, and the daemon's own runtime
// settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RepoConfigPath is where the release policy lives inside a governed
// repository.
const RepoConfigPath = ".github/release-governor.yml"

// Approval modes select the remediation hint shown on a HOLD; all three
// channels are always evaluated regardless of mode.
const (
	ApprovalModeLabel       = "label"
	ApprovalModeComment     = "comment"
	ApprovalModeEnvironment = "environment"
)

// VerificationConfig holds the commands run against a cloned workspace
// before any release decision is made.
type VerificationConfig struct {
	SetupCommand   string `yaml:"setup_command"`
	InstallCommand string `yaml:"install_command"`
	TestCommand    string `yaml:"test_command"`
	TimeoutMinutes int    `yaml:"timeout_minutes"`
}

// ReleaseGovernorConfig is the per-repository release policy.
type ReleaseGovernorConfig struct {
	Enabled                      bool               `yaml:"enabled"`
	DeployWorkflowName           string             `yaml:"deploy_workflow_name"`
	VerificationWorkflowName     string             `yaml:"verification_workflow_name"`
	CooldownMinutes              int                `yaml:"cooldown_minutes"`
	MaxDeploysPerHour            int                `yaml:"max_deploys_per_hour"`
	RequireApprovalForFirstDeploy bool              `yaml:"require_approval_for_first_deploy"`
	ApprovalMode                 string             `yaml:"approval_mode"`
	ApprovalLabel                string             `yaml:"approval_label"`
	ApprovalCommand              string             `yaml:"approval_command"`
	HighRiskPaths                []string           `yaml:"high_risk_paths"`
	MediumRiskPaths              []string           `yaml:"medium_risk_paths"`
	Verification                 VerificationConfig `yaml:"verification"`
}

// ErrDisabled is returned when a repository carries a config that turns the
// governor off.
var ErrDisabled = errors.New("config: release governor disabled for repository")

// DefaultReleaseGovernorConfig returns the policy used when a repository has
// no config file of its own.
func DefaultReleaseGovernorConfig() *ReleaseGovernorConfig {
	return &ReleaseGovernorConfig{
		Enabled:                  true,
		VerificationWorkflowName: "verify",
		CooldownMinutes:          30,
		MaxDeploysPerHour:        6,
		ApprovalMode:             ApprovalModeLabel,
		ApprovalLabel:            "deploy-approved",
		ApprovalCommand:          "/approve-deploy",
		HighRiskPaths: []string{
			".github/workflows/**",
			"Dockerfile",
			"deploy/**",
			"infra/**",
			"terraform/**",
			"**/*.tf",
			"db/migrations/**",
		},
		MediumRiskPaths: []string{
			"**/*.sql",
			"go.mod",
			"go.sum",
			"package.json",
			"package-lock.json",
			"requirements.txt",
		},
		Verification: VerificationConfig{
			TimeoutMinutes: 20,
		},
	}
}

// ParseReleaseGovernorConfig decodes YAML bytes over the default policy and
// applies GOVERNOR_* environment overrides.
func ParseReleaseGovernorConfig(data []byte) (*ReleaseGovernorConfig, error) {
	cfg := DefaultReleaseGovernorConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse release governor config: %w", err)
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	return cfg, nil
}

// LoadReleaseGovernorConfig reads the policy file from a checked-out
// workspace. A missing file yields (nil, nil): the caller decides whether to
// fall back to defaults or treat the repository as ungoverned.
func LoadReleaseGovernorConfig(workspaceDir string) (*ReleaseGovernorConfig, error) {
	data, err := os.ReadFile(filepath.Join(workspaceDir, RepoConfigPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", RepoConfigPath, err)
	}
	return ParseReleaseGovernorConfig(data)
}

// Validate checks field constraints that cannot be expressed as defaults.
func (c *ReleaseGovernorConfig) Validate() error {
	switch c.ApprovalMode {
	case ApprovalModeLabel, ApprovalModeComment, ApprovalModeEnvironment:
	default:
		return fmt.Errorf("config: invalid approval_mode %q", c.ApprovalMode)
	}
	if c.CooldownMinutes < 0 {
		return fmt.Errorf("config: cooldown_minutes must be >= 0, got %d", c.CooldownMinutes)
	}
	if c.MaxDeploysPerHour < 0 {
		return fmt.Errorf("config: max_deploys_per_hour must be >= 0, got %d", c.MaxDeploysPerHour)
	}
	return nil
}

func (c *ReleaseGovernorConfig) applyEnvOverrides() {
	if v, ok := lookupEnv("GOVERNOR_ENABLED"); ok {
		c.Enabled = parseBool(v, c.Enabled)
	}
	if v, ok := lookupEnv("GOVERNOR_DEPLOY_WORKFLOW"); ok {
		c.DeployWorkflowName = v
	}
	if v, ok := lookupEnv("GOVERNOR_VERIFICATION_WORKFLOW"); ok {
		c.VerificationWorkflowName = v
	}
	if v, ok := lookupEnv("GOVERNOR_COOLDOWN_MINUTES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.CooldownMinutes = n
		}
	}
	if v, ok := lookupEnv("GOVERNOR_MAX_DEPLOYS_PER_HOUR"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDeploysPerHour = n
		}
	}
	if v, ok := lookupEnv("GOVERNOR_APPROVAL_MODE"); ok {
		c.ApprovalMode = v
	}
	if v, ok := lookupEnv("GOVERNOR_APPROVAL_LABEL"); ok {
		c.ApprovalLabel = v
	}
	if v, ok := lookupEnv("GOVERNOR_APPROVAL_COMMAND"); ok {
		c.ApprovalCommand = v
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// EnvApproved reports the environment approval channel: an operator setting
// GOVERNOR_APPROVE_DEPLOY grants the environment bit of the approval
// context.
func EnvApproved() bool {
	v, ok := lookupEnv("GOVERNOR_APPROVE_DEPLOY")
	return ok && parseBool(v, false)
}
