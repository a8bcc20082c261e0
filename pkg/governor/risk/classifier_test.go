package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/types"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	cfg := config.DefaultReleaseGovernorConfig()
	cfg.HighRiskPaths = []string{".github/workflows/**", "Dockerfile", "infra/**", "**/*.tf"}
	cfg.MediumRiskPaths = []string{"**/*.sql", "go.mod"}
	c, err := NewClassifier(cfg)
	require.NoError(t, err)
	return c
}

func TestClassify_EmptyDiffIsLow(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, types.RiskLow, c.Classify(nil))
	assert.Equal(t, types.RiskLow, c.Classify([]string{}))
}

func TestClassify_NoMatchIsLow(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, types.RiskLow, c.Classify([]string{"pkg/server/server.go", "README.md"}))
}

func TestClassify_HighRiskPath(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, types.RiskHigh, c.Classify([]string{".github/workflows/deploy.yml"}))
}

func TestClassify_HighIsTerminal(t *testing.T) {
	c := newTestClassifier(t)
	// A medium match after a high match cannot downgrade the result.
	files := []string{"infra/network.yaml", "schema/users.sql", "README.md"}
	assert.Equal(t, types.RiskHigh, c.Classify(files))
	// And a high match after a medium match still wins.
	files = []string{"schema/users.sql", "infra/network.yaml"}
	assert.Equal(t, types.RiskHigh, c.Classify(files))
}

func TestClassify_MediumRiskPath(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, types.RiskMedium, c.Classify([]string{"schema/users.sql", "pkg/x.go"}))
	assert.Equal(t, types.RiskMedium, c.Classify([]string{"go.mod"}))
}

func TestClassify_LeadingDoubleStarMatchesRootLevelFiles(t *testing.T) {
	c := newTestClassifier(t)
	// **/*.tf covers a root-level terraform file, not just nested ones.
	assert.Equal(t, types.RiskHigh, c.Classify([]string{"main.tf"}))
	assert.Equal(t, types.RiskHigh, c.Classify([]string{"envs/prod/main.tf"}))
	assert.Equal(t, types.RiskMedium, c.Classify([]string{"schema.sql"}))
}

func TestClassify_DefaultConfigFlagsRootTerraform(t *testing.T) {
	c, err := NewClassifier(config.DefaultReleaseGovernorConfig())
	require.NoError(t, err)
	assert.Equal(t, types.RiskHigh, c.Classify([]string{"main.tf"}))
}

func TestClassify_BareNameMatchesAnyComponent(t *testing.T) {
	c := newTestClassifier(t)
	// "Dockerfile" has no slash and matches like a bare gitignore name.
	assert.Equal(t, types.RiskHigh, c.Classify([]string{"services/api/Dockerfile"}))
}

func TestRiskPaths_SortedDrivers(t *testing.T) {
	c := newTestClassifier(t)

	files := []string{"infra/z.yaml", "infra/a.yaml", "pkg/x.go"}
	assert.Equal(t, []string{"infra/a.yaml", "infra/z.yaml"}, c.RiskPaths(files))

	files = []string{"schema/users.sql", "pkg/x.go"}
	assert.Equal(t, []string{"schema/users.sql"}, c.RiskPaths(files))

	assert.Nil(t, c.RiskPaths([]string{"pkg/x.go"}))
}

func TestNewClassifier_InvalidPattern(t *testing.T) {
	cfg := config.DefaultReleaseGovernorConfig()
	cfg.HighRiskPaths = []string{"[invalid"}
	_, err := NewClassifier(cfg)
	assert.Error(t, err)
}

func TestEffectiveClass(t *testing.T) {
	override := &types.SecurityOverride{RiskOverride: types.RiskHigh, SHA: "abc"}
	assert.Equal(t, types.RiskHigh, EffectiveClass(types.RiskLow, override))
	assert.Equal(t, types.RiskLow, EffectiveClass(types.RiskLow, nil))
	assert.Equal(t, types.RiskMedium, EffectiveClass(types.RiskMedium, &types.SecurityOverride{}))
}
