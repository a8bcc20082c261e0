package governor

import (
	"context"
	"errors"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/github"
)

// RemoteConfigLoader fetches the release policy file from the governed
// repository via the GitHub contents API. A repository without the file
// yields (nil, nil) so callers fall back to defaults.
type RemoteConfigLoader struct {
	GH github.Client
}

// Load implements ConfigLoader.
func (l *RemoteConfigLoader) Load(ctx context.Context, repo, ref string) (*config.ReleaseGovernorConfig, error) {
	data, err := l.GH.GetFileContents(ctx, repo, config.RepoConfigPath, ref)
	if err != nil {
		var apiErr *github.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return nil, nil
		}
		return nil, err
	}
	return config.ParseReleaseGovernorConfig(data)
}

// StaticConfigLoader serves one fixed policy for every repository. Tests
// and the simulate-decision CLI use it.
type StaticConfigLoader struct {
	Config *config.ReleaseGovernorConfig
}

// Load implements ConfigLoader.
func (l *StaticConfigLoader) Load(context.Context, string, string) (*config.ReleaseGovernorConfig, error) {
	return l.Config, nil
}
