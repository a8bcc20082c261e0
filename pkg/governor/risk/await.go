package risk

import (
	"context"
	"time"

	"github.com/bootyhq/booty/pkg/types"
)

// OverrideSource yields security overrides for a commit. The statestore
// satisfies this.
type OverrideSource interface {
	GetOverride(repo, sha string) (*types.SecurityOverride, bool, error)
}

const (
	// DefaultOverrideMaxWait bounds how long a verification waits for the
	// security agent's async scan before proceeding on diff evidence alone.
	DefaultOverrideMaxWait = 120 * time.Second

	// DefaultOverridePollInterval is the re-check cadence within the wait
	// window.
	DefaultOverridePollInterval = 5 * time.Second
)

// AwaitOverride polls src for a security override on (repo, sha) until one
// appears, ctx is cancelled, or maxWait elapses. It fails open: when the
// window closes without a signal, it returns (nil, nil) and classification
// proceeds from the diff. Store errors are likewise treated as "no
// override" so an unreadable override file cannot wedge deploys.
func AwaitOverride(ctx context.Context, src OverrideSource, repo, sha string, maxWait, interval time.Duration) (*types.SecurityOverride, error) {
	if maxWait <= 0 {
		maxWait = DefaultOverrideMaxWait
	}
	if interval <= 0 {
		interval = DefaultOverridePollInterval
	}

	if o, ok, err := src.GetOverride(repo, sha); err == nil && ok {
		return o, nil
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-ticker.C:
			if o, ok, err := src.GetOverride(repo, sha); err == nil && ok {
				return o, nil
			}
		}
	}
}

// EffectiveClass applies an override on top of the diff-derived class. The
// override's value is used verbatim when present.
func EffectiveClass(diffClass types.RiskClass, override *types.SecurityOverride) types.RiskClass {
	if override != nil && override.RiskOverride != "" {
		return override.RiskOverride
	}
	return diffClass
}
