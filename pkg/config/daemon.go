package config

import (
	"fmt"
	"time"
)

// DaemonConfig is the runtime configuration for governord itself, assembled
// from flags with environment fallbacks in cmd/governord.
type DaemonConfig struct {
	ListenAddr    string
	StateDir      string
	WorkspaceRoot string
	WebhookSecret string
	GitHubToken   string
	GitHubBaseURL string
	Workers       int
	QueueSize     int
	LogLevel      string

	// EnqueueTimeout bounds how long a webhook handler waits for queue
	// capacity before reporting a transient failure.
	EnqueueTimeout time.Duration
}

// Validate rejects configurations the daemon cannot run with.
func (c *DaemonConfig) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("config: state directory is required")
	}
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("config: workspace root is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be > 0, got %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("config: queue size must be > 0, got %d", c.QueueSize)
	}
	return nil
}
