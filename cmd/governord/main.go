// Package main runs governord, the booty release governor daemon: it
// receives GitHub workflow_run webhooks, verifies main-branch commits in
// isolated workspaces, and decides whether each verified commit may be
// promoted to production.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/github"
	"github.com/bootyhq/booty/pkg/governor"
	"github.com/bootyhq/booty/pkg/logging"
	"github.com/bootyhq/booty/pkg/memory"
	"github.com/bootyhq/booty/pkg/metrics"
	"github.com/bootyhq/booty/pkg/statestore"
	"github.com/bootyhq/booty/pkg/webhook"
	"github.com/bootyhq/booty/pkg/workspace"
)

const version = "0.1.0"

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "governord: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *config.DaemonConfig {
	cfg := &config.DaemonConfig{}

	flag.StringVar(&cfg.ListenAddr, "listen", envOr("GOVERNOR_LISTEN_ADDR", ":8090"), "HTTP listen address")
	flag.StringVar(&cfg.StateDir, "state-dir", envOr("GOVERNOR_STATE_DIR", defaultStateDir()), "directory for governor state documents")
	flag.StringVar(&cfg.WorkspaceRoot, "workspace-root", envOr("GOVERNOR_WORKSPACE_ROOT", filepath.Join(os.TempDir(), "booty-workspaces")), "root for per-job clone workspaces")
	flag.StringVar(&cfg.WebhookSecret, "webhook-secret", os.Getenv("GOVERNOR_WEBHOOK_SECRET"), "GitHub webhook HMAC secret (empty disables verification)")
	flag.StringVar(&cfg.GitHubToken, "github-token", os.Getenv("GITHUB_TOKEN"), "GitHub API token")
	flag.StringVar(&cfg.GitHubBaseURL, "github-api", os.Getenv("GITHUB_API_URL"), "GitHub API base URL override")
	flag.IntVar(&cfg.Workers, "workers", 2, "verification worker count")
	flag.IntVar(&cfg.QueueSize, "queue-size", 32, "verification queue capacity")
	flag.StringVar(&cfg.LogLevel, "log-level", envOr("GOVERNOR_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("governord v%s\n", version)
		os.Exit(0)
	}

	cfg.EnqueueTimeout = 5 * time.Second
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".booty/state"
	}
	return filepath.Join(home, ".booty", "state")
}

func run(cfg *config.DaemonConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New("governord", logging.ParseLevel(cfg.LogLevel))

	store, err := statestore.New(cfg.StateDir, logger)
	if err != nil {
		return err
	}
	workspaces, err := workspace.NewManager(cfg.WorkspaceRoot)
	if err != nil {
		return err
	}
	recorder, err := memory.NewRecorder(filepath.Join(cfg.StateDir, "memory"))
	if err != nil {
		return err
	}

	var ghOpts []github.RESTOption
	if cfg.GitHubBaseURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(cfg.GitHubBaseURL))
	}
	gh := github.NewRESTClient(cfg.GitHubToken, ghOpts...)

	m := metrics.New()
	gov, err := governor.New(governor.Options{
		Store:          store,
		GitHub:         gh,
		Workspaces:     workspaces,
		Memory:         recorder,
		Metrics:        m,
		Logger:         logger,
		Loader:         &governor.RemoteConfigLoader{GH: gh},
		Workers:        cfg.Workers,
		QueueSize:      cfg.QueueSize,
		EnqueueTimeout: cfg.EnqueueTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gov.Start(ctx)

	mux := http.NewServeMux()
	webhook.NewHandler(gov, []byte(cfg.WebhookSecret), logger, m).Routes(mux)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("governord listening", "addr", cfg.ListenAddr, "state_dir", cfg.StateDir, "workers", cfg.Workers)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "err", err)
	}
	gov.Wait()
	return nil
}
