// Package governor implements the release governor pipeline: webhook-fed
// verification of main-branch commits, risk classification, the policy
// decision, deploy dispatch, and deploy outcome tracking.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bootyhq/booty/pkg/config"
	"github.com/bootyhq/booty/pkg/github"
	"github.com/bootyhq/booty/pkg/governor/decision"
	"github.com/bootyhq/booty/pkg/memory"
	"github.com/bootyhq/booty/pkg/metrics"
	"github.com/bootyhq/booty/pkg/statestore"
	"github.com/bootyhq/booty/pkg/types"
	"github.com/bootyhq/booty/pkg/workspace"
)

// Enqueue failure modes. ErrDuplicate suppresses redelivery of an event
// already seen; ErrQueueFull is a transient capacity condition.
var (
	ErrDuplicate = errors.New("governor: verification already enqueued or processed")
	ErrQueueFull = errors.New("governor: verification queue full")
)

// ConfigLoader resolves the release policy for a repository at a ref. The
// daemon wires a GitHub-contents loader; tests wire fixtures. A (nil, nil)
// result means the repository carries no policy and defaults apply.
type ConfigLoader interface {
	Load(ctx context.Context, repo, ref string) (*config.ReleaseGovernorConfig, error)
}

// job is one queued verification of (repo, head_sha).
type job struct {
	id         string
	event      types.WorkflowRunEvent
	cfg        *config.ReleaseGovernorConfig
	enqueuedAt time.Time
}

func dedupKey(repo, sha string) string {
	return repo + ":" + sha
}

// Governor owns the verification queue, the worker pool, and the shared
// state store. All dependencies are constructor-injected so tests can run
// independent instances side by side.
type Governor struct {
	store   *statestore.Store
	gh      github.Client
	ws      *workspace.Manager
	mem     *memory.Recorder
	metrics *metrics.Metrics
	logger  *slog.Logger
	engine  *decision.Engine
	loader  ConfigLoader

	cloneURL    func(repo string) string
	degraded    func() bool
	envApproved func() bool
	now         func() time.Time

	overrideMaxWait  time.Duration
	overrideInterval time.Duration
	enqueueTimeout   time.Duration
	workers          int

	queue    chan *job
	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// Options configures a Governor.
type Options struct {
	Store      *statestore.Store
	GitHub     github.Client
	Workspaces *workspace.Manager
	Memory     *memory.Recorder
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Loader     ConfigLoader

	// CloneURL builds the fetch URL for a repository; defaults to the
	// public github.com form.
	CloneURL func(repo string) string

	// Degraded reports the external incident signal. Defaults to healthy.
	Degraded func() bool

	// EnvApproved reports the environment approval channel. Defaults to
	// the GOVERNOR_APPROVE_DEPLOY variable.
	EnvApproved func() bool

	// Clock overrides the time source for decisions and history records.
	Clock func() time.Time

	Workers          int
	QueueSize        int
	EnqueueTimeout   time.Duration
	OverrideMaxWait  time.Duration
	OverrideInterval time.Duration
}

// New constructs a Governor. Store, GitHub, Workspaces, Logger, and Loader
// are required.
func New(opts Options) (*Governor, error) {
	if opts.Store == nil || opts.GitHub == nil || opts.Workspaces == nil || opts.Logger == nil || opts.Loader == nil {
		return nil, fmt.Errorf("governor: store, github client, workspace manager, logger, and config loader are required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 5 * time.Second
	}
	if opts.CloneURL == nil {
		opts.CloneURL = func(repo string) string {
			return "https://github.com/" + repo + ".git"
		}
	}
	if opts.Degraded == nil {
		opts.Degraded = func() bool { return false }
	}
	if opts.EnvApproved == nil {
		opts.EnvApproved = config.EnvApproved
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Governor{
		store:            opts.Store,
		gh:               opts.GitHub,
		ws:               opts.Workspaces,
		mem:              opts.Memory,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		engine:           decision.NewWithClock(opts.Clock),
		loader:           opts.Loader,
		cloneURL:         opts.CloneURL,
		degraded:         opts.Degraded,
		envApproved:      opts.EnvApproved,
		now:              opts.Clock,
		overrideMaxWait:  opts.OverrideMaxWait,
		overrideInterval: opts.OverrideInterval,
		enqueueTimeout:   opts.EnqueueTimeout,
		workers:          opts.Workers,
		queue:            make(chan *job, opts.QueueSize),
		inflight:         make(map[string]struct{}),
	}, nil
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled; Start returns immediately and Wait blocks for drain.
func (g *Governor) Start(ctx context.Context) {
	for i := 0; i < g.workers; i++ {
		g.wg.Add(1)
		go g.workerLoop(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (g *Governor) Wait() {
	g.wg.Wait()
}

func (g *Governor) workerLoop(ctx context.Context, id int) {
	defer g.wg.Done()
	logger := g.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-g.queue:
			if g.metrics != nil {
				g.metrics.QueueDepth.Dec()
			}
			g.runJob(ctx, logger, j)
		}
	}
}

// runJob executes one verification with a panic boundary: a single job's
// failure must never take down the worker pool.
func (g *Governor) runJob(ctx context.Context, logger *slog.Logger, j *job) {
	logger = logger.With("job", j.id)
	logger.Debug("verification job started", "repo", j.event.RepoFullName, "sha", j.event.HeadSHA, "queued", g.now().Sub(j.enqueuedAt))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("verification job panicked", "repo", j.event.RepoFullName, "sha", j.event.HeadSHA, "panic", r)
		}
		g.clearInflight(j.event.RepoFullName, j.event.HeadSHA)
	}()
	if err := g.process(ctx, logger, j); err != nil {
		logger.Error("verification job failed", "repo", j.event.RepoFullName, "sha", j.event.HeadSHA, "err", err)
	}
}

func (g *Governor) clearInflight(repo, sha string) {
	g.mu.Lock()
	delete(g.inflight, dedupKey(repo, sha))
	g.mu.Unlock()
}

// HandleWorkflowRun routes a normalized workflow_run completion: deploy
// workflow runs feed outcome tracking, verification workflow runs on main
// enter the queue, everything else is ignored.
func (g *Governor) HandleWorkflowRun(ctx context.Context, ev types.WorkflowRunEvent) error {
	if ev.Action != "completed" {
		return nil
	}
	cfg, err := g.loadConfig(ctx, ev.RepoFullName, ev.HeadSHA)
	if err != nil {
		if errors.Is(err, config.ErrDisabled) {
			g.logger.Debug("governor disabled for repository", "repo", ev.RepoFullName)
			return nil
		}
		return err
	}

	switch {
	case cfg.DeployWorkflowName != "" && ev.WorkflowName == cfg.DeployWorkflowName:
		return g.TrackDeployOutcome(ctx, ev, cfg)
	case ev.WorkflowName == cfg.VerificationWorkflowName && ev.HeadBranch == "main":
		err := g.Enqueue(ctx, ev, cfg)
		if errors.Is(err, ErrDuplicate) {
			g.logger.Debug("duplicate verification delivery dropped", "repo", ev.RepoFullName, "sha", ev.HeadSHA, "delivery", ev.DeliveryID)
			return nil
		}
		return err
	default:
		return nil
	}
}

// loadConfig resolves the repository policy, falling back to defaults when
// the repository carries none.
func (g *Governor) loadConfig(ctx context.Context, repo, ref string) (*config.ReleaseGovernorConfig, error) {
	cfg, err := g.loader.Load(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.DefaultReleaseGovernorConfig(), nil
	}
	return cfg, nil
}

// Enqueue admits a verification job for (repo, head_sha). Duplicates are
// rejected against both the in-memory inflight set and the durable
// delivery-id cache; a full queue is reported as ErrQueueFull after the
// enqueue timeout.
func (g *Governor) Enqueue(ctx context.Context, ev types.WorkflowRunEvent, cfg *config.ReleaseGovernorConfig) error {
	key := dedupKey(ev.RepoFullName, ev.HeadSHA)

	g.mu.Lock()
	if _, busy := g.inflight[key]; busy {
		g.mu.Unlock()
		return ErrDuplicate
	}
	g.inflight[key] = struct{}{}
	g.mu.Unlock()

	if _, seen, err := g.store.SeenDelivery(ev.RepoFullName, statestore.VerificationKey(ev.RepoFullName, ev.HeadSHA)); err != nil {
		g.clearInflight(ev.RepoFullName, ev.HeadSHA)
		return err
	} else if seen {
		g.clearInflight(ev.RepoFullName, ev.HeadSHA)
		return ErrDuplicate
	}

	j := &job{
		id:         uuid.New().String(),
		event:      ev,
		cfg:        cfg,
		enqueuedAt: g.now(),
	}

	select {
	case g.queue <- j:
		if g.metrics != nil {
			g.metrics.QueueDepth.Inc()
		}
		return nil
	case <-time.After(g.enqueueTimeout):
		g.clearInflight(ev.RepoFullName, ev.HeadSHA)
		return ErrQueueFull
	case <-ctx.Done():
		g.clearInflight(ev.RepoFullName, ev.HeadSHA)
		return ctx.Err()
	}
}
