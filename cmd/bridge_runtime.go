package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/cron"
	"github.com/linanwx/leadbridge/employee"
	"github.com/linanwx/leadbridge/internal/health"
	"github.com/linanwx/leadbridge/lead"
	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/pending"
	"github.com/linanwx/leadbridge/provider"
	"github.com/linanwx/leadbridge/run"
	"github.com/linanwx/leadbridge/server"
	"github.com/linanwx/leadbridge/store/sqlite"
	"github.com/linanwx/leadbridge/thread"
	"github.com/linanwx/leadbridge/toolargs"
	"github.com/linanwx/leadbridge/webhook"
)

const sweepJobID = "sweep-pending"

type bridgeRuntime struct {
	cfg       *config.Config
	storePath string
	store     *sqlite.Store
	employees *employee.Directory
	isolation *thread.Isolation
	registry  *pending.Registry
	orch      *run.Orchestrator
	leads     *lead.Pipeline
	bridge    *webhook.Bridge
	scheduler *cron.Scheduler
	server    *server.Server
}

// openStore opens the configured record store, creating its directory.
func openStore(cfg *config.Config) (*sqlite.Store, string, error) {
	if err := cfg.EnsureStoreDir(); err != nil {
		return nil, "", fmt.Errorf("failed to create store directory: %w", err)
	}
	path, err := cfg.StorePath()
	if err != nil {
		return nil, "", err
	}
	st, err := sqlite.New(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open store %s: %w", path, err)
	}
	return st, path, nil
}

func buildBridgeRuntime(ctx context.Context, cfg *config.Config, rt provider.Runtime) (*bridgeRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	st, storePath, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	b := &bridgeRuntime{
		cfg:       cfg,
		storePath: storePath,
		store:     st,
		employees: employee.NewDirectory(cfg.Employees),
		isolation: thread.NewIsolation(thread.WithStrict(cfg.Bridge.StrictIsolation)),
		registry:  pending.NewRegistry(pending.WithMaxEntries(cfg.Bridge.MaxPending)),
		scheduler: cron.NewScheduler(),
	}

	bindings, err := run.LoadBindings(ctx, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to restore thread bindings: %w", err)
	}
	restored := b.isolation.Restore(bindings)
	logger.Info("thread bindings restored", "count", restored)

	for _, e := range b.employees.List() {
		if !e.Configured() {
			logger.Warn("employee has no assistant configured", "employee", e.ID)
		}
	}

	b.orch = run.NewOrchestrator(run.Config{
		Runtime:       rt,
		Employees:     b.employees,
		Isolation:     b.isolation,
		Pending:       b.registry,
		Parser:        toolargs.NewParser(cfg.Bridge.PassthroughTools),
		Conversations: run.NewStoreRecorder(st),
	})
	b.leads = lead.NewPipeline(st, lead.NewScorer(cfg.Bridge.RelevantKeywords))
	b.bridge = webhook.NewBridge(webhook.Config{
		Employees:    b.employees,
		Isolation:    b.isolation,
		Orchestrator: b.orch,
		Leads:        b.leads,
		LeadTools:    cfg.Bridge.LeadTools,
	})

	maxAge := cfg.Bridge.MaxPendingAge
	if err := b.scheduler.Add(sweepJobID, cfg.Bridge.SweepSchedule, func() {
		if expired := b.orch.Sweep(maxAge); len(expired) > 0 {
			logger.Info("expired pending tool calls swept", "count", len(expired), "maxAge", maxAge.String())
		}
	}); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to schedule pending sweep: %w", err)
	}

	b.server = server.New(server.Config{
		Addr:         cfg.Server.Addr,
		Employees:    b.employees,
		Orchestrator: b.orch,
		Bridge:       b.bridge,
		Leads:        b.leads,
		Pending:      b.registry,
		Health:       b.health,
	})
	return b, nil
}

func (b *bridgeRuntime) health() health.Snapshot {
	configured := 0
	list := b.employees.List()
	for _, e := range list {
		if e.Configured() {
			configured++
		}
	}

	opts := health.Options{
		Bridge: &health.BridgeInfo{
			Employees:           len(list),
			ConfiguredEmployees: configured,
			BoundThreads:        b.isolation.Len(),
			PendingToolCalls:    b.registry.Len(),
			StrictIsolation:     b.isolation.Strict(),
		},
		StorePath: b.storePath,
		StorePing: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return b.store.Ping(ctx)
		},
		Sweep: &health.SweepInfo{
			Schedule:      b.cfg.Bridge.SweepSchedule,
			MaxPendingAge: b.cfg.Bridge.MaxPendingAge.String(),
		},
	}
	for _, job := range b.scheduler.List() {
		if job.ID == sweepJobID && !job.NextRun.IsZero() {
			opts.Sweep.NextRun = job.NextRun.Format(time.RFC3339)
		}
	}
	return health.Collect(opts)
}

func (b *bridgeRuntime) Close() {
	if err := b.store.Close(); err != nil {
		logger.Warn("store close error", "err", err)
	}
}
