package job

import (
	"context"
	"sync"
	"time"

	"github.com/studioordo/backoffice/internal/config"
	"github.com/studioordo/backoffice/internal/job/processor"
	"github.com/studioordo/backoffice/internal/job/store"
	"github.com/studioordo/backoffice/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RunnerParams struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Store     *store.Store
	Processor *processor.Processor
}

// Runner drives the processor on a fixed interval and runs the
// housekeeping sweeps (stale-run recovery, completed-row retention).
// How many runner processes exist is a deployment concern; correctness
// under concurrent runners is owned by the store's atomic claim.
type Runner struct {
	cfg       config.WorkerConfig
	log       *zap.Logger
	store     *store.Store
	processor *processor.Processor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(p RunnerParams) *Runner {
	return &Runner{
		cfg:       p.Config.Worker,
		log:       p.Log.Named("job.runner"),
		store:     p.Store,
		processor: p.Processor,
	}
}

func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(2)
	go r.pollLoop(ctx)
	go r.sweepLoop(ctx)

	r.log.Info("worker started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Duration("stale_timeout", r.cfg.StaleTimeout),
	)
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("worker stopped")
}

func (r *Runner) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain all eligible work before sleeping again.
			for {
				worked, err := r.processor.Tick(ctx)
				if err != nil {
					r.log.Error("tick failed", zap.Error(err))
					break
				}
				if !worked {
					break
				}
			}
		}
	}
}

func (r *Runner) sweepLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := r.store.RecoverStale(ctx, r.cfg.StaleTimeout)
			if err != nil {
				r.log.Error("stale recovery failed", zap.Error(err))
			} else if recovered > 0 {
				r.log.Warn("recovered stale jobs", zap.Int64("count", recovered))
				metrics.Default().AddStaleRecovered(recovered)
			}

			purged, err := r.store.PurgeCompleted(ctx, time.Now().UTC().Add(-r.cfg.Retention))
			if err != nil {
				r.log.Error("purge failed", zap.Error(err))
			} else if purged > 0 {
				r.log.Info("purged completed jobs", zap.Int64("count", purged))
			}
		}
	}
}

func registerHooks(lc fx.Lifecycle, runner *Runner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runner.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			return nil
		},
	})
}
