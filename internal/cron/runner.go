package cronrunner

import (
	"context"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules a job. Each entry carries its own in-flight flag: when a tick
// fires while the previous run has not returned, the tick is skipped instead
// of overlapping the running body.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	var busy atomic.Bool
	return r.cron.AddFunc(spec, func() {
		if !busy.CompareAndSwap(false, true) {
			if r != nil && r.logger != nil {
				r.logger.Warn("cron job still running, tick skipped", zap.String("job", name))
			}
			return
		}
		defer busy.Store(false)

		if r == nil || r.baseCtx == nil {
			job(context.Background())
			return
		}
		job(r.baseCtx)
	})
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
