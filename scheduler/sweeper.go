package scheduler

import (
	"context"
	"time"

	"cinema_booking/logger"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type Sweeper interface {
	SweepPending(ctx context.Context) (int, error)
}

// PendingSweeper runs the pending-booking expiry scan on a fixed interval. The job is
// in singleton mode, so a slow scan is never overlapped by the next tick.
type PendingSweeper struct {
	scheduler gocron.Scheduler
	sweeper   Sweeper
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewPendingSweeper(sweeper Sweeper, interval time.Duration) (*PendingSweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &PendingSweeper{scheduler: s, sweeper: sweeper, ctx: ctx, cancel: cancel}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.RunOnce),
		gocron.WithName("expire-pending-bookings"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return nil, err
	}
	return p, nil
}

// RunOnce performs a single scan.
func (p *PendingSweeper) RunOnce() {
	n, err := p.sweeper.SweepPending(p.ctx)
	if err != nil {
		logger.Error("Pending booking sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("Pending booking sweep", zap.Int("handled", n))
	}
}

func (p *PendingSweeper) Start() {
	p.scheduler.Start()
	logger.Info("Pending booking sweeper started")
}

func (p *PendingSweeper) Shutdown() error {
	p.cancel()
	return p.scheduler.Shutdown()
}
