package scheduler

import (
	"context"
	"time"

	"cinema_booking/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type SessionAdvancer interface {
	AdvanceSessions(ctx context.Context) error
}

// SessionClock moves sessions through in_progress and finished every minute.
type SessionClock struct {
	cron     *cron.Cron
	advancer SessionAdvancer
	timeout  time.Duration
}

func NewSessionClock(advancer SessionAdvancer, spec string) (*SessionClock, error) {
	c := &SessionClock{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		advancer: advancer,
		timeout:  30 * time.Second,
	}
	if spec == "" {
		spec = "* * * * *"
	}
	if _, err := c.cron.AddFunc(spec, c.Tick); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SessionClock) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.advancer.AdvanceSessions(ctx); err != nil {
		logger.Error("Advance sessions failed", zap.Error(err))
	}
}

func (c *SessionClock) Start() {
	c.cron.Start()
	logger.Info("Session clock started")
}

// Stop waits for a running tick to finish.
func (c *SessionClock) Stop() {
	<-c.cron.Stop().Done()
	logger.Info("Session clock stopped")
}
