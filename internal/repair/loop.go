package repair

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval matches the bot's historical refresh cadence.
const DefaultInterval = 5 * time.Minute

// Loop drives RepairAll on a fixed interval.
type Loop struct {
	repairer *Repairer
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop builds Loop. A non-positive interval uses DefaultInterval.
func NewLoop(repairer *Repairer, interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{repairer: repairer, interval: interval, logger: logger}
}

// Start runs one pass immediately in the background, then one per interval
// until Stop or ctx is done.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cron != nil {
		return fmt.Errorf("repair: loop already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", l.interval), func() { l.run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("repair: schedule: %w", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.run(ctx)
	}()
	c.Start()
	l.cron, l.cancel, l.done = c, cancel, done
	l.logger.Info("announcement repair loop started", slog.Duration("interval", l.interval))
	return nil
}

// Stop cancels the in-flight pass and waits for it to return.
func (l *Loop) Stop() {
	l.mu.Lock()
	c, cancel, done := l.cron, l.cancel, l.done
	l.cron, l.cancel, l.done = nil, nil, nil
	l.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	<-done
	l.logger.Info("announcement repair loop stopped")
}

func (l *Loop) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, l.interval)
	defer cancel()
	if _, err := l.repairer.RepairAll(ctx); err != nil {
		l.logger.Error("announcement repair pass failed", slog.Any("error", err))
	}
}
