package statusfeed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically deletes expired statuses. Listing already hides
// them; this only reclaims storage.
type Janitor struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewJanitor(s Store, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{store: s, interval: interval, logger: logger}
}

// Start begins the purge loop.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})
	go j.loop(ctx)
}

// Stop stops the purge loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
		<-j.done
	}
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.purge(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) purge(ctx context.Context) {
	n, err := j.store.PurgeExpiredStatuses(ctx, time.Now())
	if err != nil {
		j.logger.Error("failed to purge statuses", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("purged expired statuses", zap.Int64("count", n))
	}
}
