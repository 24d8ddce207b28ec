package admin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"timeclock/internal/config"
	"timeclock/internal/db/models"
)

// LiveSource produces the live view. The poller asks with a nil actor and
// so sees every roster.
type LiveSource interface {
	Live(ctx context.Context, actor *models.Employee) ([]*models.LivePosition, error)
}

// Poller refreshes the live view on a fixed interval between 5 and 20
// seconds and keeps the latest snapshot.
type Poller struct {
	src      LiveSource
	interval time.Duration
	onUpdate func([]*models.LivePosition)
	logger   *slog.Logger

	mu        sync.RWMutex
	latest    []*models.LivePosition
	updatedAt time.Time
}

func NewPoller(src LiveSource, interval time.Duration, onUpdate func([]*models.LivePosition), logger *slog.Logger) *Poller {
	if onUpdate == nil {
		onUpdate = func([]*models.LivePosition) {}
	}
	return &Poller{
		src:      src,
		interval: config.ClampPollInterval(interval),
		onUpdate: onUpdate,
		logger:   logger,
	}
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls until ctx is cancelled. The first refresh happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh loads one snapshot. On failure the previous snapshot is kept.
func (p *Poller) Refresh(ctx context.Context) {
	positions, err := p.src.Live(ctx, nil)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to refresh live view", "error", err)
		}
		return
	}

	p.mu.Lock()
	p.latest = positions
	p.updatedAt = time.Now()
	p.mu.Unlock()

	p.logger.Debug("live view refreshed", "positions", len(positions))
	p.onUpdate(positions)
}

// Latest returns the last snapshot and when it was taken.
func (p *Poller) Latest() ([]*models.LivePosition, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.updatedAt
}
