package feed

import (
	"context"
	"log/slog"
	"time"
)

// Refresher is refreshed periodically by a Poller. Refresh reports whether
// a refresh was issued.
type Refresher interface {
	Refresh() bool
}

// Poller periodically refreshes the active tab of an Orchestrator.
type Poller struct {
	target   Refresher
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller. An interval <= 0 yields a poller whose Run
// returns immediately.
func NewPoller(target Refresher, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{target: target, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce()
		}
	}
}

// RunOnce issues one refresh. It returns false when the target had nothing
// to refresh or was busy.
func (p *Poller) RunOnce() bool {
	ok := p.target.Refresh()
	if ok {
		p.logger.Debug("poll refresh issued")
	}
	return ok
}
