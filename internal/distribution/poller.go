package distribution

import (
	"context"
	"log/slog"
	"time"

	"distconsole/internal/infrastructure"
)

// Poller refreshes the machine on an interval while its view is pending.
// A zero interval disables it.
type Poller struct {
	machine  *Machine
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller for m
func NewPoller(m *Machine, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		machine:  m,
		interval: interval,
		logger:   infrastructure.WithComponent(logger, "distribution_poller"),
	}
}

// Enabled reports whether the poller has a positive interval
func (p *Poller) Enabled() bool {
	return p.interval > 0
}

// Run refreshes on every tick while the view is pending and idles otherwise.
// It returns when ctx is cancelled, or immediately if the poller is disabled.
func (p *Poller) Run(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	p.logger.InfoContext(ctx, "distribution auto-poll started", slog.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "distribution auto-poll stopped")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Until refreshes on every tick until the view settles on Ready or Failure,
// and returns that view. A disabled poller returns the current view.
func (p *Poller) Until(ctx context.Context) (View, error) {
	if !p.Enabled() {
		return p.machine.View(), nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if v := p.machine.View(); v.Status == ViewReady || v.Status == ViewFailure {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return p.machine.View(), ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.machine.View().Status != ViewPending {
		return
	}
	if err := p.machine.Refresh(ctx); err != nil {
		p.logger.WarnContext(ctx, "auto-poll refresh failed", slog.String("error", err.Error()))
	}
}
