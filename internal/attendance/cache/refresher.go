package cache

import (
	"context"
	"time"

	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
)

// Refresher drives the background refresh schedule: the today view is polled
// on an interval, and focus/reconnect triggers refresh every view.
type Refresher struct {
	manager  *Manager
	interval time.Duration
	triggers chan string
	logger   *logger.Logger
}

// DefaultPollInterval is used when the configured interval is not positive
const DefaultPollInterval = time.Minute

// NewRefresher creates a refresher polling the today view at interval.
// A non-positive interval uses DefaultPollInterval.
func NewRefresher(m *Manager, interval time.Duration, log *logger.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Refresher{
		manager:  m,
		interval: interval,
		triggers: make(chan string, 8),
		logger:   log.WithComponent("refresher"),
	}
}

// Trigger requests a full refresh for the given reason (focus, reconnect,
// manual). Non-blocking: when a trigger is already queued the new one is
// dropped, since a pending full refresh covers it.
func (r *Refresher) Trigger(reason string) {
	select {
	case r.triggers <- reason:
	default:
		r.logger.Debug().Str("trigger", reason).Msg("refresh trigger dropped, one already pending")
	}
}

// Run loops until ctx is cancelled
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("background refresher started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("background refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.manager.RefreshView(ctx, ViewToday, TriggerPoll); err != nil {
				r.logger.Warn().Err(err).Msg("scheduled today refresh failed")
			}
		case reason := <-r.triggers:
			if err := r.manager.RefreshAll(ctx, reason); err != nil {
				r.logger.Warn().Err(err).Str("trigger", reason).Msg("triggered refresh incomplete")
			}
		}
	}
}
