// Package events publishes attendance domain events. Publishing is
// best-effort: a broker failure is logged and never fails the operation that
// produced the event.
package events

import (
	"context"

	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/messaging"
)

// Publisher publishes attendance lifecycle and cache events
type Publisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPublisher creates the attendance event publisher on the attendance
// events exchange
func NewPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	pub, err := messaging.NewPublisher(rmq, messaging.ExchangeAttendanceEvents, "attendance-agent", log)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		publisher: pub,
		logger:    log.WithComponent("events"),
	}, nil
}

// ShiftClockedIn publishes the clock-in event
func (p *Publisher) ShiftClockedIn(ctx context.Context, event messaging.ShiftClockInEvent) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventShiftClockIn, event); err != nil {
		p.logger.Error().Err(err).
			Str("shift_id", event.ShiftID).
			Msg("failed to publish clock-in event")
	}
}

// ShiftClockedOut publishes the clock-out event
func (p *Publisher) ShiftClockedOut(ctx context.Context, event messaging.ShiftClockOutEvent) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventShiftClockOut, event); err != nil {
		p.logger.Error().Err(err).
			Str("shift_id", event.ShiftID).
			Msg("failed to publish clock-out event")
	}
}

// RefreshFailed publishes a cache refresh failure. Satisfies the cache
// manager's failure notifier.
func (p *Publisher) RefreshFailed(ctx context.Context, view string, reason string) {
	if p == nil || p.publisher == nil {
		return
	}
	event := messaging.RefreshFailedEvent{View: view, Reason: reason}
	if err := p.publisher.Publish(ctx, messaging.EventRefreshFailed, event); err != nil {
		p.logger.Error().Err(err).
			Str("view", view).
			Msg("failed to publish refresh-failed event")
	}
}
