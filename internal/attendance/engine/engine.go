// Package engine drives the shift lifecycle: clock-in and clock-out
// mutations, the in-flight guard around them, and the cache handoff after a
// mutation lands.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/cache"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/location"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/remote"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/config"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/messaging"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/metrics"
)

// Operation kinds guarded against concurrent submission
const (
	OpClockIn  = "clock_in"
	OpClockOut = "clock_out"
)

// Shift preset keys accepted on clock-in
const (
	PresetPagi  = "pagi"
	PresetSiang = "siang"
	PresetMalam = "malam"
)

// refreshTimeout bounds the post-mutation refetch of all views
const refreshTimeout = 30 * time.Second

// ClockInInput selects the shift window for a clock-in: either a named
// preset or an explicit custom window.
type ClockInInput struct {
	Preset    string `json:"preset,omitempty" validate:"omitempty,oneof=pagi siang malam"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// ClockOutInput identifies the shift to close. FromHistory closes a shift
// found in the history view rather than today's.
type ClockOutInput struct {
	ShiftID     string `json:"shift_id" validate:"required"`
	FromHistory bool   `json:"from_history,omitempty"`
}

// EventSink receives successful mutation notifications
type EventSink interface {
	ShiftClockedIn(ctx context.Context, event messaging.ShiftClockInEvent)
	ShiftClockedOut(ctx context.Context, event messaging.ShiftClockOutEvent)
}

// opGuard serializes submissions per operation kind. A token proves
// ownership so only the acquiring operation can release.
type opGuard struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newOpGuard() *opGuard {
	return &opGuard{tokens: map[string]string{}}
}

func (g *opGuard) begin(kind string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.tokens[kind]; busy {
		return "", errors.AlreadyInFlight(kind)
	}
	token := uuid.New().String()
	g.tokens[kind] = token
	return token, nil
}

func (g *opGuard) end(kind, token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tokens[kind] == token {
		delete(g.tokens, kind)
	}
}

// Engine is the shift lifecycle engine
type Engine struct {
	api      remote.API
	cache    *cache.Manager
	resolver *location.Resolver
	events   EventSink
	cfg      *config.AgentConfig
	logger   *logger.Logger
	metrics  *metrics.Collector

	guard *opGuard
	tz    *time.Location
	now   func() time.Time
}

// New creates the shift lifecycle engine
func New(api remote.API, c *cache.Manager, resolver *location.Resolver, events EventSink,
	cfg *config.AgentConfig, log *logger.Logger, m *metrics.Collector) *Engine {
	return &Engine{
		api:      api,
		cache:    c,
		resolver: resolver,
		events:   events,
		cfg:      cfg,
		logger:   log.WithComponent("engine"),
		metrics:  m,
		guard:    newOpGuard(),
		tz:       time.Local,
		now:      time.Now,
	}
}

// Presets returns the outlet's shift presets with per-field defaults applied
func (e *Engine) Presets(ctx context.Context) (schedule.Presets, error) {
	outlet, err := e.api.Outlet(ctx, e.cfg.OutletID)
	if err != nil {
		e.logger.Warn().Err(err).Msg("outlet unavailable, serving default presets")
		return schedule.ResolvePresets(nil), nil
	}
	return schedule.ResolvePresets(outlet), nil
}

// ClockIn opens today's shift. The submission is guarded: a second clock-in
// while one is in flight is rejected. Validation and location failures leave
// every view untouched; a remote failure rolls the optimistic write back.
func (e *Engine) ClockIn(ctx context.Context, in ClockInInput) (*schedule.Shift, error) {
	if err := e.requireIdentity(); err != nil {
		return nil, err
	}

	token, err := e.guard.begin(OpClockIn)
	if err != nil {
		return nil, err
	}
	// released on every path out of this function, panics included
	defer e.guard.end(OpClockIn, token)
	e.metrics.OpStarted()
	defer e.metrics.OpFinished()

	// uniqueness of open shifts is remote-enforced, but a second clock-in
	// against a cached ongoing shift must not reach the network
	if today, ok, _ := e.cache.Today(); ok && today != nil && today.ClockIn != nil && today.ClockOut == nil {
		return nil, errors.Conflict("a shift is already ongoing")
	}

	outlet, err := e.api.Outlet(ctx, e.cfg.OutletID)
	if err != nil {
		e.metrics.RecordClockOp(OpClockIn, "failure")
		return nil, err
	}

	window, err := e.resolveWindow(outlet, in)
	if err != nil {
		return nil, err
	}

	fix, err := e.resolver.Resolve(ctx, outlet)
	if err != nil {
		e.metrics.RecordClockOp(OpClockIn, "failure")
		return nil, err
	}

	now := e.now().In(e.tz)
	shiftDate := now.Format(schedule.DateFormat)

	optimistic := &schedule.Shift{
		EmployeeID:     e.cfg.EmployeeID,
		BusinessID:     e.cfg.BusinessID,
		OutletID:       e.cfg.OutletID,
		ShiftDate:      shiftDate,
		ScheduledStart: window.Start,
		ScheduledEnd:   window.End,
		ClockIn:        &schedule.ClockEvent{Time: now, Latitude: fix.Latitude, Longitude: fix.Longitude},
	}
	minutesLate := schedule.MinutesLate(optimistic.ScheduledStartTime(e.tz), &now, e.cfg.ToleranceMinutes)
	optimistic.Status = schedule.StatusOngoing
	if minutesLate != nil && *minutesLate > 0 {
		optimistic.Status = schedule.StatusLate
	}

	snapshot := e.cache.TakeSnapshot()
	e.cache.SetToday(optimistic)
	e.cache.MarkStale(cache.AllViews...)

	shift, err := e.api.ClockIn(ctx, remote.ClockInRequest{
		EmployeeID: e.cfg.EmployeeID,
		BusinessID: e.cfg.BusinessID,
		OutletID:   e.cfg.OutletID,
		ShiftDate:  shiftDate,
		StartTime:  window.Start,
		EndTime:    window.End,
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
	})
	if err != nil {
		e.cache.Restore(snapshot)
		e.metrics.RecordClockOp(OpClockIn, "failure")
		return nil, err
	}
	if shift == nil {
		shift = optimistic
	}
	e.cache.SetToday(shift)
	e.metrics.RecordClockOp(OpClockIn, "success")

	e.logger.Info().
		Str("shift_id", shift.ID).
		Str("shift_date", shiftDate).
		Str("location_source", fix.Source).
		Msg("clocked in")

	if e.events != nil {
		e.events.ShiftClockedIn(ctx, messaging.ShiftClockInEvent{
			ShiftID:        shift.ID,
			EmployeeID:     e.cfg.EmployeeID,
			OutletID:       e.cfg.OutletID,
			BusinessID:     e.cfg.BusinessID,
			ShiftDate:      shiftDate,
			ScheduledStart: window.Start,
			ScheduledEnd:   window.End,
			ClockIn:        &now,
			MinutesLate:    minutesLate,
			LocationSource: fix.Source,
		})
	}

	go e.refreshAfterMutation()

	return shift, nil
}

// ClockOut closes a shift. When FromHistory is set the shift is looked up in
// the history view, otherwise today's shift is closed. The guard stays held
// until the post-mutation refresh settles, so a repeat submission during the
// refetch window is rejected rather than double-applied.
func (e *Engine) ClockOut(ctx context.Context, in ClockOutInput) (*schedule.Shift, error) {
	if err := e.requireIdentity(); err != nil {
		return nil, err
	}

	token, err := e.guard.begin(OpClockOut)
	if err != nil {
		return nil, err
	}
	// the guard outlives this function only once the mutation lands and the
	// token is handed to the refresh goroutine; until then any exit, panics
	// included, releases it
	handedOff := false
	defer func() {
		if !handedOff {
			e.guard.end(OpClockOut, token)
		}
	}()
	e.metrics.OpStarted()
	defer e.metrics.OpFinished()

	target, err := e.findTarget(in)
	if err != nil {
		return nil, err
	}

	outlet, err := e.api.Outlet(ctx, e.cfg.OutletID)
	if err != nil {
		e.metrics.RecordClockOp(OpClockOut, "failure")
		return nil, err
	}

	fix, err := e.resolver.Resolve(ctx, outlet)
	if err != nil {
		e.metrics.RecordClockOp(OpClockOut, "failure")
		return nil, err
	}

	now := e.now().In(e.tz)
	snapshot := e.cache.TakeSnapshot()
	closed := e.applyOptimisticClockOut(target, in.FromHistory, now, fix)
	e.cache.MarkStale(cache.AllViews...)

	shift, err := e.api.ClockOut(ctx, remote.ClockOutRequest{
		ShiftID:   target.ID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
	})
	if err != nil {
		e.cache.Restore(snapshot)
		e.metrics.RecordClockOp(OpClockOut, "failure")
		return nil, err
	}
	if shift != nil && !in.FromHistory {
		e.cache.SetToday(shift)
	}
	if shift == nil {
		shift = closed
	}
	e.metrics.RecordClockOp(OpClockOut, "success")

	e.logger.Info().
		Str("shift_id", target.ID).
		Bool("from_history", in.FromHistory).
		Str("location_source", fix.Source).
		Msg("clocked out")

	if e.events != nil {
		e.events.ShiftClockedOut(ctx, messaging.ShiftClockOutEvent{
			ShiftID:        target.ID,
			EmployeeID:     e.cfg.EmployeeID,
			OutletID:       e.cfg.OutletID,
			ClockOut:       &now,
			FromHistory:    in.FromHistory,
			LocationSource: fix.Source,
		})
	}

	handedOff = true
	go func() {
		e.refreshAfterMutation()
		e.guard.end(OpClockOut, token)
	}()

	return shift, nil
}

// requireIdentity rejects operations until the employee context is known
func (e *Engine) requireIdentity() error {
	switch {
	case e.cfg.EmployeeID == "":
		return errors.MissingContext("employee")
	case e.cfg.BusinessID == "":
		return errors.MissingContext("business")
	case e.cfg.OutletID == "":
		return errors.MissingContext("outlet")
	}
	return nil
}

// resolveWindow picks the preset window or validates the custom one
func (e *Engine) resolveWindow(outlet *schedule.Outlet, in ClockInInput) (schedule.Window, error) {
	presets := schedule.ResolvePresets(outlet)

	var start, end string
	switch in.Preset {
	case PresetPagi:
		start, end = presets.Morning.Start, presets.Morning.End
	case PresetSiang:
		start, end = presets.Afternoon.Start, presets.Afternoon.End
	case PresetMalam:
		start, end = presets.Night.Start, presets.Night.End
	case "":
		start, end = in.StartTime, in.EndTime
	default:
		return schedule.Window{}, errors.BadRequest("unknown shift preset: " + in.Preset)
	}

	return schedule.ValidateWindow(start, end)
}

// findTarget locates the shift a clock-out refers to and rejects shifts that
// cannot be closed
func (e *Engine) findTarget(in ClockOutInput) (*schedule.Shift, error) {
	var target *schedule.Shift

	if in.FromHistory {
		history, ok, _ := e.cache.History()
		if !ok {
			return nil, errors.MissingContext("shift history")
		}
		for _, s := range history {
			if s.ID == in.ShiftID {
				target = s
				break
			}
		}
	} else {
		today, ok, _ := e.cache.Today()
		if !ok || today == nil {
			return nil, errors.NotFound("shift")
		}
		if in.ShiftID == "" || today.ID == in.ShiftID {
			target = today
		}
	}

	if target == nil {
		return nil, errors.NotFound("shift")
	}
	if target.ClockIn == nil {
		return nil, errors.Conflict("shift has no clock-in to close")
	}
	if target.ClockOut != nil {
		appErr := errors.Conflict("shift already completed")
		appErr.MessageKey = "errors.already_completed"
		return nil, appErr
	}
	return target, nil
}

// applyOptimisticClockOut writes the locally derived completed shift into
// the affected view before the remote confirms, and returns it
func (e *Engine) applyOptimisticClockOut(target *schedule.Shift, fromHistory bool, now time.Time, fix location.Fix) *schedule.Shift {
	closed := *target
	closed.ClockOut = &schedule.ClockEvent{Time: now, Latitude: fix.Latitude, Longitude: fix.Longitude}
	closed.Status = schedule.StatusCompleted

	if fromHistory {
		history, ok, _ := e.cache.History()
		if ok {
			updated := make([]*schedule.Shift, len(history))
			for i, s := range history {
				if s.ID == target.ID {
					updated[i] = &closed
				} else {
					updated[i] = s
				}
			}
			e.cache.SetHistory(updated)
		}
		return &closed
	}
	e.cache.SetToday(&closed)
	return &closed
}

// refreshAfterMutation refetches every view off the request context; a
// cancelled request must not abandon the refetch.
func (e *Engine) refreshAfterMutation() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := e.cache.RefreshAll(ctx, cache.TriggerMutation); err != nil {
		e.logger.Warn().Err(err).Msg("post-mutation refresh incomplete")
	}
}
