// Package cache keeps the three attendance views (today, history, stats)
// consistent across optimistic local writes and concurrent remote refreshes.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/remote"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/config"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/metrics"
)

// View identifies one cached attendance view
type View string

// Cached views
const (
	ViewToday   View = "today"
	ViewHistory View = "history"
	ViewStats   View = "stats"
)

// AllViews lists every cached view
var AllViews = []View{ViewToday, ViewHistory, ViewStats}

// Refresh triggers, recorded on metrics and logs
const (
	TriggerPoll      = "poll"
	TriggerFocus     = "focus"
	TriggerReconnect = "reconnect"
	TriggerMutation  = "mutation"
	TriggerManual    = "manual"
)

// FailureNotifier receives per-view refresh failures. Implementations must
// not block.
type FailureNotifier interface {
	RefreshFailed(ctx context.Context, view string, reason string)
}

// view holds one cached value with its staleness flag and the issuance
// sequence of the write that produced it. Writes commit in issuance order:
// a response issued earlier than the committed one is discarded, so a slow
// refresh can never clobber a newer optimistic write or a newer refresh.
type view[T any] struct {
	mu    sync.RWMutex
	value T
	has   bool
	stale bool
	seq   uint64
}

func (v *view[T]) get() (T, bool, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value, v.has, v.stale
}

func (v *view[T]) commit(seq uint64, value T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seq < v.seq {
		return false
	}
	v.seq = seq
	v.value = value
	v.has = true
	v.stale = false
	return true
}

func (v *view[T]) markStale() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stale = true
}

// restore overwrites the view unconditionally, including back to absent
func (v *view[T]) restore(seq uint64, value T, has bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq = seq
	v.value = value
	v.has = has
	v.stale = false
}

// Snapshot captures all three views for restore-on-failure. Opaque to
// callers.
type Snapshot struct {
	today      *schedule.Shift
	todayHas   bool
	history    []*schedule.Shift
	historyHas bool
	stats      *schedule.AttendanceStats
	statsHas   bool
}

// Manager owns the three attendance views and the refresh protocol around
// them: optimistic write, mark stale, concurrent refetch with per-view
// retain-on-failure.
type Manager struct {
	api      remote.API
	cfg      *config.AgentConfig
	logger   *logger.Logger
	metrics  *metrics.Collector
	notifier FailureNotifier

	seq    atomic.Uint64
	flight singleflight.Group

	today   view[*schedule.Shift]
	history view[[]*schedule.Shift]
	stats   view[*schedule.AttendanceStats]

	now func() time.Time
}

// NewManager creates a cache manager over the remote API
func NewManager(api remote.API, cfg *config.AgentConfig, log *logger.Logger, m *metrics.Collector, notifier FailureNotifier) *Manager {
	return &Manager{
		api:      api,
		cfg:      cfg,
		logger:   log.WithComponent("cache"),
		metrics:  m,
		notifier: notifier,
		now:      time.Now,
	}
}

// Today returns the cached today view. The second result reports presence,
// the third staleness.
func (m *Manager) Today() (*schedule.Shift, bool, bool) {
	return m.today.get()
}

// History returns the cached history view
func (m *Manager) History() ([]*schedule.Shift, bool, bool) {
	return m.history.get()
}

// Stats returns the cached stats view
func (m *Manager) Stats() (*schedule.AttendanceStats, bool, bool) {
	return m.stats.get()
}

// SetToday applies an optimistic local write to the today view. The write
// takes a fresh issuance sequence, so refreshes already in flight cannot
// overwrite it with older data.
func (m *Manager) SetToday(shift *schedule.Shift) {
	m.today.commit(m.seq.Add(1), shift)
}

// SetHistory applies an optimistic local write to the history view
func (m *Manager) SetHistory(shifts []*schedule.Shift) {
	m.history.commit(m.seq.Add(1), shifts)
}

// MarkStale flags the given views so readers can surface cached data while
// a refresh is pending
func (m *Manager) MarkStale(views ...View) {
	for _, v := range views {
		switch v {
		case ViewToday:
			m.today.markStale()
		case ViewHistory:
			m.history.markStale()
		case ViewStats:
			m.stats.markStale()
		}
	}
}

// TakeSnapshot captures current view contents for a later Restore
func (m *Manager) TakeSnapshot() Snapshot {
	var s Snapshot
	s.today, s.todayHas, _ = m.today.get()
	s.history, s.historyHas, _ = m.history.get()
	s.stats, s.statsHas, _ = m.stats.get()
	return s
}

// Restore rolls the views back to a snapshot. Each restored view takes a
// fresh issuance sequence so in-flight refreshes issued before the restore
// cannot resurrect the discarded state.
func (m *Manager) Restore(s Snapshot) {
	m.today.restore(m.seq.Add(1), s.today, s.todayHas)
	m.history.restore(m.seq.Add(1), s.history, s.historyHas)
	m.stats.restore(m.seq.Add(1), s.stats, s.statsHas)
}

// RefreshView refetches one view from the remote. Concurrent refreshes of
// the same view collapse into a single fetch. On failure the previous value
// is retained and the view stays stale.
func (m *Manager) RefreshView(ctx context.Context, v View, trigger string) error {
	_, err, _ := m.flight.Do(string(v), func() (interface{}, error) {
		return nil, m.fetch(ctx, v, trigger)
	})
	return err
}

// RefreshAll refetches every view concurrently. Views fail independently:
// each failing view keeps its previous value, and the first failure is
// reported as a partial refresh.
func (m *Manager) RefreshAll(ctx context.Context, trigger string) error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failed   View
		firstErr error
	)
	for _, v := range AllViews {
		v := v
		g.Go(func() error {
			if err := m.RefreshView(ctx, v, trigger); err != nil {
				mu.Lock()
				if firstErr == nil {
					failed, firstErr = v, err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if firstErr != nil {
		return errors.PartialRefresh(string(failed), firstErr)
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, v View, trigger string) error {
	seq := m.seq.Add(1)
	m.metrics.RecordRefresh(string(v), trigger)

	var err error
	var committed bool
	switch v {
	case ViewToday:
		var shift *schedule.Shift
		shift, err = m.api.TodayShift(ctx, m.cfg.EmployeeID, m.cfg.BusinessID, m.cfg.OutletID)
		if err == nil {
			committed = m.today.commit(seq, shift)
		}
	case ViewHistory:
		start, end := m.dateRange(m.cfg.HistoryDays)
		var shifts []*schedule.Shift
		shifts, err = m.api.ShiftHistory(ctx, m.cfg.EmployeeID, start, end)
		if err == nil {
			committed = m.history.commit(seq, shifts)
		}
	case ViewStats:
		start, end := m.dateRange(m.cfg.StatsDays)
		var stats *schedule.AttendanceStats
		stats, err = m.api.AttendanceStats(ctx, m.cfg.EmployeeID, start, end)
		if err == nil {
			committed = m.stats.commit(seq, stats)
		}
	}

	if err != nil {
		m.metrics.RecordRefreshFailure(string(v))
		m.logger.Warn().Err(err).Str("view", string(v)).Str("trigger", trigger).
			Msg("view refresh failed, retaining cached value")
		if m.notifier != nil {
			m.notifier.RefreshFailed(ctx, string(v), err.Error())
		}
		return err
	}
	if !committed {
		m.logger.Debug().Str("view", string(v)).Uint64("seq", seq).
			Msg("refresh result discarded, newer write already committed")
	}
	return nil
}

// dateRange returns the inclusive [today-days+1, today] window in wire format
func (m *Manager) dateRange(days int) (string, string) {
	if days < 1 {
		days = 1
	}
	end := m.now()
	start := end.AddDate(0, 0, -(days - 1))
	return start.Format(schedule.DateFormat), end.Format(schedule.DateFormat)
}
