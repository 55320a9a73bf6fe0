package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/remote"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/config"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/metrics"
)

type fakeAPI struct {
	todayFn   func(ctx context.Context) (*schedule.Shift, error)
	historyFn func(ctx context.Context) ([]*schedule.Shift, error)
	statsFn   func(ctx context.Context) (*schedule.AttendanceStats, error)

	todayCalls atomic.Int32
}

func (f *fakeAPI) TodayShift(ctx context.Context, employeeID, businessID, outletID string) (*schedule.Shift, error) {
	f.todayCalls.Add(1)
	if f.todayFn != nil {
		return f.todayFn(ctx)
	}
	return nil, nil
}

func (f *fakeAPI) ShiftHistory(ctx context.Context, employeeID, startDate, endDate string) ([]*schedule.Shift, error) {
	if f.historyFn != nil {
		return f.historyFn(ctx)
	}
	return []*schedule.Shift{}, nil
}

func (f *fakeAPI) AttendanceStats(ctx context.Context, employeeID, startDate, endDate string) (*schedule.AttendanceStats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx)
	}
	return &schedule.AttendanceStats{}, nil
}

func (f *fakeAPI) ClockIn(ctx context.Context, req remote.ClockInRequest) (*schedule.Shift, error) {
	return nil, errors.Internal("not implemented")
}

func (f *fakeAPI) ClockOut(ctx context.Context, req remote.ClockOutRequest) (*schedule.Shift, error) {
	return nil, errors.Internal("not implemented")
}

func (f *fakeAPI) Outlet(ctx context.Context, outletID string) (*schedule.Outlet, error) {
	return &schedule.Outlet{ID: outletID}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	failures map[string]string
}

func (n *recordingNotifier) RefreshFailed(ctx context.Context, view string, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures == nil {
		n.failures = map[string]string{}
	}
	n.failures[view] = reason
}

func newTestManager(api remote.API, notifier FailureNotifier) *Manager {
	cfg := &config.AgentConfig{
		EmployeeID:  "emp-1",
		BusinessID:  "biz-1",
		OutletID:    "out-1",
		HistoryDays: 7,
		StatsDays:   30,
	}
	log := logger.New("cache-test", "test")
	return NewManager(api, cfg, log, metrics.NewCollector(prometheus.NewRegistry()), notifier)
}

func TestManager_RefreshAll(t *testing.T) {
	api := &fakeAPI{
		todayFn: func(ctx context.Context) (*schedule.Shift, error) {
			return &schedule.Shift{ID: "shift-1", Status: schedule.StatusOngoing}, nil
		},
		historyFn: func(ctx context.Context) ([]*schedule.Shift, error) {
			return []*schedule.Shift{{ID: "shift-0"}}, nil
		},
		statsFn: func(ctx context.Context) (*schedule.AttendanceStats, error) {
			return &schedule.AttendanceStats{TotalShifts: 4, Late: 1}, nil
		},
	}
	m := newTestManager(api, nil)

	require.NoError(t, m.RefreshAll(context.Background(), TriggerManual))

	today, ok, stale := m.Today()
	require.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, "shift-1", today.ID)

	history, ok, _ := m.History()
	require.True(t, ok)
	assert.Len(t, history, 1)

	stats, ok, _ := m.Stats()
	require.True(t, ok)
	assert.Equal(t, 4, stats.TotalShifts)
}

func TestManager_PartialFailureRetainsView(t *testing.T) {
	api := &fakeAPI{
		todayFn: func(ctx context.Context) (*schedule.Shift, error) {
			return &schedule.Shift{ID: "shift-2"}, nil
		},
		historyFn: func(ctx context.Context) ([]*schedule.Shift, error) {
			return nil, errors.RemoteFailure("history endpoint down")
		},
	}
	notifier := &recordingNotifier{}
	m := newTestManager(api, notifier)

	// seed history, then mark it stale as a mutation would
	m.history.commit(m.seq.Add(1), []*schedule.Shift{{ID: "shift-old"}})
	m.MarkStale(ViewHistory)

	err := m.RefreshAll(context.Background(), TriggerMutation)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPartialRefresh))

	// the failing view keeps its previous value and stays stale
	history, ok, stale := m.History()
	require.True(t, ok)
	assert.True(t, stale)
	assert.Equal(t, "shift-old", history[0].ID)

	// the other views refreshed independently
	today, ok, stale := m.Today()
	require.True(t, ok)
	assert.False(t, stale)
	assert.Equal(t, "shift-2", today.ID)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.failures["history"], "history endpoint down")
}

func TestManager_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		todayFn: func(ctx context.Context) (*schedule.Shift, error) {
			<-release
			return &schedule.Shift{ID: "shift-fetched"}, nil
		},
	}
	m := newTestManager(api, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.RefreshView(context.Background(), ViewToday, TriggerPoll)
	}()

	// wait for the fetch to be in flight, then write optimistically
	require.Eventually(t, func() bool { return api.todayCalls.Load() == 1 },
		time.Second, time.Millisecond)
	m.SetToday(&schedule.Shift{ID: "shift-optimistic"})

	close(release)
	<-done

	// the slower fetch was issued before the optimistic write, so it loses
	today, ok, _ := m.Today()
	require.True(t, ok)
	assert.Equal(t, "shift-optimistic", today.ID)
}

func TestManager_SnapshotRestore(t *testing.T) {
	m := newTestManager(&fakeAPI{}, nil)

	m.SetToday(&schedule.Shift{ID: "shift-before"})
	snap := m.TakeSnapshot()

	m.SetToday(&schedule.Shift{ID: "shift-speculative"})
	m.Restore(snap)

	today, ok, _ := m.Today()
	require.True(t, ok)
	assert.Equal(t, "shift-before", today.ID)
}

func TestManager_RestoreToAbsent(t *testing.T) {
	m := newTestManager(&fakeAPI{}, nil)

	snap := m.TakeSnapshot()
	m.SetToday(&schedule.Shift{ID: "shift-speculative"})
	m.Restore(snap)

	_, ok, _ := m.Today()
	assert.False(t, ok, "restoring an empty snapshot clears the optimistic write")
}

func TestManager_ConcurrentRefreshCollapses(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		todayFn: func(ctx context.Context) (*schedule.Shift, error) {
			<-release
			return &schedule.Shift{ID: "shift-1"}, nil
		},
	}
	m := newTestManager(api, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RefreshView(context.Background(), ViewToday, TriggerFocus)
		}()
	}

	require.Eventually(t, func() bool { return api.todayCalls.Load() >= 1 },
		time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond) // let the remaining callers join the flight
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), api.todayCalls.Load(), "concurrent refreshes of one view share a single fetch")
}

func TestManager_DateRange(t *testing.T) {
	m := newTestManager(&fakeAPI{}, nil)
	m.now = func() time.Time {
		return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	}

	start, end := m.dateRange(7)
	assert.Equal(t, "2025-03-04", start)
	assert.Equal(t, "2025-03-10", end)

	start, end = m.dateRange(1)
	assert.Equal(t, "2025-03-10", start)
	assert.Equal(t, "2025-03-10", end)
}

func TestNewRefresher_NonPositiveIntervalDefaults(t *testing.T) {
	m := newTestManager(&fakeAPI{}, nil)
	log := logger.New("refresher-test", "test")

	r := NewRefresher(m, 0, log)
	assert.Equal(t, DefaultPollInterval, r.interval)

	r = NewRefresher(m, -time.Second, log)
	assert.Equal(t, DefaultPollInterval, r.interval)
}

func TestRefresher_TriggerRefreshesAllViews(t *testing.T) {
	var historyCalls atomic.Int32
	api := &fakeAPI{
		historyFn: func(ctx context.Context) ([]*schedule.Shift, error) {
			historyCalls.Add(1)
			return []*schedule.Shift{}, nil
		},
	}
	m := newTestManager(api, nil)
	r := NewRefresher(m, time.Hour, logger.New("refresher-test", "test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Trigger(TriggerReconnect)

	require.Eventually(t, func() bool { return historyCalls.Load() == 1 },
		time.Second, time.Millisecond, "a trigger refreshes every view, not just today")
	assert.GreaterOrEqual(t, api.todayCalls.Load(), int32(1))
}
