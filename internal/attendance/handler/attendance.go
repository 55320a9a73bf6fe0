// Package handler exposes the attendance agent over HTTP: the clock
// mutations, the three cached views, shift presets, and manual refresh.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/cache"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/engine"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/config"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/httputil"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
)

// AttendanceHandler handles the attendance endpoints
type AttendanceHandler struct {
	engine    *engine.Engine
	cache     *cache.Manager
	refresher *cache.Refresher
	cfg       *config.AgentConfig
	logger    *logger.Logger
	tz        *time.Location
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(e *engine.Engine, c *cache.Manager, r *cache.Refresher,
	cfg *config.AgentConfig, log *logger.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		engine:    e,
		cache:     c,
		refresher: r,
		cfg:       cfg,
		logger:    log,
		tz:        time.Local,
	}
}

// Routes mounts the attendance endpoints
func (h *AttendanceHandler) Routes(r chi.Router) {
	r.Post("/clock-in", h.ClockIn)
	r.Post("/clock-out", h.ClockOut)
	r.Get("/today", h.Today)
	r.Get("/history", h.History)
	r.Get("/stats", h.Stats)
	r.Get("/presets", h.Presets)
	r.Post("/refresh", h.Refresh)
}

// ShiftView is a shift decorated with its display annotations
type ShiftView struct {
	schedule.Shift
	Status      string `json:"status"`
	MinutesLate *int   `json:"minutes_late,omitempty"`
	Lateness    string `json:"lateness,omitempty"`
	OnTime      bool   `json:"on_time"`
	Overnight   bool   `json:"overnight"`
}

func (h *AttendanceHandler) shiftView(s *schedule.Shift) *ShiftView {
	if s == nil {
		return nil
	}
	view := &ShiftView{
		Shift:     *s,
		Status:    s.EffectiveStatus(),
		Overnight: s.Overnight(),
		OnTime:    true,
	}
	if s.ClockIn != nil {
		view.MinutesLate = schedule.MinutesLate(s.ScheduledStartTime(h.tz), &s.ClockIn.Time, h.cfg.ToleranceMinutes)
		if view.MinutesLate != nil {
			view.OnTime = schedule.OnTimeForDisplay(view.MinutesLate, h.cfg.ToleranceMinutes)
			view.Lateness = schedule.FormatLateness(*view.MinutesLate)
		}
	}
	return view
}

// ClockIn opens today's shift
// POST /api/v1/attendance/clock-in
func (h *AttendanceHandler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var in engine.ClockInInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	shift, err := h.engine.ClockIn(r.Context(), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, h.shiftView(shift))
}

// ClockOut closes a shift, today's by default or one from the history view
// POST /api/v1/attendance/clock-out
func (h *AttendanceHandler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var in engine.ClockOutInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(in); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	shift, err := h.engine.ClockOut(r.Context(), in)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, h.shiftView(shift))
}

// TodayResponse wraps the today view with its staleness flag
type TodayResponse struct {
	Shift *ShiftView `json:"shift"`
	Stale bool       `json:"stale"`
}

// Today returns today's shift from the cache, fetching once when the view
// has never been populated
// GET /api/v1/attendance/today
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	shift, ok, stale := h.cache.Today()
	if !ok {
		if err := h.cache.RefreshView(r.Context(), cache.ViewToday, cache.TriggerManual); err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}
		shift, _, stale = h.cache.Today()
	}
	httputil.JSON(w, http.StatusOK, TodayResponse{Shift: h.shiftView(shift), Stale: stale})
}

// HistoryResponse wraps the history view with its staleness flag
type HistoryResponse struct {
	Shifts []*ShiftView `json:"shifts"`
	Stale  bool         `json:"stale"`
}

// History returns the recent shift history
// GET /api/v1/attendance/history
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	shifts, ok, stale := h.cache.History()
	if !ok {
		if err := h.cache.RefreshView(r.Context(), cache.ViewHistory, cache.TriggerManual); err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}
		shifts, _, stale = h.cache.History()
	}

	views := make([]*ShiftView, 0, len(shifts))
	for _, s := range shifts {
		views = append(views, h.shiftView(s))
	}
	httputil.JSON(w, http.StatusOK, HistoryResponse{Shifts: views, Stale: stale})
}

// StatsResponse wraps the stats view with its staleness flag
type StatsResponse struct {
	Stats *schedule.AttendanceStats `json:"stats"`
	Stale bool                      `json:"stale"`
}

// Stats returns the aggregate attendance stats
// GET /api/v1/attendance/stats
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, ok, stale := h.cache.Stats()
	if !ok {
		if err := h.cache.RefreshView(r.Context(), cache.ViewStats, cache.TriggerManual); err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}
		stats, _, stale = h.cache.Stats()
	}
	httputil.JSON(w, http.StatusOK, StatsResponse{Stats: stats, Stale: stale})
}

// Presets returns the outlet's shift presets
// GET /api/v1/attendance/presets
func (h *AttendanceHandler) Presets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.engine.Presets(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, presets)
}

// RefreshRequest names the reason for a manual refresh
type RefreshRequest struct {
	Reason string `json:"reason" validate:"required,oneof=focus reconnect manual"`
}

// Refresh queues a full refresh of every view
// POST /api/v1/attendance/refresh
func (h *AttendanceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.refresher.Trigger(req.Reason)
	httputil.JSONWithMessage(w, http.StatusAccepted, nil, "refresh queued")
}
