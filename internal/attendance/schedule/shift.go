// Package schedule holds the shift data model and the pure scheduling rules:
// time-window validation, preset resolution, lateness computation, and status
// derivation. Nothing in this package performs I/O.
package schedule

import (
	"time"
)

// Shift statuses
const (
	StatusScheduled = "scheduled"
	StatusOngoing   = "ongoing"
	StatusLate      = "late"
	StatusCompleted = "completed"
	StatusAbsent    = "absent"
)

// DateFormat is the wire format for shift dates
const DateFormat = "2006-01-02"

// ClockEvent records one clock-in or clock-out with its optional coordinates
type ClockEvent struct {
	Time      time.Time `json:"time"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
}

// Shift is one scheduled plus actual work period for an employee at an outlet
// on a date. Created by a clock-in mutation, mutated exactly once by a
// clock-out mutation, never deleted or edited here.
type Shift struct {
	ID             string      `json:"id"`
	EmployeeID     string      `json:"employee_id"`
	OutletID       string      `json:"outlet_id"`
	BusinessID     string      `json:"business_id"`
	ShiftDate      string      `json:"shift_date"`
	ScheduledStart string      `json:"scheduled_start"`
	ScheduledEnd   string      `json:"scheduled_end"`
	ClockIn        *ClockEvent `json:"clock_in,omitempty"`
	ClockOut       *ClockEvent `json:"clock_out,omitempty"`
	Status         string      `json:"status"`
}

// Overnight reports whether the scheduled window wraps past midnight
// (end ≤ start in day-minutes).
func (s *Shift) Overnight() bool {
	start, err := parseClock(s.ScheduledStart)
	if err != nil {
		return false
	}
	end, err := parseClock(s.ScheduledEnd)
	if err != nil {
		return false
	}
	return end <= start
}

// ScheduledStartTime combines ShiftDate and ScheduledStart into a wall-clock
// time in loc. Returns nil when either field is unparseable.
func (s *Shift) ScheduledStartTime(loc *time.Location) *time.Time {
	date, err := time.ParseInLocation(DateFormat, s.ShiftDate, loc)
	if err != nil {
		return nil
	}
	mins, err := parseClock(s.ScheduledStart)
	if err != nil {
		return nil
	}
	t := date.Add(time.Duration(mins) * time.Minute)
	return &t
}

// Completed reports whether both clock events are present.
func (s *Shift) Completed() bool {
	return s.ClockIn != nil && s.ClockOut != nil
}

// DeriveStatus computes the lifecycle status from the clock events alone.
// It is the single status authority when the remote omits one.
func DeriveStatus(clockIn, clockOut *ClockEvent) string {
	switch {
	case clockIn == nil:
		return StatusScheduled
	case clockOut == nil:
		return StatusOngoing
	default:
		return StatusCompleted
	}
}

// EffectiveStatus returns the remote-provided status when present, otherwise
// the derived one. The remote is authoritative; the client only derives when
// it has nothing else to go on.
func (s *Shift) EffectiveStatus() string {
	if s.Status != "" {
		return s.Status
	}
	return DeriveStatus(s.ClockIn, s.ClockOut)
}

// Outlet is the read-only outlet configuration this engine consumes: preset
// shift times, the GPS policy, and registered coordinates.
type Outlet struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	ShiftPagiStart        string   `json:"shift_pagi_start"`
	ShiftPagiEnd          string   `json:"shift_pagi_end"`
	ShiftSiangStart       string   `json:"shift_siang_start"`
	ShiftSiangEnd         string   `json:"shift_siang_end"`
	ShiftMalamStart       string   `json:"shift_malam_start"`
	ShiftMalamEnd         string   `json:"shift_malam_end"`
	AttendanceGPSRequired bool     `json:"attendance_gps_required"`
	Latitude              *float64 `json:"latitude,omitempty"`
	Longitude             *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether the outlet has registered coordinates to
// fall back on.
func (o *Outlet) HasCoordinates() bool {
	return o != nil && o.Latitude != nil && o.Longitude != nil
}

// AttendanceStats is the aggregate view returned by the remote stats query
type AttendanceStats struct {
	TotalShifts int `json:"total_shifts"`
	Completed   int `json:"completed"`
	Late        int `json:"late"`
	Present     int `json:"present"`
	Absent      int `json:"absent"`
}
