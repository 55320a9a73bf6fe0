package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Attendance events
	EventShiftClockIn  = "attendance.shift.clock_in"
	EventShiftClockOut = "attendance.shift.clock_out"

	// Cache events
	EventRefreshFailed = "attendance.cache.refresh_failed"
)

// Exchange names
const (
	ExchangeAttendanceEvents = "attendance.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// ShiftClockInEvent is published after a successful clock-in mutation
type ShiftClockInEvent struct {
	ShiftID        string     `json:"shift_id"`
	EmployeeID     string     `json:"employee_id"`
	OutletID       string     `json:"outlet_id"`
	BusinessID     string     `json:"business_id"`
	ShiftDate      string     `json:"shift_date"`
	ScheduledStart string     `json:"scheduled_start"`
	ScheduledEnd   string     `json:"scheduled_end"`
	ClockIn        *time.Time `json:"clock_in,omitempty"`
	MinutesLate    *int       `json:"minutes_late,omitempty"`
	LocationSource string     `json:"location_source"`
}

// ShiftClockOutEvent is published after a successful clock-out mutation
type ShiftClockOutEvent struct {
	ShiftID        string     `json:"shift_id"`
	EmployeeID     string     `json:"employee_id"`
	OutletID       string     `json:"outlet_id"`
	ClockOut       *time.Time `json:"clock_out,omitempty"`
	FromHistory    bool       `json:"from_history"`
	LocationSource string     `json:"location_source"`
}

// RefreshFailedEvent is published when a post-mutation refetch of a cached
// view fails and the stale value is retained
type RefreshFailedEvent struct {
	View   string `json:"view"`
	Reason string `json:"reason"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
