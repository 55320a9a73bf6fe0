// Package location acquires the device position for attendance and applies
// the outlet-driven fallback policy when acquisition fails.
package location

import (
	"context"
	"time"

	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/metrics"
)

// DefaultTimeout bounds one geolocation acquisition
const DefaultTimeout = 20 * time.Second

// Fix sources
const (
	SourceDevice = "device"
	SourceOutlet = "outlet"
	SourceNone   = "none"
)

// Position is one raw device fix
type Position struct {
	Latitude  float64
	Longitude float64
}

// Geolocator is the device geolocation collaborator
type Geolocator interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Fix is a resolved attendance location. Latitude/Longitude are nil when the
// fallback recorded attendance without coordinates.
type Fix struct {
	Latitude  *float64
	Longitude *float64
	Source    string
}

// Resolver acquires a fix with a timeout and applies the outlet fallback
// policy on failure.
type Resolver struct {
	geo     Geolocator
	timeout time.Duration
	logger  *logger.Logger
	metrics *metrics.Collector
}

// NewResolver creates a location resolver. A zero timeout uses DefaultTimeout.
func NewResolver(geo Geolocator, timeout time.Duration, log *logger.Logger, m *metrics.Collector) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		geo:     geo,
		timeout: timeout,
		logger:  log.WithComponent("location"),
		metrics: m,
	}
}

// Resolve acquires the device position, falling back per the outlet policy:
//  1. gps_required: propagate the failure, the caller must abort.
//  2. outlet has registered coordinates: substitute them with a warning.
//  3. otherwise: record attendance without coordinates, with a warning.
//
// The fallback is evaluated only after acquisition fails.
func (r *Resolver) Resolve(ctx context.Context, outlet *schedule.Outlet) (Fix, error) {
	acqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pos, err := r.geo.CurrentPosition(acqCtx)
	if err == nil {
		return Fix{Latitude: &pos.Latitude, Longitude: &pos.Longitude, Source: SourceDevice}, nil
	}

	if outlet != nil && outlet.AttendanceGPSRequired {
		r.logger.Error().Err(err).Str("outlet_id", outlet.ID).Msg("location required but unavailable")
		return Fix{}, errors.LocationUnavailable(err)
	}

	if outlet.HasCoordinates() {
		r.logger.Warn().Err(err).
			Str("outlet_id", outlet.ID).
			Msg("device location unavailable, substituting outlet coordinates")
		r.metrics.RecordLocationFallback(SourceOutlet)
		return Fix{Latitude: outlet.Latitude, Longitude: outlet.Longitude, Source: SourceOutlet}, nil
	}

	r.logger.Warn().Err(err).Msg("device location unavailable, recording attendance without coordinates")
	r.metrics.RecordLocationFallback(SourceNone)
	return Fix{Source: SourceNone}, nil
}
