package location_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/location"
	"github.com/shiftpoint/shiftpoint-attendance/internal/attendance/schedule"
	apperrors "github.com/shiftpoint/shiftpoint-attendance/pkg/errors"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/logger"
	"github.com/shiftpoint/shiftpoint-attendance/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGeolocator returns a fixed position or error, optionally after a delay
type fakeGeolocator struct {
	pos   location.Position
	err   error
	delay time.Duration
}

func (f *fakeGeolocator) CurrentPosition(ctx context.Context) (location.Position, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return location.Position{}, ctx.Err()
		}
	}
	if f.err != nil {
		return location.Position{}, f.err
	}
	return f.pos, nil
}

func newResolver(t *testing.T, geo location.Geolocator, timeout time.Duration) *location.Resolver {
	t.Helper()
	log := logger.New("test", "development")
	m := metrics.NewCollector(prometheus.NewRegistry())
	return location.NewResolver(geo, timeout, log, m)
}

func floatPtr(f float64) *float64 { return &f }

func TestResolve_DeviceFix(t *testing.T) {
	geo := &fakeGeolocator{pos: location.Position{Latitude: -6.2, Longitude: 106.8}}
	r := newResolver(t, geo, time.Second)

	fix, err := r.Resolve(context.Background(), &schedule.Outlet{ID: "out-1"})
	require.NoError(t, err)

	assert.Equal(t, location.SourceDevice, fix.Source)
	require.NotNil(t, fix.Latitude)
	require.NotNil(t, fix.Longitude)
	assert.InDelta(t, -6.2, *fix.Latitude, 1e-9)
	assert.InDelta(t, 106.8, *fix.Longitude, 1e-9)
}

func TestResolve_GPSRequiredPropagatesFailure(t *testing.T) {
	geo := &fakeGeolocator{err: errors.New("permission denied")}
	r := newResolver(t, geo, time.Second)

	outlet := &schedule.Outlet{ID: "out-1", AttendanceGPSRequired: true}
	_, err := r.Resolve(context.Background(), outlet)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrLocationUnavailable))
}

func TestResolve_FallsBackToOutletCoordinates(t *testing.T) {
	geo := &fakeGeolocator{err: errors.New("permission denied")}
	r := newResolver(t, geo, time.Second)

	outlet := &schedule.Outlet{
		ID:        "out-1",
		Latitude:  floatPtr(-6.2),
		Longitude: floatPtr(106.8),
	}
	fix, err := r.Resolve(context.Background(), outlet)
	require.NoError(t, err)

	assert.Equal(t, location.SourceOutlet, fix.Source)
	assert.Equal(t, outlet.Latitude, fix.Latitude)
	assert.Equal(t, outlet.Longitude, fix.Longitude)
}

func TestResolve_FallsBackToNoCoordinates(t *testing.T) {
	geo := &fakeGeolocator{err: errors.New("no provider")}
	r := newResolver(t, geo, time.Second)

	fix, err := r.Resolve(context.Background(), &schedule.Outlet{ID: "out-1"})
	require.NoError(t, err)

	assert.Equal(t, location.SourceNone, fix.Source)
	assert.Nil(t, fix.Latitude)
	assert.Nil(t, fix.Longitude)
}

func TestResolve_TimeoutTriggersFallback(t *testing.T) {
	// geolocator slower than the resolver timeout
	geo := &fakeGeolocator{
		pos:   location.Position{Latitude: 1, Longitude: 2},
		delay: 500 * time.Millisecond,
	}
	r := newResolver(t, geo, 20*time.Millisecond)

	fix, err := r.Resolve(context.Background(), &schedule.Outlet{ID: "out-1"})
	require.NoError(t, err)
	assert.Equal(t, location.SourceNone, fix.Source)
}

func TestResolve_TimeoutWithMandatoryGPSFails(t *testing.T) {
	geo := &fakeGeolocator{
		pos:   location.Position{Latitude: 1, Longitude: 2},
		delay: 500 * time.Millisecond,
	}
	r := newResolver(t, geo, 20*time.Millisecond)

	outlet := &schedule.Outlet{ID: "out-1", AttendanceGPSRequired: true}
	_, err := r.Resolve(context.Background(), outlet)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrLocationUnavailable))
}
