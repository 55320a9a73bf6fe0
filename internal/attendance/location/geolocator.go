package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPGeolocator reads the current position from a local device bridge
// exposing a single JSON endpoint.
type HTTPGeolocator struct {
	url  string
	http *http.Client
}

// NewHTTPGeolocator creates a geolocator against the bridge URL. The overall
// acquisition timeout comes from the caller's context; the client itself is
// unbounded.
func NewHTTPGeolocator(url string) *HTTPGeolocator {
	return &HTTPGeolocator{url: url, http: &http.Client{}}
}

// CurrentPosition fetches one fix from the bridge
func (g *HTTPGeolocator) CurrentPosition(ctx context.Context) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return Position{}, err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return Position{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Position{}, fmt.Errorf("device bridge returned status %d", resp.StatusCode)
	}

	var pos Position
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return Position{}, fmt.Errorf("malformed device bridge response: %w", err)
	}
	return pos, nil
}

// NoDevice is a Geolocator for deployments without a positioning device.
// Every acquisition fails, so the outlet fallback policy always applies.
type NoDevice struct{}

// CurrentPosition always reports that no device is present
func (NoDevice) CurrentPosition(ctx context.Context) (Position, error) {
	return Position{}, fmt.Errorf("no positioning device configured")
}
