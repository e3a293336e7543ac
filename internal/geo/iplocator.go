package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/evcraddock/carevisit/internal/visit"
)

// DefaultIPLocatorURL is a free IP geolocation endpoint returning
// {"latitude": .., "longitude": ..}.
const DefaultIPLocatorURL = "https://ipapi.co/json/"

// IPLocator estimates the device position from its public IP address. It is
// coarse (city level) but works on hosts without a location sensor.
type IPLocator struct {
	url        string
	httpClient *http.Client
}

// NewIPLocator creates a locator for the given endpoint; an empty url uses
// DefaultIPLocatorURL.
func NewIPLocator(url string) *IPLocator {
	if url == "" {
		url = DefaultIPLocatorURL
	}
	return &IPLocator{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type ipLocatorResponse struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
}

// CurrentPosition looks up the caller's position.
func (l *IPLocator) CurrentPosition(ctx context.Context) (c visit.Coordinate, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return visit.Coordinate{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return visit.Coordinate{}, contextError(ctxErr)
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return visit.Coordinate{}, ErrTimeout
		}
		return visit.Coordinate{}, ErrPositionUnavailable
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrPositionUnavailable, closeErr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return visit.Coordinate{}, ErrPermissionDenied
	case resp.StatusCode != http.StatusOK:
		return visit.Coordinate{}, fmt.Errorf("%w: status %d", ErrPositionUnavailable, resp.StatusCode)
	}

	var body ipLocatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return visit.Coordinate{}, fmt.Errorf("%w: malformed response", ErrPositionUnavailable)
	}
	if body.Error {
		return visit.Coordinate{}, fmt.Errorf("%w: %s", ErrPositionUnavailable, body.Reason)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return visit.Coordinate{}, ErrPositionUnavailable
	}

	c = visit.Coordinate{Lat: *body.Latitude, Long: *body.Longitude}
	if err := c.Validate(); err != nil {
		return visit.Coordinate{}, ErrPositionUnavailable
	}
	return c, nil
}
