// Package geo acquires the caregiver's current position.
//
// A Provider performs a single fallible read. Its error text is shown to the
// caregiver verbatim, so implementations return the sentinel errors below
// (or wrap them with a short cause) rather than long diagnostic chains.
package geo

import (
	"context"
	"errors"
	"time"

	"github.com/evcraddock/carevisit/internal/visit"
)

var (
	ErrNotSupported        = errors.New("geolocation is not supported")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("timeout")
)

// Provider returns the device's current coordinate.
type Provider interface {
	CurrentPosition(ctx context.Context) (visit.Coordinate, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) (visit.Coordinate, error)

// CurrentPosition calls f.
func (f ProviderFunc) CurrentPosition(ctx context.Context) (visit.Coordinate, error) {
	return f(ctx)
}

// Unsupported is the provider for devices without location capability.
type Unsupported struct{}

// CurrentPosition always fails with ErrNotSupported.
func (Unsupported) CurrentPosition(context.Context) (visit.Coordinate, error) {
	return visit.Coordinate{}, ErrNotSupported
}

// Fixed reports a configured coordinate, for devices without a sensor
// where the caregiver enters their position.
type Fixed struct {
	Coordinate visit.Coordinate
}

// CurrentPosition returns the fixed coordinate.
func (f Fixed) CurrentPosition(ctx context.Context) (visit.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return visit.Coordinate{}, contextError(err)
	}
	if err := f.Coordinate.Validate(); err != nil {
		return visit.Coordinate{}, ErrPositionUnavailable
	}
	return f.Coordinate, nil
}

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// WithTimeout bounds every read of p. A read that outlives d fails with
// ErrTimeout. A zero or negative d returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{next: p, timeout: d}
}

func (t *timeoutProvider) CurrentPosition(ctx context.Context) (visit.Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		coord visit.Coordinate
		err   error
	}
	done := make(chan result, 1)
	go func() {
		c, err := t.next.CurrentPosition(ctx)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return visit.Coordinate{}, contextError(ctx.Err())
		}
		return r.coord, r.err
	case <-ctx.Done():
		return visit.Coordinate{}, contextError(ctx.Err())
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
