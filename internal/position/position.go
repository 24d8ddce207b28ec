// Package position abstracts the device positioning sensor.
//
// A Source behaves like a continuous position watch: fixes are delivered
// serially to the fix callback until the returned Watch is stopped. Errors
// (timeouts, undecodable fixes) go to the error callback and do not end the
// watch.
package position

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"timeclock/internal/geo"
)

var (
	ErrTimeout     = errors.New("position: timeout waiting for fix")
	ErrUnavailable = errors.New("position: source unavailable")
)

// WatchOptions mirrors the geolocation configuration triple.
type WatchOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	// MaximumAge is how old a cached fix may be. Zero forces a fresh fix.
	MaximumAge time.Duration
}

// TrackingOptions are used while a shift is active.
var TrackingOptions = WatchOptions{
	EnableHighAccuracy: true,
	Timeout:            10 * time.Second,
	MaximumAge:         0,
}

// FallbackOptions are used when a high accuracy one-shot read fails.
var FallbackOptions = WatchOptions{
	EnableHighAccuracy: false,
	Timeout:            10 * time.Second,
	MaximumAge:         5 * time.Minute,
}

type Watch interface {
	Stop()
}

type Source interface {
	Watch(opts WatchOptions, onFix func(geo.Coordinate), onErr func(error)) (Watch, error)
}

// Current reads a single fix. It fails with ErrTimeout when no fix arrives
// within opts.Timeout.
func Current(ctx context.Context, src Source, opts WatchOptions) (*geo.Coordinate, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	fixes := make(chan geo.Coordinate, 1)
	errs := make(chan error, 1)

	// The watch keeps its own timer; a one-shot read reports the first
	// outcome only.
	watchOpts := opts
	watchOpts.Timeout = 0
	w, err := src.Watch(watchOpts,
		func(c geo.Coordinate) {
			select {
			case fixes <- c:
			default:
			}
		},
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	)
	if err != nil {
		return nil, err
	}
	defer w.Stop()

	select {
	case c := <-fixes:
		return &c, nil
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// CurrentOrFallback reads a high accuracy fix and degrades to a low
// accuracy, cache-tolerant read when that fails. It returns nil when both
// attempts fail; callers proceed without a location.
func CurrentOrFallback(ctx context.Context, src Source, logger *slog.Logger) *geo.Coordinate {
	if src == nil {
		return nil
	}

	c, err := Current(ctx, src, TrackingOptions)
	if err == nil {
		return c
	}
	logger.Warn("high accuracy position failed, falling back", "error", err)

	c, err = Current(ctx, src, FallbackOptions)
	if err != nil {
		logger.Warn("fallback position failed", "error", err)
		return nil
	}
	return c
}
