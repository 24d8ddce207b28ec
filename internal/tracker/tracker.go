// Package tracker samples the device position while a shift is active and
// forwards significant movements to the backend.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"timeclock/internal/db/models"
	"timeclock/internal/geo"
	"timeclock/internal/position"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
)

const (
	DefaultThresholdMeters = 10.0

	// No battery API on the agent; the column is required.
	placeholderBatteryLevel = 100
)

type LocationWriter interface {
	InsertLocation(ctx context.Context, loc *models.Location) error
}

// LocationCache holds the last known location shown to the user.
type LocationCache interface {
	LastLocation() *geo.Coordinate
	SetLastLocation(ctx context.Context, c geo.Coordinate)
}

// Snapshot is the shift state the position callback needs. It is replaced
// on every state change and only read by the callback.
type Snapshot struct {
	EmployeeID uuid.UUID
	ShiftID    uuid.UUID
	Status     models.ShiftStatus
}

type Config struct {
	ThresholdMeters float64
	Watch           position.WatchOptions
	// InsertAttempts bounds tries per sample; 1 means at-most-once.
	InsertAttempts int
	InsertTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		ThresholdMeters: DefaultThresholdMeters,
		Watch:           position.TrackingOptions,
		InsertAttempts:  1,
		InsertTimeout:   10 * time.Second,
	}
}

type Sampler struct {
	src    position.Source
	writer LocationWriter
	cache  LocationCache
	marker *Marker
	logger *slog.Logger
	cfg    Config

	newBackOff func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	snap     Snapshot
	watch    position.Watch
	starting bool
	closed   bool
	lastSent *geo.Coordinate
}

func New(src position.Source, writer LocationWriter, cache LocationCache, marker *Marker, cfg Config, logger *slog.Logger) *Sampler {
	if cfg.ThresholdMeters <= 0 {
		cfg.ThresholdMeters = DefaultThresholdMeters
	}
	if cfg.InsertAttempts <= 0 {
		cfg.InsertAttempts = 1
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sampler{
		src:    src,
		writer: writer,
		cache:  cache,
		marker: marker,
		logger: logger,
		cfg:    cfg,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Update replaces the snapshot and starts or stops the position watch so
// that it runs exactly while the shift is active.
func (s *Sampler) Update(snap Snapshot) {
	active := snap.Status == models.StatusActive

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.snap = snap
	var stop position.Watch
	if !active && s.watch != nil {
		stop, s.watch = s.watch, nil
	}
	start := active && s.watch == nil && !s.starting
	if start {
		s.starting = true
	}
	s.mu.Unlock()

	if stop != nil {
		stop.Stop()
		s.logger.Debug("position watch stopped")
	}
	if start {
		s.startWatch()
	}
}

// startWatch subscribes outside the lock; sources may deliver a fix before
// Watch returns.
func (s *Sampler) startWatch() {
	w, err := s.src.Watch(s.cfg.Watch, s.handleFix, s.handleError)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to start position watch", "error", err)
		return
	}
	if s.closed || s.snap.Status != models.StatusActive {
		s.mu.Unlock()
		w.Stop()
		return
	}
	s.watch = w
	s.mu.Unlock()
	s.logger.Debug("position watch started")
}

func (s *Sampler) handleError(err error) {
	s.logger.Warn("position watch error", "error", err)
}

func (s *Sampler) handleFix(c geo.Coordinate) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	snap := s.snap
	closed := s.closed
	var lastSent *geo.Coordinate
	if s.lastSent != nil {
		ls := *s.lastSent
		lastSent = &ls
	}
	s.mu.Unlock()

	if closed || snap.Status != models.StatusActive {
		return
	}

	cached := s.cache.LastLocation()
	s.cache.SetLastLocation(s.ctx, c)

	if snap.ShiftID == uuid.Nil {
		// a ping cannot be linked to an unidentified shift
		return
	}
	if !s.shouldPersist(snap.ShiftID, cached, lastSent, c) {
		return
	}
	s.persist(snap, c)
}

// shouldPersist applies the first-ping and distance rules. The distance is
// measured from the last persisted fix of this session, or from the cached
// fix when nothing was persisted yet.
func (s *Sampler) shouldPersist(shiftID uuid.UUID, cached, lastSent *geo.Coordinate, c geo.Coordinate) bool {
	if !s.marker.Sent(shiftID) {
		return true
	}
	if cached == nil {
		return true
	}
	ref := cached
	if lastSent != nil {
		ref = lastSent
	}
	return geo.Distance(*ref, c) > s.cfg.ThresholdMeters
}

func (s *Sampler) persist(snap Snapshot, c geo.Coordinate) {
	loc := &models.Location{
		EmployeeID:   snap.EmployeeID,
		TimeEntryID:  snap.ShiftID,
		Latitude:     c.Latitude,
		Longitude:    c.Longitude,
		Accuracy:     c.Accuracy,
		Heading:      c.Heading,
		Speed:        c.Speed,
		BatteryLevel: placeholderBatteryLevel,
		RecordedAt:   c.Timestamp,
	}

	insert := func() error {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.InsertTimeout)
		defer cancel()
		return s.writer.InsertLocation(ctx, loc)
	}

	if err := s.insertWithPolicy(insert); err != nil {
		s.logger.Error("failed to persist location", "employee", snap.EmployeeID, "shift", snap.ShiftID, "error", err)
		return
	}

	s.marker.Mark(snap.ShiftID)
	s.mu.Lock()
	s.lastSent = &c
	s.mu.Unlock()
	s.logger.Debug("location persisted", "shift", snap.ShiftID, "lat", c.Latitude, "lon", c.Longitude)
}

// insertWithPolicy runs insert once, or up to InsertAttempts times with
// backoff. WithMaxRetries treats 0 as unlimited, so a single attempt never
// goes through the retry loop.
func (s *Sampler) insertWithPolicy(insert func() error) error {
	if s.cfg.InsertAttempts <= 1 {
		return insert()
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(s.newBackOff(), uint64(s.cfg.InsertAttempts-1)),
		s.ctx,
	)
	return backoff.Retry(insert, policy)
}

// Close stops the watch and abandons in-flight inserts.
func (s *Sampler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	w := s.watch
	s.watch = nil
	s.mu.Unlock()

	s.cancel()
	if w != nil {
		w.Stop()
	}
}

// Watching reports whether a position watch is running.
func (s *Sampler) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watch != nil
}
