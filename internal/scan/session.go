// Package scan drives an advertisement source into the status tracker.
//
// A Session owns the scan lifecycle:
//   - each Run is one scan session with its own ID
//   - the source is restarted after RetryInterval when it fails
//   - the tracker is marked disconnected when the session ends
package scan

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"budwatch/internal/ble"
	"budwatch/internal/config"
	"budwatch/internal/podstate"
)

// DefaultRetryInterval is used when Options.RetryInterval is zero.
const DefaultRetryInterval = 3 * time.Second

// Options configures a Session.
type Options struct {
	RetryInterval time.Duration
}

// Stats are counters for the current or last session.
type Stats struct {
	SessionID  string
	Seen       uint64 // advertisements delivered by the source
	Updates    uint64 // advertisements that produced a status update
	Suppressed uint64 // advertisements that produced nothing
	Restarts   uint64 // source failures followed by a retry
}

// Session feeds advertisements from a source into a tracker.
type Session struct {
	src     ble.Source
	tracker *podstate.Tracker
	opts    Options
	logger  *slog.Logger

	id         atomic.Value // string
	seen       atomic.Uint64
	updates    atomic.Uint64
	suppressed atomic.Uint64
	restarts   atomic.Uint64
}

// NewSession creates a session. A nil logger uses slog.Default().
func NewSession(src ble.Source, tracker *podstate.Tracker, opts Options, logger *slog.Logger) *Session {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		src:     src,
		tracker: tracker,
		opts:    opts,
		logger:  logger,
	}
	s.id.Store("")
	return s
}

// ID returns the current session ID, or "" before the first Run.
func (s *Session) ID() string {
	return s.id.Load().(string)
}

// Run scans until ctx is cancelled. Source failures are logged and retried.
// When Run returns the tracker has been marked disconnected.
func (s *Session) Run(ctx context.Context) error {
	id := newSessionID()
	s.id.Store(id)
	s.seen.Store(0)
	s.updates.Store(0)
	s.suppressed.Store(0)
	s.restarts.Store(0)

	logger := s.logger.With("session", id)
	logger.Info("scan session started")

	s.tracker.BeginSession()
	defer func() {
		status := s.tracker.MarkDisconnected()
		logger.Info("scan session ended", "status", status, "seen", s.seen.Load(), "updates", s.updates.Load())
	}()

	for {
		err := s.src.Run(ctx, s.handle)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warn("advertisement source failed, retrying", "error", err, "retry_in", s.opts.RetryInterval)
		} else {
			logger.Warn("advertisement source stopped, restarting", "retry_in", s.opts.RetryInterval)
		}
		s.restarts.Add(1)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.opts.RetryInterval):
		}
	}
}

func (s *Session) handle(adv ble.RawAdvertisement) {
	s.seen.Add(1)
	s.logger.Log(context.Background(), config.LevelTrace, "advertisement", "adv", adv)
	if _, ok := s.tracker.Observe(adv); ok {
		s.updates.Add(1)
		return
	}
	s.suppressed.Add(1)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		SessionID:  s.ID(),
		Seen:       s.seen.Load(),
		Updates:    s.updates.Load(),
		Suppressed: s.suppressed.Load(),
		Restarts:   s.restarts.Load(),
	}
}

// newSessionID returns a time-ordered ID so journal rows sort by session.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
