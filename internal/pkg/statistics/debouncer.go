package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// DefaultSessionWindow is the minimum gap between two counted visits of the
// same browser profile.
const DefaultSessionWindow = 30 * time.Minute

// Debouncer decides whether a page load starts a new visit.
type Debouncer struct {
	store  *LocalStore
	clock  quartz.Clock
	window time.Duration
	log    zerolog.Logger
	locks  *sessionLocks
}

func NewDebouncer(store *LocalStore, clock quartz.Clock, window time.Duration, log zerolog.Logger) *Debouncer {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if window <= 0 {
		window = DefaultSessionWindow
	}
	return &Debouncer{store: store, clock: clock, window: window, log: log, locks: newSessionLocks()}
}

// ShouldCount stamps the session marker whenever it returns true. A broken
// session store never suppresses a visit.
func (d *Debouncer) ShouldCount(ctx context.Context) bool {
	unlock := d.locks.lock(d.store.profile)
	defer unlock()

	now := d.clock.Now()

	marker, err := d.store.SessionMarker(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("session marker unreadable, counting visit")
		return true
	}

	if marker.SessionID == "" {
		if err := d.store.SetSessionID(ctx, NewSessionID(now)); err != nil {
			d.log.Warn().Err(err).Msg("could not persist session id")
		}
		d.stamp(ctx, now)
		return true
	}

	if !marker.HasTimestamp {
		d.log.Debug().Str("session", marker.SessionID).Msg("repairing missing visit timestamp")
		d.stamp(ctx, now)
		return true
	}

	if now.Sub(marker.LastVisitAt) >= d.window {
		d.stamp(ctx, now)
		return true
	}
	return false
}

func (d *Debouncer) stamp(ctx context.Context, now time.Time) {
	if err := d.store.SetLastVisitAt(ctx, now); err != nil {
		d.log.Warn().Err(err).Msg("could not persist last visit time")
	}
}

// NewSessionID returns an opaque id like session_1714644000000_cp2h6k0l0s7g.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), xid.New().String())
}

// sessionLocks serializes the read-then-stamp of a session marker per
// profile. Entries are dropped once nobody holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (s *sessionLocks) lock(profile string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[profile]
	if !ok {
		l = &sessionLock{}
		s.locks[profile] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, profile)
		}
		s.mu.Unlock()
	}
}
