package statistics

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// Config wires the aggregator. Remote may be nil, in which case every
// operation runs against the fallback store.
type Config struct {
	Remote        Remote
	Fallback      *LocalStore
	Clock         quartz.Clock
	Location      *time.Location
	SessionWindow time.Duration
	Logger        zerolog.Logger
	Observer      Observer
	// RandIntn returns a value in [0, n). Used for sample history.
	RandIntn func(n int) int
	// PollInterval drives SubscribeTotal when no push channel is available.
	PollInterval time.Duration
}

// Aggregator counts visits and reads windowed sums, degrading to the
// fallback store whenever the remote store fails.
type Aggregator struct {
	remote    Remote
	fallback  *LocalStore
	debouncer *Debouncer
	sessions  *sessionLocks
	clock     quartz.Clock
	loc       *time.Location
	window    time.Duration
	log       zerolog.Logger
	observer  Observer
	randIntn  func(n int) int
	poll      time.Duration
}

func NewAggregator(cfg Config) *Aggregator {
	if cfg.Fallback == nil {
		cfg.Fallback = NewLocalStore(NewMemoryStorage(), DefaultNamespace)
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.RandIntn == nil {
		cfg.RandIntn = rand.IntN
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	a := &Aggregator{
		remote:   cfg.Remote,
		fallback: cfg.Fallback,
		clock:    cfg.Clock,
		loc:      cfg.Location,
		window:   cfg.SessionWindow,
		log:      cfg.Logger,
		observer: cfg.Observer,
		randIntn: cfg.RandIntn,
		poll:     cfg.PollInterval,
	}
	a.debouncer = NewDebouncer(a.fallback, a.clock, a.window, a.log)
	a.sessions = a.debouncer.locks
	return a
}

// ForProfile returns an aggregator sharing the counters but debouncing
// visits with the session marker of the given browser profile.
func (a *Aggregator) ForProfile(id string) *Aggregator {
	cp := *a
	cp.debouncer = NewDebouncer(a.fallback.Profile(id), a.clock, a.window, a.log.With().Str("profile", id).Logger())
	// Every view of the same aggregator shares the per-profile session locks.
	cp.debouncer.locks = a.sessions
	return &cp
}

// RegisterVisit returns true when a counted write happened, on either
// store, and false when the load belongs to the current visit session.
func (a *Aggregator) RegisterVisit(ctx context.Context) (bool, error) {
	if !a.debouncer.ShouldCount(ctx) {
		a.observer.VisitDeduplicated()
		return false, nil
	}

	now := a.clock.Now()
	day := DateKey(now, a.loc)

	if a.remote != nil {
		_, err := a.remote.Increment(ctx, day, now)
		if err == nil {
			a.observer.VisitCounted(SourceRemote)
			return true, nil
		}
		a.observer.StoreFailed("register")
		a.log.Warn().Err(err).Msg("remote visit counter failed, using fallback store")
	}

	if _, err := a.fallback.Increment(ctx, day, now); err != nil {
		a.log.Error().Err(err).Msg("fallback visit counter failed")
		return false, fmt.Errorf("register visit: %w", err)
	}
	a.observer.FallbackUsed("register")
	a.observer.VisitCounted(SourceFallback)
	return true, nil
}

// WeeklyVisits sums today and the 6 preceding days.
func (a *Aggregator) WeeklyVisits(ctx context.Context) (Count, error) {
	return a.windowSum(ctx, "weekly", WeeklyWindowDays)
}

// MonthlyVisits sums today and the 29 preceding days.
func (a *Aggregator) MonthlyVisits(ctx context.Context) (Count, error) {
	return a.windowSum(ctx, "monthly", MonthlyWindowDays)
}

func (a *Aggregator) windowSum(ctx context.Context, op string, days int) (Count, error) {
	keys := DateKeys(a.clock.Now(), a.loc, days)

	if a.remote != nil {
		counts, err := a.remote.DailyCounts(ctx, keys)
		if err == nil {
			return Count{Value: sumCounts(counts), Source: SourceRemote}, nil
		}
		a.observer.StoreFailed(op)
		a.log.Warn().Err(err).Str("window", op).Msg("remote daily visits unavailable, using fallback store")
	}

	counts, err := a.fallback.DailyCounts(ctx, keys)
	if err != nil {
		return Count{Source: SourceError}, fmt.Errorf("%s visits: %w", op, err)
	}
	a.observer.FallbackUsed(op)
	return Count{Value: sumCounts(counts), Source: SourceFallback}, nil
}

func (a *Aggregator) TotalVisits(ctx context.Context) (Count, error) {
	if a.remote != nil {
		n, err := a.remote.Total(ctx)
		if err == nil {
			return Count{Value: n, Source: SourceRemote}, nil
		}
		a.observer.StoreFailed("total")
		a.log.Warn().Err(err).Msg("remote visit total unavailable, using fallback store")
	}

	n, err := a.fallback.Total(ctx)
	if err != nil {
		return Count{Source: SourceError}, fmt.Errorf("total visits: %w", err)
	}
	a.observer.FallbackUsed("total")
	return Count{Value: n, Source: SourceFallback}, nil
}

// LastUpdated returns when a visit was last counted, read like TotalVisits.
func (a *Aggregator) LastUpdated(ctx context.Context) (time.Time, error) {
	if a.remote != nil {
		t, err := a.remote.LastUpdated(ctx)
		if err == nil {
			return t, nil
		}
		a.observer.StoreFailed("last_updated")
		a.log.Warn().Err(err).Msg("remote last update unavailable, using fallback store")
	}

	t, err := a.fallback.LastUpdated(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("last updated: %w", err)
	}
	a.observer.FallbackUsed("last_updated")
	return t, nil
}
