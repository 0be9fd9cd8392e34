package statistics

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultLoadTimeout     = 10 * time.Second

	// Shown when the counters cannot be read at all.
	DefaultErrorWeekly  int64 = 8
	DefaultErrorMonthly int64 = 15
)

// Counter is what a Tracker needs from the aggregator.
type Counter interface {
	RegisterVisit(ctx context.Context) (bool, error)
	WeeklyVisits(ctx context.Context) (Count, error)
	MonthlyVisits(ctx context.Context) (Count, error)
}

// State is the widget-facing view of the visit counters.
type State struct {
	Weekly     int64
	Monthly    int64
	Loading    bool
	DataSource Source
	Error      string
	// Registered is true once this mount counted a visit.
	Registered bool
	UpdatedAt  time.Time
}

type TrackerOptions struct {
	Clock           quartz.Clock
	RefreshInterval time.Duration
	LoadTimeout     time.Duration
	ErrorWeekly     int64
	ErrorMonthly    int64
	Logger          zerolog.Logger
}

// Tracker registers one visit per mount and keeps weekly and monthly
// figures fresh until it is unmounted.
type Tracker struct {
	counter Counter
	opts    TrackerOptions

	mu    sync.RWMutex
	state State

	mountOnce   sync.Once
	unmountOnce sync.Once
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	ticker      quartz.Waiter
}

func NewTracker(counter Counter, opts TrackerOptions) *Tracker {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.ErrorWeekly <= 0 {
		opts.ErrorWeekly = DefaultErrorWeekly
	}
	if opts.ErrorMonthly <= 0 {
		opts.ErrorMonthly = DefaultErrorMonthly
	}
	return &Tracker{
		counter: counter,
		opts:    opts,
		state: State{
			Loading:    true,
			DataSource: SourceLoading,
		},
	}
}

// Mount registers the visit, loads the first figures and starts the refresh
// ticker. Only the first call has any effect. ctx bounds the whole lifetime
// of the mount and must outlive a single request.
func (t *Tracker) Mount(ctx context.Context) {
	t.mountOnce.Do(func() {
		ctx, t.cancel = context.WithCancel(ctx)

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.register(ctx)
			t.refresh(ctx)
		}()

		t.ticker = t.opts.Clock.TickerFunc(ctx, t.opts.RefreshInterval, func() error {
			t.refresh(ctx)
			return nil
		}, "statistics", "tracker", "refresh")
	})
}

// Unmount stops the refresh ticker and waits for in-flight loads.
func (t *Tracker) Unmount() {
	t.unmountOnce.Do(func() {
		// Never mounted: nothing to stop.
		t.mountOnce.Do(func() {})
		if t.cancel == nil {
			return
		}
		t.cancel()
		t.wg.Wait()
		_ = t.ticker.Wait()
	})
}

func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) register(ctx context.Context) {
	counted, err := t.counter.RegisterVisit(ctx)
	if err != nil {
		t.opts.Logger.Error().Err(err).Msg("could not register visit")
		return
	}
	if counted {
		t.mu.Lock()
		t.state.Registered = true
		t.mu.Unlock()
	}
}

func (t *Tracker) refresh(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, t.opts.LoadTimeout)
	defer cancel()

	var weekly, monthly Count
	g, gctx := errgroup.WithContext(loadCtx)
	g.Go(func() error {
		c, err := t.counter.WeeklyVisits(gctx)
		weekly = c
		return err
	})
	g.Go(func() error {
		c, err := t.counter.MonthlyVisits(gctx)
		monthly = c
		return err
	})
	err := g.Wait()

	// Unmounted mid-load, keep the last published state.
	if ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Loading = false
	t.state.UpdatedAt = t.opts.Clock.Now()

	if err != nil {
		t.opts.Logger.Error().Err(err).Msg("could not load visit data")
		t.state.Weekly = t.opts.ErrorWeekly
		t.state.Monthly = t.opts.ErrorMonthly
		t.state.DataSource = SourceError
		t.state.Error = "error loading visit data"
		return
	}

	source := SourceRemote
	if weekly.Source == SourceFallback || monthly.Source == SourceFallback {
		source = SourceFallback
	}
	t.state.Weekly = displayFloor(weekly.Value)
	t.state.Monthly = displayFloor(monthly.Value)
	t.state.DataSource = source
	t.state.Error = ""
}

// displayFloor keeps the widget from ever showing a literal zero, the
// current visitor is always active.
func displayFloor(n int64) int64 {
	if n < 1 {
		return 1
	}
	return n
}
