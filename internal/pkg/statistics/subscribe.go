package statistics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

// DefaultPollInterval is how often SubscribeTotal re-reads the total when the
// remote store cannot push updates.
const DefaultPollInterval = 10 * time.Second

// SubscribeTotal calls fn with the current total and then with every change
// until ctx is done. Remotes implementing TotalWatcher push changes, anything
// else is polled. While a push subscription is down the total is polled and
// the subscription is re-established with backoff. fn is never called
// concurrently.
func (a *Aggregator) SubscribeTotal(ctx context.Context, fn func(Count)) error {
	watcher, ok := a.remote.(TotalWatcher)
	if !ok {
		return a.pollTotal(ctx, fn)
	}

	var mu sync.Mutex
	push := func(c Count) {
		mu.Lock()
		defer mu.Unlock()
		fn(c)
	}

	var stopPolling func()
	defer func() {
		if stopPolling != nil {
			stopPolling()
		}
	}()

	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}
	for {
		updates, err := watcher.WatchTotal(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if stopPolling == nil {
				stopPolling = a.startPolling(ctx, push)
			}
			wait := b.Duration()
			a.log.Warn().Err(err).Dur("retry_in", wait).Msg("visit total subscription failed, polling")
			if !a.sleep(ctx, wait) {
				return nil
			}
			continue
		}
		if stopPolling != nil {
			stopPolling()
			stopPolling = nil
		}
		b.Reset()

		if c, err := a.TotalVisits(ctx); err == nil {
			push(c)
		}
		for n := range updates {
			push(Count{Value: n, Source: SourceRemote})
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// startPolling runs pollTotal in the background until the returned stop
// function is called. stop waits for the poller to exit.
func (a *Aggregator) startPolling(ctx context.Context, fn func(Count)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.pollTotal(ctx, fn)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *Aggregator) pollTotal(ctx context.Context, fn func(Count)) error {
	push := func() {
		c, err := a.TotalVisits(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("could not poll visit total")
			return
		}
		fn(c)
	}

	push()
	w := a.clock.TickerFunc(ctx, a.poll, func() error {
		push()
		return nil
	}, "statistics", "poll")

	err := w.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (a *Aggregator) sleep(ctx context.Context, d time.Duration) bool {
	t := a.clock.NewTimer(d, "statistics", "resubscribe")
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
