package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Ticker runs a function immediately and then on every interval. A tick is
// skipped while the previous run is still in flight.
type Ticker struct {
	name     string
	interval time.Duration
	fn       func(context.Context)
	logger   zerolog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
	stopOnce sync.Once

	busy    atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
}

// Every starts a ticker. Cancel ctx or call Stop to end it.
func Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context), logger zerolog.Logger) *Ticker {
	ctx, cancel := context.WithCancel(ctx)
	t := &Ticker{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With().Str("timer", name).Logger(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

// Name returns the ticker name.
func (t *Ticker) Name() string { return t.name }

// Interval returns the tick interval.
func (t *Ticker) Interval() time.Duration { return t.interval }

// Runs returns how many invocations started.
func (t *Ticker) Runs() int64 { return t.runs.Load() }

// Skipped returns how many ticks were dropped because a run was in flight.
func (t *Ticker) Skipped() int64 { return t.skipped.Load() }

// Busy reports whether a run is in flight.
func (t *Ticker) Busy() bool { return t.busy.Load() }

// Stop cancels the ticker and waits for the tick loop to exit. An in-flight
// run sees its context cancelled but is not waited for, so Stop is safe to
// call from inside fn. Stop is idempotent.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.done
		t.logger.Debug().Msg("timer stopped")
	})
}

// Wait blocks until any in-flight run finishes.
func (t *Ticker) Wait() {
	t.inflight.Wait()
}

func (t *Ticker) run(ctx context.Context) {
	defer close(t.done)

	t.logger.Debug().Dur("interval", t.interval).Msg("timer started")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.fire(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fire(ctx)
		}
	}
}

func (t *Ticker) fire(ctx context.Context) {
	if !t.busy.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		t.logger.Debug().Msg("previous run still in flight, skipping tick")
		return
	}
	t.runs.Add(1)
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		defer t.busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error().Interface("panic", r).Msg("timer run panicked")
			}
		}()
		t.fn(ctx)
	}()
}
