package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/models"
)

// WatchOptions tunes a Watcher
type WatchOptions struct {
	// OnReconnect runs after a subscription was re-established following an
	// interruption. Events published during the gap are lost, so callers
	// re-fetch whatever state the watcher feeds.
	OnReconnect func(ctx context.Context)

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (o *WatchOptions) defaults() {
	if o.MinBackoff <= 0 {
		o.MinBackoff = 250 * time.Millisecond
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 10 * time.Second
	}
}

// Watcher keeps a subscription alive until stopped, resubscribing after
// transport errors.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Watch subscribes to f and calls handle for every event on a dedicated
// goroutine. The initial subscribe is synchronous so setup errors reach the
// caller.
func Watch(ctx context.Context, b Broker, f Filter, handle func(models.ChangeEvent), opts WatchOptions) (*Watcher, error) {
	opts.defaults()

	sub, err := b.Subscribe(ctx, f)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{cancel: cancel, done: make(chan struct{})}

	go w.run(wctx, b, f, sub, handle, opts)
	return w, nil
}

// Stop unsubscribes and waits for the delivery goroutine to exit. It must
// not be called from inside the handler.
func (w *Watcher) Stop() {
	w.once.Do(w.cancel)
	<-w.done
}

func (w *Watcher) run(ctx context.Context, b Broker, f Filter, sub *Subscription, handle func(models.ChangeEvent), opts WatchOptions) {
	defer close(w.done)

	for {
		if !w.drain(ctx, sub, handle) {
			return
		}

		log.Warn("Subscription to %s interrupted: %v", f.Table, sub.Err())
		sub = w.resubscribe(ctx, b, f, opts)
		if sub == nil {
			return
		}
		metrics.Resubscribed()
		if opts.OnReconnect != nil {
			opts.OnReconnect(ctx)
		}
	}
}

// drain delivers events until the subscription ends. It returns false when
// the watcher should exit.
func (w *Watcher) drain(ctx context.Context, sub *Subscription, handle func(models.ChangeEvent)) bool {
	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return false
		case ev, ok := <-sub.Events():
			if !ok {
				return sub.Err() != nil && ctx.Err() == nil
			}
			metrics.RealtimeEvent(string(ev.Table))
			handle(ev)
		}
	}
}

func (w *Watcher) resubscribe(ctx context.Context, b Broker, f Filter, opts WatchOptions) *Subscription {
	backoff := opts.MinBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		sub, err := b.Subscribe(ctx, f)
		if err == nil {
			log.Info("Resubscribed to %s", f.Table)
			return sub
		}
		log.Warn("Resubscribe to %s failed: %v", f.Table, err)

		backoff *= 2
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}
}
