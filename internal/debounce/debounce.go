// Package debounce absorbs duplicate webhook deliveries and duplicate
// rendered notifications. Providers document at-least-once delivery and in
// practice post the same event several times within seconds.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Outcome reports what happened to a debounced call.
type Outcome int

const (
	// Skipped means the key was fully processed recently and the call did
	// not run.
	Skipped Outcome = iota
	// Ran means the call ran.
	Ran
)

type keyState struct {
	mu            sync.Mutex
	lastProcessed time.Time
	inflight      int
}

// Debouncer serializes work per fingerprint key and skips keys that were
// fully processed within the event window. A second gate suppresses exact
// duplicate notification texts within a shorter content window.
//
// State is bounded: a janitor evicts idle entries once their window has
// passed. Close stops the janitor.
type Debouncer struct {
	eventWindow   time.Duration
	contentWindow time.Duration
	now           func() time.Time

	mu   sync.Mutex
	keys map[string]*keyState

	contentMu sync.Mutex
	contents  map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures optional behaviour for the Debouncer.
type Option func(*Debouncer)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Debouncer) {
		d.now = now
	}
}

// New constructs a Debouncer with the given event and content windows.
func New(eventWindow, contentWindow time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{
		eventWindow:   eventWindow,
		contentWindow: contentWindow,
		now:           time.Now,
		keys:          make(map[string]*keyState),
		contents:      make(map[string]time.Time),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.janitor()
	return d
}

// Do runs fn unless the key was fully processed within the event window.
//
// The key's lock is held for the whole check-run-record sequence, so two
// concurrent calls for the same key cannot both observe "unseen"; calls for
// unrelated keys do not block each other. The key is recorded as processed
// only when fn returns processed=true, matching provider redelivery
// behaviour: an ineffective run leaves the window open for the next attempt.
func (d *Debouncer) Do(ctx context.Context, key string, fn func(context.Context) (processed bool, err error)) (Outcome, error) {
	state := d.acquire(key)
	defer d.release(key, state)

	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.lastProcessed.IsZero() && d.now().Sub(state.lastProcessed) < d.eventWindow {
		return Skipped, nil
	}

	processed, err := fn(ctx)
	if processed {
		state.lastProcessed = d.now()
	}
	if err != nil {
		return Ran, err
	}
	return Ran, nil
}

// SuppressContent records the rendered text and reports whether an identical
// text was already sent within the content window. Check-and-set runs under
// one lock so racing senders cannot both pass.
func (d *Debouncer) SuppressContent(text string) bool {
	d.contentMu.Lock()
	defer d.contentMu.Unlock()

	now := d.now()
	if sentAt, ok := d.contents[text]; ok && now.Sub(sentAt) < d.contentWindow {
		return true
	}
	d.contents[text] = now
	return false
}

// Close stops the janitor goroutine.
func (d *Debouncer) Close() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	<-d.done
}

func (d *Debouncer) acquire(key string) *keyState {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.keys[key]
	if !ok {
		state = &keyState{}
		d.keys[key] = state
	}
	state.inflight++
	return state
}

func (d *Debouncer) release(key string, state *keyState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state.inflight--
}

func (d *Debouncer) janitor() {
	defer close(d.done)

	interval := d.eventWindow
	if d.contentWindow < interval {
		interval = d.contentWindow
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Debouncer) sweep() {
	now := d.now()

	d.mu.Lock()
	for key, state := range d.keys {
		if state.inflight == 0 && now.Sub(state.lastProcessed) >= d.eventWindow {
			delete(d.keys, key)
		}
	}
	d.mu.Unlock()

	d.contentMu.Lock()
	for text, sentAt := range d.contents {
		if now.Sub(sentAt) >= d.contentWindow {
			delete(d.contents, text)
		}
	}
	d.contentMu.Unlock()
}
