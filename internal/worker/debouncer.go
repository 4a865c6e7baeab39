// Package worker runs the booking pipeline for inbound conversations.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const defaultDebounceDelay = 15 * time.Second

type pendingTask struct {
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
	fn     func(context.Context)
}

// Debouncer delays work per key. Scheduling a key that already has pending
// work cancels and replaces it, so a burst of messages is processed once.
// Work for the same key never runs concurrently.
type Debouncer struct {
	delay  time.Duration
	logger *logging.Logger

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pendingTask
	locks   map[string]*keyLock
	closed  bool
	wg      sync.WaitGroup
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewDebouncer(delay time.Duration, logger *logging.Logger) *Debouncer {
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Debouncer{
		delay:   delay,
		logger:  logger,
		base:    base,
		stop:    stop,
		pending: make(map[string]*pendingTask),
		locks:   make(map[string]*keyLock),
	}
}

// Schedule runs fn after the delay unless key is scheduled again first. It
// returns false once the debouncer is shut down.
func (d *Debouncer) Schedule(key string, fn func(context.Context)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
		prev.cancel()
		d.logger.Debug("debounce replaced pending task", "key", key)
	}
	ctx, cancel := context.WithCancel(d.base)
	t := &pendingTask{ctx: ctx, cancel: cancel, fn: fn}
	t.timer = time.AfterFunc(d.delay, func() { d.fire(key, t) })
	d.pending[key] = t
	return true
}

// Pending reports how many keys are waiting for their delay.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) fire(key string, t *pendingTask) {
	d.mu.Lock()
	if cur, ok := d.pending[key]; !ok || cur != t {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.wg.Add(1)
	d.mu.Unlock()
	d.run(key, t)
}

func (d *Debouncer) run(key string, t *pendingTask) {
	defer d.wg.Done()
	defer t.cancel()

	lock := d.acquire(key)
	defer d.release(key, lock)
	if t.ctx.Err() != nil {
		return
	}
	t.fn(t.ctx)
}

func (d *Debouncer) acquire(key string) *keyLock {
	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &keyLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()
	l.mu.Lock()
	return l
}

func (d *Debouncer) release(key string, l *keyLock) {
	l.mu.Unlock()
	d.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(d.locks, key)
	}
	d.mu.Unlock()
}

// Shutdown runs every pending task immediately and waits for all work to
// finish. If ctx expires first, running tasks are cancelled.
func (d *Debouncer) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for key, t := range d.pending {
			t.timer.Stop()
			delete(d.pending, key)
			d.wg.Add(1)
			go d.run(key, t)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.stop()
		return nil
	case <-ctx.Done():
		d.stop()
		return ctx.Err()
	}
}
