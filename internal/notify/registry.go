package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const defaultBuffer = 16

type subscriber struct {
	tenantID string
	ch       chan Event
}

// Registry holds live subscriber channels. A subscriber registered with an
// empty tenant id receives every tenant's events.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	buffer int
	logger *logging.Logger
}

func NewRegistry(buffer int, logger *logging.Logger) *Registry {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		subs:   make(map[string]*subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new channel for tenantID's events.
func (r *Registry) Subscribe(tenantID string) (string, <-chan Event) {
	id := uuid.NewString()
	sub := &subscriber{tenantID: tenantID, ch: make(chan Event, r.buffer)}
	r.mu.Lock()
	r.subs[id] = sub
	r.mu.Unlock()
	return id, sub.ch
}

// Unsubscribe removes and closes the channel. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Len returns the number of live subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Publish offers ev to every matching subscriber without blocking. A
// subscriber whose buffer is full misses the event.
func (r *Registry) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, sub := range r.subs {
		if sub.tenantID != "" && sub.tenantID != ev.TenantID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			r.logger.Warn("dropping event for slow subscriber",
				"subscriber_id", id,
				"tenant_id", ev.TenantID,
				"event", string(ev.Type),
			)
		}
	}
	return nil
}
