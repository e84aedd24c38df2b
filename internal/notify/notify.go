// Package notify is the transient message surface every workflow reports to.
//
// A Notification lives for DefaultTTL and then disappears on its own; the user
// may dismiss it earlier. Observers get a fresh snapshot of the active list on
// every change.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 3 * time.Second

type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
)

type Notification struct {
	ID        string
	Kind      Kind
	Message   string
	CreatedAt time.Time
}

// Sink is what workflows depend on. Notify returns the notification id.
type Sink interface {
	Notify(kind Kind, message string) string
}

var _ Sink = (*Center)(nil)

// stopper is the part of *time.Timer the Center needs.
type stopper interface {
	Stop() bool
}

// Center holds the active notifications.
type Center struct {
	mu        sync.Mutex
	active    []Notification
	timers    map[string]stopper
	observers map[int]func([]Notification)
	nextObs   int
	closed    bool

	ttl       time.Duration
	now       func() time.Time
	afterFunc func(time.Duration, func()) stopper
	logger    *slog.Logger
}

type Option func(*Center)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(c *Center) { c.ttl = d }
}

func NewCenter(logger *slog.Logger, opts ...Option) *Center {
	c := &Center{
		timers:    make(map[string]stopper),
		observers: make(map[int]func([]Notification)),
		ttl:       DefaultTTL,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify queues a message and schedules its expiry.
func (c *Center) Notify(kind Kind, message string) string {
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: c.now(),
	}
	c.Push(n)
	return n.ID
}

// Push queues a prepared notification. An empty ID gets a fresh one.
func (c *Center) Push(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.active = append(c.active, n)
	id := n.ID
	c.timers[id] = c.afterFunc(c.ttl, func() { c.expire(id) })
	snap, obs := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("notification", slog.String("kind", string(n.Kind)), slog.String("message", n.Message))
	publish(obs, snap)
}

// Dismiss removes a notification before it expires. It reports whether id was active.
func (c *Center) Dismiss(id string) bool {
	return c.remove(id, true)
}

func (c *Center) expire(id string) {
	c.remove(id, false)
}

func (c *Center) remove(id string, stopTimer bool) bool {
	c.mu.Lock()
	idx := -1
	for i, n := range c.active {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.active = append(c.active[:idx], c.active[idx+1:]...)
	if t, ok := c.timers[id]; ok {
		if stopTimer {
			t.Stop()
		}
		delete(c.timers, id)
	}
	snap, obs := c.snapshotLocked()
	c.mu.Unlock()

	publish(obs, snap)
	return true
}

// Active returns the visible notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.active...)
}

// Subscribe registers fn for every change and returns its unsubscribe func.
func (c *Center) Subscribe(fn func([]Notification)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Close stops every pending expiry timer. Later Notify calls are dropped.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.closed = true
}

// snapshotLocked copies state for publishing outside the lock. Caller holds mu.
func (c *Center) snapshotLocked() ([]Notification, []func([]Notification)) {
	snap := append([]Notification(nil), c.active...)
	obs := make([]func([]Notification), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	return snap, obs
}

func publish(obs []func([]Notification), snap []Notification) {
	for _, fn := range obs {
		fn(snap)
	}
}
