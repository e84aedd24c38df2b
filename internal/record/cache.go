package record

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/field-survey/internal/model"
)

// Status is the state of one owner's cached list.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is a snapshot of one owner's list.
type Entry struct {
	Forms     []model.Form
	Status    Status
	Err       error
	FetchedAt time.Time
}

// Cache holds the last fetched list per owner. Concurrent misses for the same
// owner share one fetch. A fetch that started before an Invalidate does not
// overwrite the entry, so a list loaded before an insert never hides it.
type Cache struct {
	fetch func(ctx context.Context, ownerID string) ([]model.Form, error)
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]Entry
	gen     map[string]uint64
}

func NewCache(fetch func(ctx context.Context, ownerID string) ([]model.Form, error)) *Cache {
	return &Cache{
		fetch:   fetch,
		now:     time.Now,
		entries: make(map[string]Entry),
		gen:     make(map[string]uint64),
	}
}

// Load returns the cached list, fetching it on a miss. A failed fetch is
// recorded (see Peek) and retried on the next Load.
func (c *Cache) Load(ctx context.Context, ownerID string) (Entry, error) {
	c.mu.Lock()
	if e, ok := c.entries[ownerID]; ok && e.Status == StatusLoaded {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(ownerID, func() (any, error) {
		c.mu.Lock()
		startGen := c.gen[ownerID]
		c.mu.Unlock()

		forms, err := c.fetch(ctx, ownerID)
		e := Entry{Forms: forms, Status: StatusLoaded, FetchedAt: c.now()}
		if err != nil {
			e = Entry{Status: StatusFailed, Err: err, FetchedAt: c.now()}
		}
		if e.Forms == nil && err == nil {
			e.Forms = []model.Form{}
		}

		c.mu.Lock()
		if c.gen[ownerID] == startGen {
			c.entries[ownerID] = e
		}
		c.mu.Unlock()
		return e, err
	})
	if err != nil {
		return Entry{Status: StatusFailed, Err: err}, err
	}
	return v.(Entry), nil
}

// Peek returns the entry without fetching.
func (c *Cache) Peek(ownerID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ownerID]
	return e, ok
}

// Invalidate drops the owner's entry; the next Load fetches again.
func (c *Cache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[ownerID]++
	delete(c.entries, ownerID)
	// A fetch started before this call must not be joined by later loads.
	c.group.Forget(ownerID)
}
