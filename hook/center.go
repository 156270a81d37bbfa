package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt stops the remaining handlers of a Trigger call.
var ErrInterrupt = errors.New("hook interrupted")

// Event names.
const (
	UserRegistered  = "user_registered"
	QuestProgressed = "quest_progressed"
	QuestCompleted  = "quest_completed"
	LevelUp         = "level_up"
)

// Fn handles one event. It may replace data for later handlers.
type Fn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type entry struct {
	priority int
	name     string
	fn       Fn
}

// Center dispatches events to registered handlers in priority order
// (lower first, registration order among equals).
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]entry
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{hooks: make(map[string][]entry)}
}

// Register adds fn for event. name identifies it for Unregister.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append(c.hooks[event], entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority < list[j].priority })
	c.hooks[event] = list
}

// Unregister removes every handler called name from event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.hooks[event][:0]
	for _, e := range c.hooks[event] {
		if e.name != name {
			kept = append(kept, e)
		}
	}
	c.hooks[event] = kept
}

// Count returns the number of handlers registered for event.
func (c *Center) Count(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[event])
}

// Trigger runs the handlers for event, threading data through them.
// A handler returning ErrInterrupt stops the chain and Trigger returns it.
// Other handler errors do not stop the chain; they are joined and returned.
func (c *Center) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	c.mu.RLock()
	list := make([]entry, len(c.hooks[event]))
	copy(list, c.hooks[event])
	c.mu.RUnlock()

	var errs []error
	for _, e := range list {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data = out
	}
	return data, errors.Join(errs...)
}
