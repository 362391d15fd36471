package audiocore

import (
	"log/slog"
	"sync"

	"github.com/tphakala/alertstation/internal/logging"
)

// Controller is the registry and lifecycle manager for source adapters. It
// owns the shared broadcast bus all adapters publish into and selects the
// active source by priority. Active-source changes never disrupt the bus;
// downstream consumers see a continuous stream regardless of which adapter
// is currently preferred.
type Controller struct {
	bus *BroadcastBus

	mu           sync.RWMutex
	adapters     map[string]*Adapter
	order        []string // insertion order, stabilises priority ties
	activeSource string

	logger *slog.Logger
}

// NewController creates a controller around the given bus.
func NewController(bus *BroadcastBus) *Controller {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		bus:      bus,
		adapters: make(map[string]*Adapter),
		logger:   logger.With("component", "ingest_controller"),
	}
}

// Bus returns the shared broadcast bus.
func (c *Controller) Bus() *BroadcastBus {
	return c.bus
}

// Add registers an adapter under its configured name.
func (c *Controller) Add(adapter *Adapter) {
	c.mu.Lock()
	name := adapter.Name()
	if _, exists := c.adapters[name]; !exists {
		c.order = append(c.order, name)
	}
	c.adapters[name] = adapter
	c.mu.Unlock()

	c.logger.Info("source added", "source", name, "kind", adapter.Config().Kind)
}

// Remove stops and unregisters an adapter.
func (c *Controller) Remove(name string) {
	c.mu.Lock()
	adapter, exists := c.adapters[name]
	if exists {
		delete(c.adapters, name)
		for i, n := range c.order {
			if n == name {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		if c.activeSource == name {
			c.activeSource = ""
		}
	}
	c.mu.Unlock()

	if exists {
		adapter.Stop()
		c.logger.Info("source removed", "source", name)
	}
}

// Get returns the named adapter.
func (c *Controller) Get(name string) (*Adapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	adapter, ok := c.adapters[name]
	return adapter, ok
}

// List returns all adapters in registration order.
func (c *Controller) List() []*Adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Adapter, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.adapters[name])
	}
	return out
}

// Start starts the named source.
func (c *Controller) Start(name string) bool {
	adapter, ok := c.Get(name)
	if !ok {
		c.logger.Error("source not found", "source", name)
		return false
	}
	return adapter.Start()
}

// Stop stops the named source.
func (c *Controller) Stop(name string) {
	if adapter, ok := c.Get(name); ok {
		adapter.Stop()
	}
}

// StartAll starts every enabled source.
func (c *Controller) StartAll() {
	for _, adapter := range c.List() {
		if adapter.Config().Enabled {
			adapter.Start()
		}
	}
}

// StopAll stops every source.
func (c *Controller) StopAll() {
	for _, adapter := range c.List() {
		adapter.Stop()
	}
}

// ActiveSource returns the name of the highest-priority running enabled
// source, or empty when none qualifies. Ties resolve by registration
// order. A change of selection is logged but has no effect on the bus.
func (c *Controller) ActiveSource() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	best := ""
	var bestPriority uint32
	for _, name := range c.order {
		adapter := c.adapters[name]
		if !adapter.Config().Enabled || adapter.Status() != StatusRunning {
			continue
		}
		if best == "" || adapter.Config().Priority < bestPriority {
			best = name
			bestPriority = adapter.Config().Priority
		}
	}

	if best != "" && best != c.activeSource {
		c.activeSource = best
		c.logger.Info("switched active audio source", "source", best)
	}
	return best
}

// EnsureRunning requests a restart of the named source when it is enabled
// but not running. It returns true when the source was already running or
// a start or restart was launched.
func (c *Controller) EnsureRunning(name, reason string) bool {
	adapter, ok := c.Get(name)
	if !ok {
		c.logger.Error("ensure-running on unknown source", "source", name)
		return false
	}
	if !adapter.Config().Enabled {
		return false
	}
	if adapter.Status() == StatusRunning {
		return true
	}

	c.logger.Warn("source not running, restarting", "source", name, "reason", reason)
	if adapter.Status() == StatusStopped {
		return adapter.Start()
	}
	return adapter.Restart(reason)
}

// Cleanup stops everything and clears the registry.
func (c *Controller) Cleanup() {
	c.StopAll()
	c.mu.Lock()
	c.adapters = make(map[string]*Adapter)
	c.order = nil
	c.activeSource = ""
	c.mu.Unlock()
}
