package audiocore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(name string, priority uint32, enabled bool) *Adapter {
	config := testSourceConfig(name)
	config.Priority = priority
	config.Enabled = enabled
	handle := &fakeHandle{chunk: tone(160, 0.2), perReadGap: 5 * time.Millisecond}
	return NewAdapter(config, handle, NewBroadcastBus("adapter-bus-"+name, 10))
}

func TestControllerRegistry(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	c := NewController(bus)

	c.Add(newTestAdapter("one", 10, true))
	c.Add(newTestAdapter("two", 20, true))

	assert.Len(t, c.List(), 2)

	_, ok := c.Get("one")
	assert.True(t, ok)
	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Remove("one")
	assert.Len(t, c.List(), 1)
	_, ok = c.Get("one")
	assert.False(t, ok)
}

func TestActiveSourceSelection(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	c := NewController(bus)

	low := newTestAdapter("low-priority", 50, true)
	high := newTestAdapter("high-priority", 5, true)
	disabled := newTestAdapter("disabled", 1, false)

	c.Add(low)
	c.Add(high)
	c.Add(disabled)

	assert.Empty(t, c.ActiveSource(), "no running source yet")

	require.True(t, low.Start())
	require.True(t, waitForStatus(t, low, StatusRunning, 2*time.Second))
	assert.Equal(t, "low-priority", c.ActiveSource())

	// A running higher-priority source takes over.
	require.True(t, high.Start())
	require.True(t, waitForStatus(t, high, StatusRunning, 2*time.Second))
	assert.Equal(t, "high-priority", c.ActiveSource())

	// Disabled sources never win, whatever their priority.
	high.Stop()
	assert.Equal(t, "low-priority", c.ActiveSource())

	c.StopAll()
	assert.Empty(t, c.ActiveSource())
}

func TestActiveSourceTieBreaksByInsertionOrder(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	c := NewController(bus)

	first := newTestAdapter("first", 10, true)
	second := newTestAdapter("second", 10, true)
	c.Add(first)
	c.Add(second)

	require.True(t, first.Start())
	require.True(t, second.Start())
	require.True(t, waitForStatus(t, first, StatusRunning, 2*time.Second))
	require.True(t, waitForStatus(t, second, StatusRunning, 2*time.Second))

	assert.Equal(t, "first", c.ActiveSource())
	c.StopAll()
}

func TestStartAllSkipsDisabled(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	c := NewController(bus)

	enabled := newTestAdapter("enabled", 10, true)
	disabled := newTestAdapter("off", 10, false)
	c.Add(enabled)
	c.Add(disabled)

	c.StartAll()
	require.True(t, waitForStatus(t, enabled, StatusRunning, 2*time.Second))
	assert.Equal(t, StatusStopped, disabled.Status())

	c.StopAll()
}

func TestEnsureRunning(t *testing.T) {
	t.Parallel()

	bus := NewBroadcastBus("test-bus", 100)
	c := NewController(bus)

	adapter := newTestAdapter("watchdogged", 10, true)
	c.Add(adapter)

	assert.False(t, c.EnsureRunning("missing", "test"))

	// Stopped and enabled: ensure starts it.
	assert.True(t, c.EnsureRunning("watchdogged", "decoder watchdog"))
	require.True(t, waitForStatus(t, adapter, StatusRunning, 2*time.Second))

	// Already running: no-op success.
	assert.True(t, c.EnsureRunning("watchdogged", "decoder watchdog"))

	c.StopAll()

	disabled := newTestAdapter("disabled-source", 10, false)
	c.Add(disabled)
	assert.False(t, c.EnsureRunning("disabled-source", "test"))
}
