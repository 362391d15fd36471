// Package gpio drives the transmitter relay through the Linux GPIO
// character device.
package gpio

import (
	"log/slog"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/tphakala/alertstation/internal/errors"
	"github.com/tphakala/alertstation/internal/logging"
)

// ComponentGPIO is the component tag used in enhanced errors.
const ComponentGPIO = "gpio"

// RelayController holds one requested GPIO output line and toggles it
// around alert playouts. Failures are surfaced to the caller, which treats
// them as non-fatal.
type RelayController struct {
	chip       string
	offset     int
	activeHigh bool

	mu   sync.Mutex
	line *gpiocdev.Line

	logger *slog.Logger
}

// NewRelayController requests the output line on the given chip. The line
// is driven to its inactive level immediately.
func NewRelayController(chip string, offset int, activeHigh bool) (*RelayController, error) {
	logger := logging.ForService("gpio")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relay", "chip", chip, "line", offset)

	c := &RelayController{
		chip:       chip,
		offset:     offset,
		activeHigh: activeHigh,
		logger:     logger,
	}

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(c.level(false)),
		gpiocdev.WithConsumer("alertstation-playout"))
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentGPIO).
			Category(errors.CategoryGPIO).
			Context("chip", chip).
			Context("line", offset).
			Build()
	}
	c.line = line

	logger.Info("relay line requested", "active_high", activeHigh)
	return c, nil
}

// level maps a logical state to the wire level.
func (c *RelayController) level(active bool) int {
	if active == c.activeHigh {
		return 1
	}
	return 0
}

// set drives the line to the given logical state.
func (c *RelayController) set(active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.line == nil {
		return errors.Newf("relay line is closed").
			Component(ComponentGPIO).
			Category(errors.CategoryGPIO).
			Context("chip", c.chip).
			Context("line", c.offset).
			Build()
	}

	if err := c.line.SetValue(c.level(active)); err != nil {
		return errors.New(err).
			Component(ComponentGPIO).
			Category(errors.CategoryGPIO).
			Context("chip", c.chip).
			Context("line", c.offset).
			Context("active", active).
			Build()
	}
	return nil
}

// Activate energises the relay.
func (c *RelayController) Activate() error {
	if err := c.set(true); err != nil {
		return err
	}
	c.logger.Info("relay activated")
	return nil
}

// Deactivate releases the relay.
func (c *RelayController) Deactivate() error {
	if err := c.set(false); err != nil {
		return err
	}
	c.logger.Info("relay deactivated")
	return nil
}

// Close releases the line, driving it inactive first.
func (c *RelayController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.line == nil {
		return nil
	}
	_ = c.line.SetValue(c.level(false))
	err := c.line.Close()
	c.line = nil
	return err
}
