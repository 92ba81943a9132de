// Package board brings up the single-board computer's I2C bus.
package board

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// OpenI2C loads the host drivers and opens the named I2C bus ("" picks the first
// registered bus, usually /dev/i2c-1). The caller owns the returned bus and must
// close it.
func OpenI2C(name string) (i2c.BusCloser, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	for _, f := range state.Failed {
		slog.Debug("periph driver failed", "driver", f.D.String(), "error", f.Err)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	slog.Info("i2c bus opened", "bus", bus.String())
	return bus, nil
}

// Device returns the device at addr on bus.
func Device(bus i2c.Bus, addr uint16) *i2c.Dev {
	return &i2c.Dev{Bus: bus, Addr: addr}
}
