// Package filter selects which bus transactions reach the session machine.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"firestige.xyz/sahara/internal/core"
)

// Filter decides whether a transaction belongs to the session.
type Filter interface {
	Accept(tx core.Transaction) bool
}

// DeviceFilter accepts transactions of one USB device.
type DeviceFilter struct {
	Bus    uint16
	Device uint16
}

func (f DeviceFilter) Accept(tx core.Transaction) bool {
	return tx.Bus == f.Bus && tx.Device == f.Device
}

func (f DeviceFilter) String() string {
	return fmt.Sprintf("%d:%d", f.Bus, f.Device)
}

// ParseDevice parses "bus:device", e.g. "1:7". An empty string yields nil.
func ParseDevice(s string) (*DeviceFilter, error) {
	if s == "" {
		return nil, nil
	}
	busStr, devStr, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid device %q (want bus:device)", s)
	}
	bus, err := strconv.ParseUint(busStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid bus in %q: %w", s, err)
	}
	dev, err := strconv.ParseUint(devStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid device address in %q: %w", s, err)
	}
	return &DeviceFilter{Bus: uint16(bus), Device: uint16(dev)}, nil
}
