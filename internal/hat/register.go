// Package hat talks to the Grove Base Hat analog sensor hub over I2C.
//
// The hub exposes fixed registers: a one-byte device id and firmware version, the
// power supply voltage, and three banks of per-channel registers holding the raw ADC
// value, the input voltage in millivolts and a scaled value in tenths of a percent.
// Every register is read by writing its address byte and reading the response.
package hat

import (
	"errors"
	"fmt"
)

// DefaultAddress is the hub's I2C address.
const DefaultAddress = 0x04

// ExpectedDeviceID is the value of the device id register on a Grove Base Hat.
const ExpectedDeviceID byte = 0x04

// Address is a register opcode on the hub.
type Address byte

const (
	RegDeviceID           Address = 0x00
	RegVersion            Address = 0x02
	RegPowerSupplyVoltage Address = 0x29

	rawBase     Address = 0x10
	voltageBase Address = 0x20
	scaledBase  Address = 0x30
)

// Width is the response size of the register in bytes.
func (a Address) Width() int {
	switch a {
	case RegDeviceID, RegVersion:
		return 1
	default:
		return 2
	}
}

func (a Address) String() string {
	switch {
	case a == RegDeviceID:
		return "device_id"
	case a == RegVersion:
		return "version"
	case a == RegPowerSupplyVoltage:
		return "power_supply_voltage"
	case a >= rawBase && a <= rawBase+Address(MaxChannel):
		return fmt.Sprintf("raw(A%d)", a-rawBase)
	case a >= voltageBase && a <= voltageBase+Address(MaxChannel):
		return fmt.Sprintf("voltage(A%d)", a-voltageBase)
	case a >= scaledBase && a <= scaledBase+Address(MaxChannel):
		return fmt.Sprintf("scaled(A%d)", a-scaledBase)
	default:
		return fmt.Sprintf("0x%02X", byte(a))
	}
}

// Channel is an analog input port on the hub.
type Channel uint8

const (
	A0 Channel = iota
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	A8
)

// MaxChannel is the highest valid channel.
const MaxChannel = A8

// ErrInvalidChannel is returned for a channel outside A0..A8. No bus transaction is
// issued for it.
var ErrInvalidChannel = errors.New("hat: invalid channel")

func (c Channel) String() string {
	return fmt.Sprintf("A%d", uint8(c))
}

// Valid reports whether c is in A0..A8.
func (c Channel) Valid() bool {
	return c <= MaxChannel
}

// RawRegister returns the raw ADC register of ch.
func RawRegister(ch Channel) (Address, error) {
	return channelRegister(rawBase, ch)
}

// VoltageRegister returns the millivolt register of ch.
func VoltageRegister(ch Channel) (Address, error) {
	return channelRegister(voltageBase, ch)
}

// ScaledRegister returns the scaled (tenths of a percent) register of ch.
func ScaledRegister(ch Channel) (Address, error) {
	return channelRegister(scaledBase, ch)
}

func channelRegister(base Address, ch Channel) (Address, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, uint8(ch))
	}
	return base + Address(ch), nil
}
