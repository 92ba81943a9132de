package hat

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"farmbeats-agent/internal/utils"
)

// Conn is a write-then-read transaction on one I2C device. *i2c.Dev from
// periph.io/x/conn/v3/i2c satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// ErrUnexpectedDevice is returned by New when the device id register does not hold
// ExpectedDeviceID.
var ErrUnexpectedDevice = errors.New("hat: unexpected device")

// UnexpectedDeviceError carries the id that was read.
type UnexpectedDeviceError struct {
	Got byte
}

func (e *UnexpectedDeviceError) Error() string {
	return fmt.Sprintf("hat: unexpected device id 0x%02X (want 0x%02X)", e.Got, ExpectedDeviceID)
}

func (e *UnexpectedDeviceError) Is(target error) bool {
	return target == ErrUnexpectedDevice
}

// BusError is a failed register transaction.
type BusError struct {
	Address Address
	Err     error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("hat: read %s: %v", e.Address, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// Client reads registers from an identified hub. All transactions on the
// underlying Conn are serialized.
type Client struct {
	mu     sync.Mutex
	conn   Conn
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for per-register debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New checks the device id register and returns a client only if the hub answers
// with ExpectedDeviceID.
func New(ctx context.Context, conn Conn, opts ...Option) (*Client, error) {
	c := &Client{conn: conn, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	buf, err := c.ReadRegister(ctx, RegDeviceID)
	if err != nil {
		return nil, err
	}
	if buf[0] != ExpectedDeviceID {
		return nil, &UnexpectedDeviceError{Got: buf[0]}
	}
	c.logger.Debug("hat identified", "device_id", utils.Hex2(buf[0]))
	return c, nil
}

// ReadRegister writes addr and reads addr.Width() bytes back.
func (c *Client) ReadRegister(ctx context.Context, addr Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &BusError{Address: addr, Err: err}
	}

	r := make([]byte, addr.Width())

	c.mu.Lock()
	err := c.conn.Tx([]byte{byte(addr)}, r)
	c.mu.Unlock()
	if err != nil {
		return nil, &BusError{Address: addr, Err: err}
	}

	c.logger.Debug("hat register read", "register", addr.String(), "data", utils.BytesToHex(r))
	return r, nil
}

// Version returns the hub firmware version.
func (c *Client) Version(ctx context.Context) (byte, error) {
	buf, err := c.ReadRegister(ctx, RegVersion)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// PowerSupplyVoltage returns the hub supply voltage in volts.
func (c *Client) PowerSupplyVoltage(ctx context.Context) (float64, error) {
	raw, err := c.readWord(ctx, RegPowerSupplyVoltage)
	if err != nil {
		return 0, err
	}
	return Volts(raw), nil
}

// ReadRaw returns the raw ADC value of ch.
func (c *Client) ReadRaw(ctx context.Context, ch Channel) (uint16, error) {
	addr, err := RawRegister(ch)
	if err != nil {
		return 0, err
	}
	return c.readWord(ctx, addr)
}

// ReadVoltage returns the input voltage of ch in volts.
func (c *Client) ReadVoltage(ctx context.Context, ch Channel) (float64, error) {
	addr, err := VoltageRegister(ch)
	if err != nil {
		return 0, err
	}
	raw, err := c.readWord(ctx, addr)
	if err != nil {
		return 0, err
	}
	return Volts(raw), nil
}

// ReadScaled returns the value of ch scaled to 0..100.
func (c *Client) ReadScaled(ctx context.Context, ch Channel) (float64, error) {
	addr, err := ScaledRegister(ch)
	if err != nil {
		return 0, err
	}
	raw, err := c.readWord(ctx, addr)
	if err != nil {
		return 0, err
	}
	return Scaled(raw), nil
}

func (c *Client) readWord(ctx context.Context, addr Address) (uint16, error) {
	buf, err := c.ReadRegister(ctx, addr)
	if err != nil {
		return 0, err
	}
	return DecodeRaw(buf)
}

// DecodeRaw decodes a two byte little-endian register response.
func DecodeRaw(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("hat: register response has %d bytes, want 2", len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Volts converts a millivolt register value to volts.
func Volts(raw uint16) float64 {
	return float64(raw) / 1000.0
}

// Scaled converts a tenths-of-a-percent register value to 0..100.
func Scaled(raw uint16) float64 {
	return float64(raw) / 10.0
}
