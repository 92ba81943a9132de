package hat

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeConn struct {
	mu        sync.Mutex
	registers map[Address][]byte
	failOn    map[Address]error
	writes    [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		registers: map[Address][]byte{RegDeviceID: {ExpectedDeviceID}},
		failOn:    map[Address]error{},
	}
}

func (f *fakeConn) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), w...))
	addr := Address(w[0])
	if err := f.failOn[addr]; err != nil {
		return err
	}
	copy(r, f.registers[addr])
	return nil
}

func (f *fakeConn) txCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func TestNew_IdentityCheck(t *testing.T) {
	t.Run("accepts expected device id", func(t *testing.T) {
		conn := newFakeConn()
		c, err := New(context.Background(), conn)
		if err != nil {
			t.Fatalf("New() error = %v, want nil", err)
		}
		if c == nil {
			t.Fatal("New() returned nil client")
		}
		if len(conn.writes) != 1 || conn.writes[0][0] != byte(RegDeviceID) {
			t.Errorf("writes = %v; want single device id read", conn.writes)
		}
	})

	t.Run("rejects unexpected device id", func(t *testing.T) {
		conn := newFakeConn()
		conn.registers[RegDeviceID] = []byte{0x77}

		c, err := New(context.Background(), conn)
		if c != nil {
			t.Errorf("New() client = %v; want nil", c)
		}
		if !errors.Is(err, ErrUnexpectedDevice) {
			t.Fatalf("New() error = %v; want ErrUnexpectedDevice", err)
		}
		var ude *UnexpectedDeviceError
		if !errors.As(err, &ude) || ude.Got != 0x77 {
			t.Errorf("UnexpectedDeviceError = %+v; want Got 0x77", ude)
		}
	})

	t.Run("surfaces bus failure", func(t *testing.T) {
		conn := newFakeConn()
		busErr := errors.New("nack")
		conn.failOn[RegDeviceID] = busErr

		_, err := New(context.Background(), conn)
		if !errors.Is(err, busErr) {
			t.Fatalf("New() error = %v; want wrapped %v", err, busErr)
		}
		var be *BusError
		if !errors.As(err, &be) || be.Address != RegDeviceID {
			t.Errorf("BusError = %+v; want address %v", be, RegDeviceID)
		}
	})
}

func TestReadRegister_Widths(t *testing.T) {
	tests := []struct {
		addr  Address
		width int
	}{
		{RegDeviceID, 1},
		{RegVersion, 1},
		{RegPowerSupplyVoltage, 2},
		{rawBase, 2},
		{voltageBase + 8, 2},
		{scaledBase + 4, 2},
	}
	c, err := New(context.Background(), newFakeConn())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.addr.String(), func(t *testing.T) {
			got, err := c.ReadRegister(context.Background(), tt.addr)
			if err != nil {
				t.Fatalf("ReadRegister() error = %v", err)
			}
			if len(got) != tt.width {
				t.Errorf("len = %d; want %d", len(got), tt.width)
			}
		})
	}
}

func TestDecoding_AllChannels(t *testing.T) {
	conn := newFakeConn()
	for ch := A0; ch <= MaxChannel; ch++ {
		raw := uint16(1000 + int(ch)*111)
		lo, hi := byte(raw), byte(raw>>8)
		conn.registers[rawBase+Address(ch)] = []byte{lo, hi}
		conn.registers[voltageBase+Address(ch)] = []byte{lo, hi}
		conn.registers[scaledBase+Address(ch)] = []byte{lo, hi}
	}
	c, err := New(context.Background(), conn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	for ch := A0; ch <= MaxChannel; ch++ {
		raw := uint16(1000 + int(ch)*111)

		gotRaw, err := c.ReadRaw(ctx, ch)
		if err != nil {
			t.Fatalf("ReadRaw(%v) error = %v", ch, err)
		}
		if gotRaw != raw {
			t.Errorf("ReadRaw(%v) = %d; want %d", ch, gotRaw, raw)
		}

		gotV, err := c.ReadVoltage(ctx, ch)
		if err != nil {
			t.Fatalf("ReadVoltage(%v) error = %v", ch, err)
		}
		if want := float64(raw) / 1000.0; gotV != want {
			t.Errorf("ReadVoltage(%v) = %v; want %v", ch, gotV, want)
		}

		gotS, err := c.ReadScaled(ctx, ch)
		if err != nil {
			t.Fatalf("ReadScaled(%v) error = %v", ch, err)
		}
		if want := float64(raw) / 10.0; gotS != want {
			t.Errorf("ReadScaled(%v) = %v; want %v", ch, gotS, want)
		}
	}
}

func TestPowerSupplyVoltageAndVersion(t *testing.T) {
	conn := newFakeConn()
	conn.registers[RegPowerSupplyVoltage] = []byte{0xE4, 0x0C} // 3300 mV
	conn.registers[RegVersion] = []byte{0x03}
	c, err := New(context.Background(), conn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	v, err := c.PowerSupplyVoltage(context.Background())
	if err != nil {
		t.Fatalf("PowerSupplyVoltage() error = %v", err)
	}
	if v != 3.3 {
		t.Errorf("PowerSupplyVoltage() = %v; want 3.3", v)
	}

	ver, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if ver != 0x03 {
		t.Errorf("Version() = %d; want 3", ver)
	}
}

func TestInvalidChannel_NoTransaction(t *testing.T) {
	conn := newFakeConn()
	c, err := New(context.Background(), conn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	before := conn.txCount()

	if _, err := c.ReadScaled(context.Background(), Channel(9)); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("ReadScaled(9) error = %v; want ErrInvalidChannel", err)
	}
	if _, err := c.ReadRaw(context.Background(), Channel(200)); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("ReadRaw(200) error = %v; want ErrInvalidChannel", err)
	}
	if _, err := c.ReadVoltage(context.Background(), Channel(9)); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("ReadVoltage(9) error = %v; want ErrInvalidChannel", err)
	}
	if got := conn.txCount(); got != before {
		t.Errorf("transactions = %d; want %d (none issued for invalid channels)", got, before)
	}
}

func TestReadRegister_CanceledContext(t *testing.T) {
	conn := newFakeConn()
	c, err := New(context.Background(), conn)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.ReadRegister(ctx, RegVersion); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadRegister() error = %v; want context.Canceled", err)
	}
}

func TestDecodeRaw(t *testing.T) {
	got, err := DecodeRaw([]byte{0x34, 0x12})
	if err != nil {
		t.Fatalf("DecodeRaw() error = %v", err)
	}
	if got != 0x1234 {
		t.Errorf("DecodeRaw() = %#x; want 0x1234", got)
	}
	if _, err := DecodeRaw([]byte{0x01}); err == nil {
		t.Error("DecodeRaw(short) error = nil; want non-nil")
	}
}
