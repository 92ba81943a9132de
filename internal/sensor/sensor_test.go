package sensor

import (
	"context"
	"errors"
	"math"
	"testing"

	"periph.io/x/conn/v3/physic"

	"farmbeats-agent/internal/hat"
	"farmbeats-agent/internal/types"
)

type fakeAir struct {
	env physic.Env
	err error
}

func (f *fakeAir) Sense(env *physic.Env) error {
	if f.err != nil {
		return f.err
	}
	*env = f.env
	return nil
}

type fakeAnalog struct {
	values map[hat.Channel]float64
	fail   map[hat.Channel]error
	reads  []hat.Channel
}

func (f *fakeAnalog) ReadScaled(_ context.Context, ch hat.Channel) (float64, error) {
	f.reads = append(f.reads, ch)
	if err := f.fail[ch]; err != nil {
		return 0, err
	}
	return f.values[ch], nil
}

func goodAir() *fakeAir {
	return &fakeAir{env: physic.Env{
		Temperature: physic.ZeroCelsius + 20*physic.Celsius,
		Humidity:    55 * physic.PercentRH,
		Pressure:    101 * physic.KiloPascal,
	}}
}

func goodAnalog() *fakeAnalog {
	return &fakeAnalog{
		values: map[hat.Channel]float64{
			LightChannel:         12.5,
			SoilMoisture1Channel: 40.1,
			SoilMoisture2Channel: 60.2,
		},
		fail: map[hat.Channel]error{},
	}
}

func TestSample_Success(t *testing.T) {
	s := NewSampler(goodAir(), goodAnalog())

	got, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample() error = %v, want nil", err)
	}

	if got.AirTemperatureC != 20 {
		t.Errorf("AirTemperatureC = %v; want 20", got.AirTemperatureC)
	}
	if math.Abs(got.AirTemperatureF-68) > 1e-3 {
		t.Errorf("AirTemperatureF = %v; want 68", got.AirTemperatureF)
	}
	if got.AirHumidity != 55 {
		t.Errorf("AirHumidity = %v; want 55", got.AirHumidity)
	}
	if got.AirPressureKPa != 101 {
		t.Errorf("AirPressureKPa = %v; want 101", got.AirPressureKPa)
	}
	if got.Light != 12.5 || got.SoilMoisture1 != 40.1 || got.SoilMoisture2 != 60.2 {
		t.Errorf("analog values = %v/%v/%v; want 12.5/40.1/60.2", got.Light, got.SoilMoisture1, got.SoilMoisture2)
	}
}

func TestSample_AtomicOnFailure(t *testing.T) {
	busErr := errors.New("i2c nack")

	tests := []struct {
		name        string
		air         *fakeAir
		failChannel hat.Channel
		failAnalog  bool
		wantChannel string
	}{
		{name: "air sensor", air: &fakeAir{err: busErr}, wantChannel: "air"},
		{name: "light", air: goodAir(), failChannel: LightChannel, failAnalog: true, wantChannel: "light/A0"},
		{name: "soil1", air: goodAir(), failChannel: SoilMoisture1Channel, failAnalog: true, wantChannel: "soil1/A2"},
		{name: "soil2", air: goodAir(), failChannel: SoilMoisture2Channel, failAnalog: true, wantChannel: "soil2/A4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analog := goodAnalog()
			if tt.failAnalog {
				analog.fail[tt.failChannel] = busErr
			}
			s := NewSampler(tt.air, analog)

			got, err := s.Sample(context.Background())
			if got != (types.TelemetryRecord{}) {
				t.Errorf("Sample() record = %+v; want zero record", got)
			}
			if !errors.Is(err, busErr) {
				t.Fatalf("Sample() error = %v; want wrapped %v", err, busErr)
			}
			var se *SamplingError
			if !errors.As(err, &se) {
				t.Fatalf("Sample() error type = %T; want *SamplingError", err)
			}
			if se.Channel != tt.wantChannel {
				t.Errorf("SamplingError.Channel = %q; want %q", se.Channel, tt.wantChannel)
			}
		})
	}
}

func TestSample_IndependentRecords(t *testing.T) {
	analog := goodAnalog()
	s := NewSampler(goodAir(), analog)

	first, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	analog.values[LightChannel] = 99.9
	second, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	if first.Light != 12.5 {
		t.Errorf("first.Light = %v; want 12.5 (records must not share state)", first.Light)
	}
	if second.Light != 99.9 {
		t.Errorf("second.Light = %v; want 99.9", second.Light)
	}
	if len(analog.reads) != 6 {
		t.Errorf("analog reads = %d; want 6", len(analog.reads))
	}
}
