package sensor

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"

	"farmbeats-agent/internal/hat"
	"farmbeats-agent/internal/types"
)

// AirSensor measures temperature, humidity and pressure. *bmxx80.Dev satisfies it.
type AirSensor interface {
	Sense(env *physic.Env) error
}

// AnalogReader reads scaled analog channels. *hat.Client satisfies it.
type AnalogReader interface {
	ReadScaled(ctx context.Context, ch hat.Channel) (float64, error)
}

// Channel assignments on the hub.
const (
	LightChannel         = hat.A0
	SoilMoisture1Channel = hat.A2
	SoilMoisture2Channel = hat.A4
)

// SamplingError identifies the channel whose read aborted a sample.
type SamplingError struct {
	Channel string
	Err     error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("sample %s: %v", e.Channel, e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }

// Sampler reads every configured channel once per call.
type Sampler struct {
	airMu  sync.Mutex
	air    AirSensor
	analog AnalogReader
}

func NewSampler(air AirSensor, analog AnalogReader) *Sampler {
	return &Sampler{air: air, analog: analog}
}

// Sample returns a complete record, or the zero record and a *SamplingError if any
// read fails.
func (s *Sampler) Sample(ctx context.Context) (types.TelemetryRecord, error) {
	var env physic.Env
	s.airMu.Lock()
	err := s.air.Sense(&env)
	s.airMu.Unlock()
	if err != nil {
		return types.TelemetryRecord{}, &SamplingError{Channel: "air", Err: err}
	}

	light, err := s.analog.ReadScaled(ctx, LightChannel)
	if err != nil {
		return types.TelemetryRecord{}, &SamplingError{Channel: "light/" + LightChannel.String(), Err: err}
	}
	soil1, err := s.analog.ReadScaled(ctx, SoilMoisture1Channel)
	if err != nil {
		return types.TelemetryRecord{}, &SamplingError{Channel: "soil1/" + SoilMoisture1Channel.String(), Err: err}
	}
	soil2, err := s.analog.ReadScaled(ctx, SoilMoisture2Channel)
	if err != nil {
		return types.TelemetryRecord{}, &SamplingError{Channel: "soil2/" + SoilMoisture2Channel.String(), Err: err}
	}

	return types.TelemetryRecord{
		AirTemperatureC: env.Temperature.Celsius(),
		AirTemperatureF: env.Temperature.Fahrenheit(),
		// env.Humidity is fixed point at 0.00001 %rH.
		AirHumidity:    float64(env.Humidity) / float64(physic.PercentRH),
		AirPressureKPa: float64(env.Pressure) / float64(physic.KiloPascal),
		Light:          light,
		SoilMoisture1:  soil1,
		SoilMoisture2:  soil2,
	}, nil
}
