package types

import "log/slog"

// TelemetryRecord is one complete sample of the air sensor and the analog channels.
// It is built once per sample and handed to the publisher by value.
type TelemetryRecord struct {
	AirTemperatureC float64 `json:"airTemperatureC"`
	AirTemperatureF float64 `json:"airTemperatureF"`
	AirHumidity     float64 `json:"airHumidity"`
	AirPressureKPa  float64 `json:"airPressureKPa"`
	Light           float64 `json:"light"`
	SoilMoisture1   float64 `json:"soilMoisture1"`
	SoilMoisture2   float64 `json:"soilMoisture2"`
}

// LogValue implements slog.LogValuer so a record logs as a flat group.
func (r TelemetryRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("C", r.AirTemperatureC),
		slog.Float64("F", r.AirTemperatureF),
		slog.Float64("H", r.AirHumidity),
		slog.Float64("P_kPa", r.AirPressureKPa),
		slog.Float64("L", r.Light),
		slog.Float64("soil1", r.SoilMoisture1),
		slog.Float64("soil2", r.SoilMoisture2),
	)
}
