package types

// DeviceStatus reports the enablement state of one peripheral. Only the field of the
// peripheral being reported is set.
type DeviceStatus struct {
	SensorHubStatus string `json:"sensorHubStatus,omitempty"`
	CameraStatus    string `json:"cameraStatus,omitempty"`
}

// DeviceEvent marks a lifecycle or manual trigger event.
type DeviceEvent struct {
	ApplicationStarted  bool `json:"applicationStarted,omitempty"`
	SensorUpdateManual  bool `json:"sensorUpdateManual,omitempty"`
	ImageUpdateManual   bool `json:"imageUpdateManual,omitempty"`
	DeviceRestartManual bool `json:"deviceRestartManual,omitempty"`
}
