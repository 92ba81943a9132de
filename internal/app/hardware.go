package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/bmxx80"

	"farmbeats-agent/internal/board"
	"farmbeats-agent/internal/camera"
	"farmbeats-agent/internal/cloud"
	"farmbeats-agent/internal/config"
	"farmbeats-agent/internal/feature"
	"farmbeats-agent/internal/hat"
	"farmbeats-agent/internal/scheduler"
	"farmbeats-agent/internal/sensor"
	"farmbeats-agent/internal/types"
	"farmbeats-agent/internal/upload"
	"farmbeats-agent/internal/utils"
)

// Desired configuration keys and remote commands of the managed peripherals.
const (
	KeySensorInstalled = "GroveBaseHatForRPIInstalled"
	KeySensorPeriod    = "SensorUpdatePeriod"
	KeyCameraInstalled = "CameraInstalled"
	KeyImagePeriod     = "ImageUpdatePeriod"

	MethodSensorUpdate = "SensorUpdate"
	MethodImageUpdate  = "ImageUpdate"
)

// Hardware opens the sensor hub and camera on first use and closes them on Close.
type Hardware struct {
	cfg    config.Config
	http   *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	bus     i2c.BusCloser
	closers []func() error
}

var _ PeripheralSet = (*Hardware)(nil)

func NewHardware(cfg config.Config, httpClient *http.Client, logger *slog.Logger) *Hardware {
	return &Hardware{cfg: cfg, http: httpClient, logger: logger}
}

// Peripherals returns the sensor hub and camera, in that order.
func (h *Hardware) Peripherals(deviceID string, publisher *cloud.Publisher) []feature.Peripheral {
	return []feature.Peripheral{
		{
			Name:         "sensor",
			InstalledKey: KeySensorInstalled,
			PeriodKey:    KeySensorPeriod,
			Command:      MethodSensorUpdate,
			DueTime:      h.cfg.SensorDueTime,
			Init: func(ctx context.Context) (scheduler.Job, error) {
				return h.initSensor(ctx, publisher)
			},
			ManualEvent: types.DeviceEvent{SensorUpdateManual: true},
			Report: func(s feature.State) types.DeviceStatus {
				return types.DeviceStatus{SensorHubStatus: s.String()}
			},
		},
		{
			Name:         "camera",
			InstalledKey: KeyCameraInstalled,
			PeriodKey:    KeyImagePeriod,
			Command:      MethodImageUpdate,
			DueTime:      h.cfg.ImageDueTime,
			Init: func(ctx context.Context) (scheduler.Job, error) {
				return h.initCamera(deviceID)
			},
			ManualEvent: types.DeviceEvent{ImageUpdateManual: true},
			Report: func(s feature.State) types.DeviceStatus {
				return types.DeviceStatus{CameraStatus: s.String()}
			},
		},
	}
}

func (h *Hardware) initSensor(ctx context.Context, publisher *cloud.Publisher) (scheduler.Job, error) {
	logger := h.logger.With("peripheral", "sensor")

	bus, err := h.openBus()
	if err != nil {
		return nil, err
	}

	client, err := hat.New(ctx, board.Device(bus, h.cfg.HatAddress), hat.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("grove base hat at %s: %w", utils.Hex2(byte(h.cfg.HatAddress)), err)
	}
	if version, err := client.Version(ctx); err != nil {
		logger.Warn("read hat firmware version failed", "error", err)
	} else {
		logger.Info("grove base hat firmware", "version", version)
	}

	air, err := bmxx80.NewI2C(bus, h.cfg.BME280Address, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bme280 at %s: %w", utils.Hex2(byte(h.cfg.BME280Address)), err)
	}
	h.track(air.Halt)

	return SensorJob(sensor.NewSampler(air, client), publisher, logger), nil
}

func (h *Hardware) initCamera(deviceID string) (scheduler.Job, error) {
	logger := h.logger.With("peripheral", "camera")

	if h.cfg.UploadURL == "" {
		return nil, errors.New("camera: UPLOAD_URL not set")
	}

	cam, err := camera.OpenWebcam(h.cfg.CameraDevice, h.cfg.CameraWidth, h.cfg.CameraHeight, logger)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	pipeline := camera.NewPipeline(cam, camera.WithMaxWidth(h.cfg.ImageMaxWidth))
	h.track(pipeline.Close)

	uploads := upload.NewClient(h.http, h.cfg.UploadURL, logger)
	return ImageJob(pipeline, uploads, deviceID, logger), nil
}

func (h *Hardware) openBus() (i2c.Bus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bus != nil {
		return h.bus, nil
	}
	bus, err := board.OpenI2C(h.cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	h.bus = bus
	return bus, nil
}

func (h *Hardware) track(closer func() error) {
	h.mu.Lock()
	h.closers = append(h.closers, closer)
	h.mu.Unlock()
}

// Close releases devices in reverse order of acquisition, then the bus.
func (h *Hardware) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	for i := len(h.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.closers[i]())
	}
	h.closers = nil
	if h.bus != nil {
		err = multierr.Append(err, h.bus.Close())
		h.bus = nil
	}
	return err
}
