package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string
	LogLevel   slog.Level
	HealthAddr string

	DeviceID            string
	DiscoveryURL        string
	UploadURL           string
	DiscoveryRetryDelay time.Duration
	HTTPTimeout         time.Duration
	MQTTConnectTimeout  time.Duration
	TwinTimeout         time.Duration

	I2CBus        string
	HatAddress    uint16
	BME280Address uint16

	SensorDueTime  time.Duration
	ImageDueTime   time.Duration
	RestartDelay   time.Duration
	RestartCommand string

	CameraDevice  string
	CameraWidth   uint32
	CameraHeight  uint32
	ImageMaxWidth uint
}

// LoadDotEnv loads variables from path without overriding the environment. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	discoveryURL := strings.TrimSpace(os.Getenv("DISCOVERY_URL"))
	if discoveryURL == "" {
		return Config{}, errors.New("DISCOVERY_URL is required")
	}
	if !strings.Contains(discoveryURL, "{deviceId}") {
		return Config{}, fmt.Errorf("invalid DISCOVERY_URL %q: missing {deviceId} placeholder", discoveryURL)
	}

	uploadURL := strings.TrimSpace(os.Getenv("UPLOAD_URL"))

	cfg := Config{
		AppEnv:         appEnv,
		LogLevel:       level,
		HealthAddr:     strings.TrimSpace(os.Getenv("HEALTH_ADDR")),
		DeviceID:       strings.TrimSpace(os.Getenv("DEVICE_ID")),
		DiscoveryURL:   discoveryURL,
		UploadURL:      uploadURL,
		I2CBus:         strings.TrimSpace(os.Getenv("I2C_BUS")),
		RestartCommand: strings.TrimSpace(os.Getenv("RESTART_COMMAND")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"DISCOVERY_RETRY_DELAY", "30s", &cfg.DiscoveryRetryDelay},
		{"HTTP_TIMEOUT", "30s", &cfg.HTTPTimeout},
		{"MQTT_CONNECT_TIMEOUT", "10s", &cfg.MQTTConnectTimeout},
		{"TWIN_TIMEOUT", "10s", &cfg.TwinTimeout},
		{"SENSOR_DUE_TIME", "10s", &cfg.SensorDueTime},
		{"IMAGE_DUE_TIME", "15s", &cfg.ImageDueTime},
		{"RESTART_DELAY", "25s", &cfg.RestartDelay},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	if cfg.HatAddress, err = envAddress("HAT_ADDRESS", "0x04"); err != nil {
		return Config{}, err
	}
	if cfg.BME280Address, err = envAddress("BME280_ADDRESS", "0x76"); err != nil {
		return Config{}, err
	}

	cameraDevice := strings.TrimSpace(os.Getenv("CAMERA_DEVICE"))
	if cameraDevice == "" {
		cameraDevice = "/dev/video0"
	}
	cfg.CameraDevice = cameraDevice

	width, err := envUint("CAMERA_WIDTH", "1280", 32)
	if err != nil {
		return Config{}, err
	}
	height, err := envUint("CAMERA_HEIGHT", "720", 32)
	if err != nil {
		return Config{}, err
	}
	maxWidth, err := envUint("IMAGE_MAX_WIDTH", "0", 32)
	if err != nil {
		return Config{}, err
	}
	cfg.CameraWidth = uint32(width)
	cfg.CameraHeight = uint32(height)
	cfg.ImageMaxWidth = uint(maxWidth)

	return cfg, nil
}

func envDuration(key, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, d)
	}
	return d, nil
}

func envAddress(key, def string) (uint16, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	// 7-bit I2C addresses only.
	v, err := strconv.ParseUint(s, 0, 7)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return uint16(v), nil
}

func envUint(key, def string, bits int) (uint64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
