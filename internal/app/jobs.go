package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"farmbeats-agent/internal/cloud"
	"farmbeats-agent/internal/scheduler"
	"farmbeats-agent/internal/types"
)

type sampler interface {
	Sample(ctx context.Context) (types.TelemetryRecord, error)
}

type capturer interface {
	Capture(ctx context.Context) (*bytes.Reader, error)
}

type uploader interface {
	Upload(ctx context.Context, deviceID string, image io.Reader) error
}

// SensorJob samples once, logs the readings and publishes the record. A failed
// publish is logged and dropped.
func SensorJob(s sampler, publisher *cloud.Publisher, logger *slog.Logger) scheduler.Job {
	return func(ctx context.Context) error {
		rec, err := s.Sample(ctx)
		if err != nil {
			return err
		}
		logger.Info("sensor readings", "reading", rec)
		publisher.PublishOrLog(ctx, rec)
		return nil
	}
}

// ImageJob captures one image and uploads it for deviceID.
func ImageJob(c capturer, u uploader, deviceID string, logger *slog.Logger) scheduler.Job {
	return func(ctx context.Context) error {
		img, err := c.Capture(ctx)
		if err != nil {
			return err
		}
		size := img.Size()
		if err := u.Upload(ctx, deviceID, img); err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		logger.Info("image uploaded", "bytes", size)
		return nil
	}
}
