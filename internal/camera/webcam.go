package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blackjack/webcam"
)

// V4L2 fourcc for Motion-JPEG; each frame is a complete JPEG image.
const pixFmtMJPEG webcam.PixelFormat = 0x47504A4D

// frameTimeoutSeconds bounds a single WaitForFrame call.
const frameTimeoutSeconds = 5

// Webcam is a V4L2 video device streaming MJPEG frames.
type Webcam struct {
	mu     sync.Mutex
	cam    *webcam.Webcam
	path   string
	logger *slog.Logger
}

// OpenWebcam opens path, selects MJPEG at the requested size (the driver may pick the
// nearest supported size) and starts streaming.
func OpenWebcam(path string, width, height uint32, logger *slog.Logger) (*Webcam, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	formats := cam.GetSupportedFormats()
	if _, ok := formats[pixFmtMJPEG]; !ok {
		_ = cam.Close()
		return nil, fmt.Errorf("%s: MJPEG not supported (formats: %v)", path, formats)
	}

	_, w, h, err := cam.SetImageFormat(pixFmtMJPEG, width, height)
	if err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%s: set format: %w", path, err)
	}
	if err := cam.SetBufferCount(1); err != nil {
		logger.Debug("camera buffer count not applied", "device", path, "error", err)
	}
	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("%s: start streaming: %w", path, err)
	}

	logger.Info("camera opened", "device", path, "width", w, "height", h)
	return &Webcam{cam: cam, path: path, logger: logger}, nil
}

// Frame waits for and copies the next frame.
func (c *Webcam) Frame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := c.cam.WaitForFrame(frameTimeoutSeconds)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			return nil, fmt.Errorf("%s: timed out waiting for frame", c.path)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: wait for frame: %w", c.path, err)
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("%s: read frame: %w", c.path, err)
		}
		// Drivers occasionally hand back an empty buffer right after streaming starts.
		if len(frame) == 0 {
			continue
		}
		return append([]byte(nil), frame...), nil
	}
}

// Close stops streaming and closes the device.
func (c *Webcam) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stopErr := c.cam.StopStreaming()
	closeErr := c.cam.Close()
	return errors.Join(stopErr, closeErr)
}
