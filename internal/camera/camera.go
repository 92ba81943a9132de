// Package camera captures still images for upload.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/nfnt/resize"
)

// Device grabs one JPEG encoded frame.
type Device interface {
	Frame(ctx context.Context) ([]byte, error)
	Close() error
}

// CaptureError is a failed capture.
type CaptureError struct {
	Stage string
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Stage, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Pipeline turns a device frame into an in-memory image ready for upload.
type Pipeline struct {
	mu       sync.Mutex
	dev      Device
	maxWidth uint
	quality  int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMaxWidth downscales frames wider than w, keeping the aspect ratio. Zero
// leaves frames untouched.
func WithMaxWidth(w uint) PipelineOption {
	return func(p *Pipeline) { p.maxWidth = w }
}

// WithQuality sets the JPEG quality used when a frame is re-encoded.
func WithQuality(q int) PipelineOption {
	return func(p *Pipeline) { p.quality = q }
}

func NewPipeline(dev Device, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{dev: dev, quality: jpeg.DefaultQuality}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capture takes one still image and returns it positioned at its start.
func (p *Pipeline) Capture(ctx context.Context) (*bytes.Reader, error) {
	p.mu.Lock()
	frame, err := p.dev.Frame(ctx)
	p.mu.Unlock()
	if err != nil {
		return nil, &CaptureError{Stage: "frame", Err: err}
	}
	if len(frame) == 0 {
		return nil, &CaptureError{Stage: "frame", Err: fmt.Errorf("empty frame")}
	}

	if p.maxWidth == 0 {
		return bytes.NewReader(frame), nil
	}

	out, err := p.downscale(frame)
	if err != nil {
		return nil, &CaptureError{Stage: "resize", Err: err}
	}
	return bytes.NewReader(out), nil
}

func (p *Pipeline) downscale(frame []byte) ([]byte, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if uint(cfg.Width) <= p.maxWidth {
		return frame, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var scaled image.Image = resize.Resize(p.maxWidth, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the device.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Close()
}
