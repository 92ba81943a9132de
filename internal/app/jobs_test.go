package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"farmbeats-agent/internal/cloud"
	"farmbeats-agent/internal/types"
)

type recordingSender struct {
	sent []string
}

func (r *recordingSender) Send(_ context.Context, payload []byte) error {
	r.sent = append(r.sent, string(payload))
	return nil
}

type stubSampler struct {
	rec types.TelemetryRecord
	err error
}

func (s stubSampler) Sample(context.Context) (types.TelemetryRecord, error) {
	return s.rec, s.err
}

type stubCapturer struct {
	img []byte
	err error
}

func (s stubCapturer) Capture(context.Context) (*bytes.Reader, error) {
	if s.err != nil {
		return nil, s.err
	}
	return bytes.NewReader(s.img), nil
}

type recordingUploader struct {
	deviceID string
	body     []byte
	err      error
}

func (u *recordingUploader) Upload(_ context.Context, deviceID string, image io.Reader) error {
	if u.err != nil {
		return u.err
	}
	u.deviceID = deviceID
	b, err := io.ReadAll(image)
	u.body = b
	return err
}

func TestSensorJob(t *testing.T) {
	t.Run("publishes the record", func(t *testing.T) {
		sender := &recordingSender{}
		rec := types.TelemetryRecord{AirTemperatureC: 20, AirTemperatureF: 68, Light: 12.5}
		job := SensorJob(stubSampler{rec: rec}, cloud.NewPublisher(sender, slog.Default()), slog.Default())

		if err := job(context.Background()); err != nil {
			t.Fatalf("job() error = %v", err)
		}
		if len(sender.sent) != 1 {
			t.Fatalf("sent %d messages; want 1", len(sender.sent))
		}
		want := `{"airTemperatureC":20,"airTemperatureF":68,"airHumidity":0,"airPressureKPa":0,"light":12.5,"soilMoisture1":0,"soilMoisture2":0}`
		if sender.sent[0] != want {
			t.Errorf("payload = %s; want %s", sender.sent[0], want)
		}
	})

	t.Run("sampling error publishes nothing", func(t *testing.T) {
		sender := &recordingSender{}
		sampleErr := errors.New("sample soil1/A2: nack")
		job := SensorJob(stubSampler{err: sampleErr}, cloud.NewPublisher(sender, slog.Default()), slog.Default())

		if err := job(context.Background()); !errors.Is(err, sampleErr) {
			t.Errorf("job() error = %v; want %v", err, sampleErr)
		}
		if len(sender.sent) != 0 {
			t.Errorf("sent %v; want nothing", sender.sent)
		}
	})
}

func TestImageJob(t *testing.T) {
	t.Run("uploads the capture", func(t *testing.T) {
		up := &recordingUploader{}
		job := ImageJob(stubCapturer{img: []byte{0xFF, 0xD8, 0xFF, 0xD9}}, up, "pi-1", slog.Default())

		if err := job(context.Background()); err != nil {
			t.Fatalf("job() error = %v", err)
		}
		if up.deviceID != "pi-1" || !bytes.Equal(up.body, []byte{0xFF, 0xD8, 0xFF, 0xD9}) {
			t.Errorf("uploaded %q for %q", up.body, up.deviceID)
		}
	})

	t.Run("capture error skips upload", func(t *testing.T) {
		up := &recordingUploader{}
		captureErr := errors.New("capture: empty frame")
		job := ImageJob(stubCapturer{err: captureErr}, up, "pi-1", slog.Default())

		if err := job(context.Background()); !errors.Is(err, captureErr) {
			t.Errorf("job() error = %v; want %v", err, captureErr)
		}
		if up.body != nil {
			t.Error("upload called after capture error")
		}
	})

	t.Run("upload error surfaces", func(t *testing.T) {
		uploadErr := errors.New("status 503")
		job := ImageJob(stubCapturer{img: []byte{1}}, &recordingUploader{err: uploadErr}, "pi-1", slog.Default())

		if err := job(context.Background()); !errors.Is(err, uploadErr) {
			t.Errorf("job() error = %v; want %v", err, uploadErr)
		}
	})
}
