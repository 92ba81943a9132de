// Package upload posts captured images to the image ingestion endpoint.
package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// DeviceIDPlaceholder is replaced by the path-escaped device id in the URL template.
const DeviceIDPlaceholder = "{deviceId}"

type Client struct {
	http        *http.Client
	urlTemplate string
	logger      *slog.Logger
}

func NewClient(httpClient *http.Client, urlTemplate string, logger *slog.Logger) *Client {
	return &Client{http: httpClient, urlTemplate: urlTemplate, logger: logger}
}

// Upload streams image to the endpoint for deviceID. Only the status code is checked.
func (c *Client) Upload(ctx context.Context, deviceID string, image io.Reader) error {
	target := strings.ReplaceAll(c.urlTemplate, DeviceIDPlaceholder, url.PathEscape(deviceID))
	requestID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, image)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("image upload starting", "request_id", requestID)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload image: unexpected status %d", resp.StatusCode)
	}
	c.logger.Debug("image upload done", "request_id", requestID, "status", resp.StatusCode)
	return nil
}
