// Package discovery resolves the device identity and looks up its cloud connection
// descriptor from the autodiscovery service.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DeviceIDPlaceholder is replaced by the path-escaped device id in the URL template.
const DeviceIDPlaceholder = "{deviceId}"

// ErrNotFound means the service has no connection descriptor for the device.
var ErrNotFound = errors.New("discovery: device not found")

// Result is the autodiscovery response body.
type Result struct {
	ConnectionString string `json:"connectionString"`
}

// Client queries the autodiscovery service.
type Client struct {
	http        *http.Client
	urlTemplate string
}

func NewClient(httpClient *http.Client, urlTemplate string) *Client {
	return &Client{http: httpClient, urlTemplate: urlTemplate}
}

// Lookup returns the connection descriptor registered for deviceID.
func (c *Client) Lookup(ctx context.Context, deviceID string) (string, error) {
	target := strings.ReplaceAll(c.urlTemplate, DeviceIDPlaceholder, url.PathEscape(deviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery request: unexpected status %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res); err != nil {
		return "", fmt.Errorf("decode discovery response: %w", err)
	}
	descriptor := strings.TrimSpace(res.ConnectionString)
	if descriptor == "" {
		return "", ErrNotFound
	}
	return descriptor, nil
}

// MachineIDPath holds the systemd machine id used as the default device id.
var MachineIDPath = "/etc/machine-id"

// DeviceID returns override when set, otherwise the machine id, otherwise the hostname.
func DeviceID(override string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}
	if b, err := os.ReadFile(MachineIDPath); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve device id: %w", err)
	}
	if host == "" {
		return "", errors.New("resolve device id: empty hostname")
	}
	return host, nil
}

// Identity is the resolved device id and its connection descriptor.
type Identity struct {
	DeviceID   string
	Descriptor string
}

// Resolve retries identify and lookup with a constant delay until both succeed or ctx
// is done. It is the only unbounded retry in the agent.
func Resolve(
	ctx context.Context,
	identify func() (string, error),
	lookup func(ctx context.Context, deviceID string) (string, error),
	delay time.Duration,
	logger *slog.Logger,
) (Identity, error) {
	var id Identity
	op := func() error {
		deviceID, err := identify()
		if err != nil {
			return err
		}
		descriptor, err := lookup(ctx, deviceID)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", deviceID, err)
		}
		id = Identity{DeviceID: deviceID, Descriptor: descriptor}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Error("autodiscovery failed", "error", err, "retry_in", next)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(delay), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return Identity{}, err
	}
	logger.Info("device settings retrieved", "device_id", id.DeviceID)
	return id, nil
}
