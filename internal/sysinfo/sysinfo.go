// Package sysinfo collects the host properties reported to the cloud after the
// desired configuration has been fetched.
package sysinfo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// hostInfo is replaced in tests.
var hostInfo = host.InfoWithContext

// Collect returns the reported property document for this machine.
func Collect(ctx context.Context, appName, version string) (map[string]any, error) {
	info, err := hostInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	return Properties(info, appName, version, time.Now()), nil
}

// Properties maps host info onto reported property names.
func Properties(info *host.InfoStat, appName, version string, now time.Time) map[string]any {
	zone, offset := now.Zone()
	osVersion := strings.TrimSpace(strings.Join([]string{info.Platform, info.PlatformVersion, info.KernelVersion}, " "))

	return map[string]any{
		"Timezone":           fmt.Sprintf("%s (UTC%+03d:%02d)", zone, offset/3600, abs(offset%3600)/60),
		"OSVersion":          osVersion,
		"MachineName":        info.Hostname,
		"ApplicationName":    appName,
		"ApplicationVersion": version,
		"SystemId":           strings.ToUpper(info.HostID),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
