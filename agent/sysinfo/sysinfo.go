package sysinfo

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"fleetwatch/pkg/models"
)

// ForRegistration collects the static machine description sent once at
// registration time.
func ForRegistration() models.RegisterSystemInfo {
	info := models.RegisterSystemInfo{
		Platform:       runtime.GOOS,
		Arch:           runtime.GOARCH,
		RuntimeVersion: runtime.Version(),
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	return info
}

// ForHeartbeat collects the per-beat runtime snapshot. Collection failures
// degrade to zero values; a heartbeat is never aborted because a probe
// failed.
func ForHeartbeat(ctx context.Context, lastHeartbeatSuccess bool) *models.HeartbeatSystemInfo {
	info := &models.HeartbeatSystemInfo{
		Platform:             runtime.GOOS,
		Arch:                 runtime.GOARCH,
		RuntimeVersion:       runtime.Version(),
		LastHeartbeatSuccess: lastHeartbeatSuccess,
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		info.UptimeSeconds = uptime
	}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			info.MemoryUsage = mem.RSS
		}
	}

	return info
}
