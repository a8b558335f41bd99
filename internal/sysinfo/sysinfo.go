// Package sysinfo describes the host the bridge runs on.
// The summary is returned by the status request so a UI can tell which
// device and OS build it is talking to.
package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo is a static summary of the host.
type HostInfo struct {
	// OS is the operating system name (linux, android)
	OS string `json:"os"`

	// Platform is the distribution or vendor build name
	Platform string `json:"platform"`

	// PlatformVersion is the OS release
	PlatformVersion string `json:"platformVersion"`

	// KernelVersion is the kernel version string
	KernelVersion string `json:"kernelVersion"`

	// Arch is the Go architecture (arm64, amd64) - matches binary arch
	Arch string `json:"arch"`

	// Hostname is the system hostname
	Hostname string `json:"hostname"`

	// Uptime in seconds
	Uptime uint64 `json:"uptime"`
}

// Collect gathers host information. Fields gopsutil cannot read on this
// platform are left empty rather than failing the whole call.
func Collect(ctx context.Context) (*HostInfo, error) {
	info := &HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	hostInfo, err := host.InfoWithContext(ctx)
	if err == nil {
		info.Platform = hostInfo.Platform
		info.PlatformVersion = hostInfo.PlatformVersion
		info.KernelVersion = hostInfo.KernelVersion
		info.Hostname = hostInfo.Hostname
		info.Uptime = hostInfo.Uptime
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return info, nil
}
