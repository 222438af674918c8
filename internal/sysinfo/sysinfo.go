// Package sysinfo reads host telemetry for the safety monitor and the
// control surface.
package sysinfo

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"

	"github.com/oszuidwest/zwfm-recorder/internal/types"
	"github.com/oszuidwest/zwfm-recorder/internal/util"
)

// DiskFree returns free and total bytes for the filesystem containing path.
func DiskFree(path string) (free, total uint64, err error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, 0, util.WrapError("read disk usage", err)
	}
	return usage.Free, usage.Total, nil
}

// MemoryPercent returns system memory utilization.
func MemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, util.WrapError("read memory usage", err)
	}
	return vm.UsedPercent, nil
}

// CPUPercent returns system CPU utilization since the previous call.
// The first call returns 0.
func CPUPercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, util.WrapError("read cpu usage", err)
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// ProcessUsage returns CPU and resident memory for a single process.
func ProcessUsage(pid int) (cpuPercent float64, rssBytes uint64, err error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, 0, util.WrapError("open process", err)
	}
	cpuPercent, err = p.CPUPercent()
	if err != nil {
		return 0, 0, util.WrapError("read process cpu", err)
	}
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return cpuPercent, 0, util.WrapError("read process memory", err)
	}
	return cpuPercent, memInfo.RSS, nil
}

// Describe collects a host summary for the control surface. Individual
// probe failures leave their fields zero instead of failing the summary.
func Describe(outputDir string) types.SystemInfo {
	info := types.SystemInfo{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
	}

	if hi, err := host.Info(); err == nil {
		info.PlatformVersion = hi.PlatformVersion
		info.UptimeSeconds = hi.Uptime
	}
	if n, err := cpu.Counts(true); err == nil {
		info.CPUCount = n
	}
	if p, err := CPUPercent(); err == nil {
		info.CPUPercent = p
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalBytes = vm.Total
		info.MemoryUsedPercent = vm.UsedPercent
	}
	if usage, err := disk.Usage(outputDir); err == nil {
		info.DiskTotalBytes = usage.Total
		info.DiskFreeBytes = usage.Free
	}
	return info
}
