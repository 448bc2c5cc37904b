package util

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo holds information about the host system. It is logged at
// startup and served by the monitor API's status endpoint.
type SystemInfo struct {
	Platform     string `json:"platform"`
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
}

// GetSystemInfo gathers host system information.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if hostInfo, err := host.Info(); err == nil {
		info.OS = hostInfo.Platform + " " + hostInfo.PlatformVersion
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
		info.CPUCores = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total / 1024 / 1024
	}

	return info
}

// MemoryUsage returns the current used/total memory of the host in MB.
func MemoryUsage() (used, total uint64) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0
	}
	return vm.Used / 1024 / 1024, vm.Total / 1024 / 1024
}

// CPUPercent returns the instantaneous system-wide CPU utilization.
func CPUPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}
