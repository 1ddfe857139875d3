// Package metrics collects host resource usage for the dashboard's system
// view. Long-running tenant audits are resource-hungry; operators want to
// see whether the box is keeping up.
package metrics

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics represents current system resource usage.
type SystemMetrics struct {
	CPUPercent  float64     `json:"cpu_percent"`
	CPUCores    int         `json:"cpu_cores"`
	Memory      MemoryUsage `json:"memory"`
	Disk        DiskUsage   `json:"disk"`
	Uptime      int64       `json:"uptime_seconds"`
	LoadAverage []float64   `json:"load_avg"`
}

// MemoryUsage represents memory usage information.
type MemoryUsage struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage represents usage of the volume holding the given path.
type DiskUsage struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// Collect gathers current host metrics. diskPath selects which volume to
// report, normally the scripts root. Individual collector failures leave
// their section zeroed rather than failing the whole snapshot.
func Collect(diskPath string) *SystemMetrics {
	m := &SystemMetrics{}

	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		m.CPUPercent = percents[0]
	}
	if cores, err := cpu.Counts(true); err == nil {
		m.CPUCores = cores
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		m.Memory = MemoryUsage{Total: vm.Total, Used: vm.Used, UsedPercent: vm.UsedPercent}
	}
	if du, err := disk.Usage(diskPath); err == nil {
		m.Disk = DiskUsage{Path: diskPath, Total: du.Total, Used: du.Used, UsedPercent: du.UsedPercent}
	}
	if uptime, err := host.Uptime(); err == nil {
		m.Uptime = int64(uptime)
	}
	if avg, err := load.Avg(); err == nil {
		m.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	return m
}
