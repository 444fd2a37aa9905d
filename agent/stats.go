package agent

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"screenrelay/pkg/protocol"
)

// collectStats gathers host stats for a heartbeat. Failures leave the
// affected field at zero; a heartbeat with partial stats still counts as
// liveness.
func collectStats() *protocol.AgentStats {
	stats := &protocol.AgentStats{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if hostname, err := os.Hostname(); err == nil {
		stats.Hostname = hostname
	}
	if percents, err := cpu.Percent(time.Second, false); err == nil && len(percents) > 0 {
		stats.CPUUsage = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsage = vm.UsedPercent
	}
	if uptime, err := host.Uptime(); err == nil {
		stats.Uptime = int64(uptime)
	}

	return stats
}
