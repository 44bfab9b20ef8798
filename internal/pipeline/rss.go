package pipeline

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// rssMonitor samples the resident set size of this process
type rssMonitor struct {
	process *process.Process
	peak    uint64
}

func newRSSMonitor() *rssMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &rssMonitor{}
	}
	return &rssMonitor{process: proc}
}

// sample reads the current RSS and returns the peak seen so far. Read
// failures keep the previous peak.
func (m *rssMonitor) sample() uint64 {
	if m.process == nil {
		return m.peak
	}
	memInfo, err := m.process.MemoryInfo()
	if err != nil {
		return m.peak
	}
	if memInfo.RSS > m.peak {
		m.peak = memInfo.RSS
	}
	return m.peak
}
