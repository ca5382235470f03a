//go:build linux

package engine

import (
	"os"
	"syscall"
	"time"
)

func cpuTime(state *os.ProcessState) time.Duration {
	if state == nil {
		return 0
	}
	return state.UserTime() + state.SystemTime()
}

// maxRSSKB prefers the cgroup peak, which includes descendants.
func maxRSSKB(state *os.ProcessState, cg *runCgroup) int64 {
	if peak := cg.memoryPeakKB(); peak > 0 {
		return peak
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}
