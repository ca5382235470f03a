//go:build linux

package initproc

import (
	"errors"
	"fmt"
	"syscall"

	"autotest/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

// rlimitSetting is one resource to limit. applyZero marks resources where zero
// is a real ceiling rather than "unlimited".
type rlimitSetting struct {
	name      string
	resource  int
	value     int64
	applyZero bool
}

// rlimitSettings lists the limits to apply. The soft limit is the configured
// value and the hard limit one above it, so the kernel sends SIGXCPU or SIGXFSZ
// before it has to kill outright.
func rlimitSettings(limits spec.Limits) []rlimitSetting {
	settings := []rlimitSetting{
		{name: "cpu", resource: unix.RLIMIT_CPU, value: limits.CPUSeconds},
		{name: "core", resource: unix.RLIMIT_CORE, value: limits.CoreBytes, applyZero: true},
		{name: "fsize", resource: unix.RLIMIT_FSIZE, value: limits.FileSizeBytes},
		{name: "stack", resource: unix.RLIMIT_STACK, value: limits.StackBytes},
		{name: "rss", resource: unix.RLIMIT_RSS, value: limits.RSSBytes},
		{name: "nproc", resource: unix.RLIMIT_NPROC, value: limits.Processes},
	}
	if limits.OpenFiles > 0 {
		settings = append(settings, rlimitSetting{name: "nofile", resource: unix.RLIMIT_NOFILE, value: limits.OpenFiles + 1})
	}
	return settings
}

func applyRlimits(limits spec.Limits) error {
	for _, s := range rlimitSettings(limits) {
		if s.value < 0 || s.value == 0 && !s.applyZero {
			continue
		}
		if err := setRlimit(s.resource, uint64(s.value)); err != nil {
			return fmt.Errorf("set rlimit %s: %w", s.name, err)
		}
	}
	return nil
}

func setRlimit(resource int, value uint64) error {
	want := unix.Rlimit{Cur: value, Max: value + 1}
	err := setrlimit(resource, &want)
	if err == nil || !errors.Is(err, unix.EPERM) {
		return err
	}
	// Raising the hard limit needs privilege; stay under the inherited one.
	var cur unix.Rlimit
	if gerr := unix.Getrlimit(resource, &cur); gerr != nil {
		return err
	}
	clamped := unix.Rlimit{Cur: min(value, cur.Max), Max: min(value+1, cur.Max)}
	return setrlimit(resource, &clamped)
}

func setrlimit(resource int, rl *unix.Rlimit) error {
	if resource == unix.RLIMIT_NOFILE {
		// syscall.Setrlimit also clears the runtime's saved NOFILE value,
		// which syscall.Exec would otherwise restore in the target.
		return syscall.Setrlimit(resource, &syscall.Rlimit{Cur: rl.Cur, Max: rl.Max})
	}
	return unix.Setrlimit(resource, rl)
}
