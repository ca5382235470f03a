package model

import "autotest/internal/judge/sandbox/spec"

// Built-in limit defaults.
const (
	DefaultCPUSeconds    int64 = 60
	DefaultCoreBytes     int64 = 0
	DefaultStackBytes    int64 = 32000000
	DefaultRSSBytes      int64 = 100000000
	DefaultFileSizeBytes int64 = 8192000
	DefaultProcesses     int64 = 4096
	DefaultOpenFiles     int64 = 256

	// realSecondsFactor derives the wall-clock limit from the CPU limit.
	realSecondsFactor = 20

	outputCapCeiling = 10000000
	outputCapFloor   = 10000
)

// LimitParams holds the limit parameters as written in a suite or config.
// A nil field is unset and falls back to the next layer of defaults.
type LimitParams struct {
	MaxCPUSeconds    *int64 `yaml:"maxCpuSeconds" cbor:"maxCpuSeconds,omitempty"`
	MaxRealSeconds   *int64 `yaml:"maxRealSeconds" cbor:"maxRealSeconds,omitempty"`
	MaxCoreSize      *int64 `yaml:"maxCoreSize" cbor:"maxCoreSize,omitempty"`
	MaxStackBytes    *int64 `yaml:"maxStackBytes" cbor:"maxStackBytes,omitempty"`
	MaxRSSBytes      *int64 `yaml:"maxRssBytes" cbor:"maxRssBytes,omitempty"`
	MaxFileSizeBytes *int64 `yaml:"maxFileSizeBytes" cbor:"maxFileSizeBytes,omitempty"`
	MaxProcesses     *int64 `yaml:"maxProcesses" cbor:"maxProcesses,omitempty"`
	MaxOpenFiles     *int64 `yaml:"maxOpenFiles" cbor:"maxOpenFiles,omitempty"`
	MaxStdoutBytes   *int64 `yaml:"maxStdoutBytes" cbor:"maxStdoutBytes,omitempty"`
	MaxStderrBytes   *int64 `yaml:"maxStderrBytes" cbor:"maxStderrBytes,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Merge returns p with every unset field taken from base.
func (p LimitParams) Merge(base LimitParams) LimitParams {
	pick := func(own, fallback *int64) *int64 {
		if own != nil {
			return Int64(*own)
		}
		if fallback != nil {
			return Int64(*fallback)
		}
		return nil
	}
	return LimitParams{
		MaxCPUSeconds:    pick(p.MaxCPUSeconds, base.MaxCPUSeconds),
		MaxRealSeconds:   pick(p.MaxRealSeconds, base.MaxRealSeconds),
		MaxCoreSize:      pick(p.MaxCoreSize, base.MaxCoreSize),
		MaxStackBytes:    pick(p.MaxStackBytes, base.MaxStackBytes),
		MaxRSSBytes:      pick(p.MaxRSSBytes, base.MaxRSSBytes),
		MaxFileSizeBytes: pick(p.MaxFileSizeBytes, base.MaxFileSizeBytes),
		MaxProcesses:     pick(p.MaxProcesses, base.MaxProcesses),
		MaxOpenFiles:     pick(p.MaxOpenFiles, base.MaxOpenFiles),
		MaxStdoutBytes:   pick(p.MaxStdoutBytes, base.MaxStdoutBytes),
		MaxStderrBytes:   pick(p.MaxStderrBytes, base.MaxStderrBytes),
	}
}

// Finalize computes the concrete limits for a test expecting the given output sizes.
func (p LimitParams) Finalize(expectedStdoutLen, expectedStderrLen int) spec.Limits {
	value := func(v *int64, def int64) int64 {
		if v == nil {
			return def
		}
		return *v
	}
	cpu := value(p.MaxCPUSeconds, DefaultCPUSeconds)
	return spec.Limits{
		CPUSeconds:    cpu,
		RealSeconds:   value(p.MaxRealSeconds, realSecondsFactor*cpu),
		CoreBytes:     value(p.MaxCoreSize, DefaultCoreBytes),
		StackBytes:    value(p.MaxStackBytes, DefaultStackBytes),
		RSSBytes:      value(p.MaxRSSBytes, DefaultRSSBytes),
		FileSizeBytes: value(p.MaxFileSizeBytes, DefaultFileSizeBytes),
		Processes:     value(p.MaxProcesses, DefaultProcesses),
		OpenFiles:     value(p.MaxOpenFiles, DefaultOpenFiles),
		StdoutBytes:   outputCap(p.MaxStdoutBytes, int64(expectedStdoutLen)),
		StderrBytes:   outputCap(p.MaxStderrBytes, int64(expectedStderrLen)),
	}
}

// outputCap never lets the cap fall below the expected output size.
func outputCap(configured *int64, expected int64) int64 {
	if configured != nil {
		return max(expected, *configured)
	}
	return max(min(outputCapCeiling, 10*expected), outputCapFloor, 2*expected)
}
