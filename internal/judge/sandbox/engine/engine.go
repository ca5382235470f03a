package engine

import (
	"context"

	"autotest/internal/judge/sandbox/result"
	"autotest/internal/judge/sandbox/spec"
)

// Engine executes one RunSpec under resource limits.
//
// Failures of the program itself, including a command that cannot be
// started, are reported in the ExecutionResult. The error return is kept for
// faults of the engine such as pipe creation failing or a canceled context.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.ExecutionResult, error)
}

// Diagnostics appended to the child's stderr.
const (
	stdoutOverflowMessage = "\nError too much output - maximum stdout bytes of %d exceeded."
	wallClockMessage      = "Error: real time limit of %d seconds exceeded\n"
	cpuLimitMessage       = "Error: CPU limit of %d seconds exceeded\n"
	fileSizeMessage       = "Error: maximum file creation size of %d bytes exceeded\n"
)

// spawnErrorExit is the exit status reported with a spawn-error outcome.
const spawnErrorExit = 2
