// Package observer defines logging and metrics hooks for test execution.
package observer

import (
	"context"
	"time"

	"autotest/pkg/utils/logger"

	"go.uber.org/zap"
)

// MetricsRecorder records compile and run measurements.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, compiler string, ok bool, elapsed time.Duration, memoryKB int64)
	ObserveRun(ctx context.Context, label string, verdict string, elapsed time.Duration, memoryKB int64, outputBytes int64)
}

// NoopMetricsRecorder discards every observation.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(context.Context, string, bool, time.Duration, int64) {}

func (NoopMetricsRecorder) ObserveRun(context.Context, string, string, time.Duration, int64, int64) {}

// LogMetricsRecorder writes observations as debug log lines.
type LogMetricsRecorder struct{}

func (LogMetricsRecorder) ObserveCompile(ctx context.Context, compiler string, ok bool, elapsed time.Duration, memoryKB int64) {
	logger.Debug(ctx, "compile observed",
		zap.String("compiler", compiler),
		zap.Bool("ok", ok),
		zap.Duration("elapsed", elapsed),
		zap.Int64("memory_kb", memoryKB),
	)
}

func (LogMetricsRecorder) ObserveRun(ctx context.Context, label string, verdict string, elapsed time.Duration, memoryKB int64, outputBytes int64) {
	logger.Debug(ctx, "run observed",
		zap.String("label", label),
		zap.String("verdict", verdict),
		zap.Duration("elapsed", elapsed),
		zap.Int64("memory_kb", memoryKB),
		zap.Int64("output_bytes", outputBytes),
	)
}
