//go:build !linux

package engine

import (
	"context"
	"fmt"

	"autotest/internal/judge/sandbox/result"
	"autotest/internal/judge/sandbox/spec"
)

type stubEngine struct{}

// NewEngine creates a runner that fails every run on this platform.
func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.ExecutionResult, error) {
	return result.ExecutionResult{}, fmt.Errorf("process runner is only supported on linux")
}
