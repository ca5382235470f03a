//go:build !linux

package engine

import (
	"context"
	"testing"

	"autotest/internal/judge/sandbox/spec"
)

func TestStubEngineRejectsRuns(t *testing.T) {
	eng, err := NewEngine(Config{})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	if _, err := eng.Run(context.Background(), spec.RunSpec{Cmd: []string{"true"}}); err == nil {
		t.Fatalf("expected an error off linux")
	}
}
