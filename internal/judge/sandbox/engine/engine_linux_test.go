//go:build linux

package engine

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"autotest/internal/judge/sandbox/initproc"
	"autotest/internal/judge/sandbox/result"
	"autotest/internal/judge/sandbox/spec"
	appErr "autotest/pkg/errors"
)

func TestMain(m *testing.M) {
	initproc.MaybeRun()
	os.Exit(m.Run())
}

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	eng, err := NewEngine(Config{})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	return eng
}

func TestLinuxEngineRun(t *testing.T) {
	eng := newTestEngine(t)

	cases := []struct {
		name    string
		runSpec func(t *testing.T) spec.RunSpec
		maxWall time.Duration
		verify  func(t *testing.T, res result.ExecutionResult)
	}{
		{
			name: "stdin_echo",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{Cmd: []string{"cat"}, Stdin: []byte("hello\n"), WorkDir: t.TempDir()}
			},
			verify: func(t *testing.T, res result.ExecutionResult) {
				if string(res.Stdout) != "hello\n" || res.ExitCode != 0 || res.Outcome != result.OutcomeNormal {
					t.Fatalf("unexpected result: stdout=%q exit=%d outcome=%s", res.Stdout, res.ExitCode, res.Outcome)
				}
			},
		},
		{
			name: "no_stdin_reads_eof",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{Cmd: []string{"cat"}, Limits: spec.Limits{RealSeconds: 5}}
			},
			maxWall: 4 * time.Second,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if len(res.Stdout) != 0 || res.Outcome != result.OutcomeNormal {
					t.Fatalf("cat without stdin should exit immediately: %+v", res)
				}
			},
		},
		{
			name: "exit_code_and_stderr",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd: spec.ShellCommand(`echo "$GREETING" >&2; exit 3`),
					Env: []string{"GREETING=bonjour"},
				}
			},
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.ExitCode != 3 {
					t.Fatalf("exit code = %d, want 3", res.ExitCode)
				}
				if string(res.Stderr) != "bonjour\n" {
					t.Fatalf("stderr = %q", res.Stderr)
				}
			},
		},
		{
			name: "stdout_cap",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{Cmd: []string{"yes"}, Limits: spec.Limits{StdoutBytes: 1000, RealSeconds: 10}}
			},
			maxWall: 5 * time.Second,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if !res.StdoutTruncated || len(res.Stdout) != 1000 {
					t.Fatalf("expected stdout truncated to 1000 bytes, got %d truncated=%v", len(res.Stdout), res.StdoutTruncated)
				}
				if !strings.Contains(string(res.Stderr), "maximum stdout bytes of 1000 exceeded") {
					t.Fatalf("missing overflow diagnostic: %q", res.Stderr)
				}
				if res.Outcome != result.OutcomeNormal {
					t.Fatalf("outcome = %s", res.Outcome)
				}
			},
		},
		{
			name: "stdout_cap_after_exit",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{Cmd: []string{"head", "-c", "5000", "/dev/zero"}, Limits: spec.Limits{StdoutBytes: 1000}}
			},
			verify: func(t *testing.T, res result.ExecutionResult) {
				if !res.StdoutTruncated || len(res.Stdout) != 1000 || res.ExitCode != 0 {
					t.Fatalf("unexpected result: len=%d truncated=%v exit=%d", len(res.Stdout), res.StdoutTruncated, res.ExitCode)
				}
				if !strings.Contains(string(res.Stderr), "maximum stdout bytes of 1000 exceeded") {
					t.Fatalf("missing overflow diagnostic: %q", res.Stderr)
				}
			},
		},
		{
			name: "wall_clock_kills_signal_ignoring_child",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd:    spec.ShellCommand(`trap "" TERM INT HUP; sleep 30`),
					Limits: spec.Limits{RealSeconds: 1},
				}
			},
			maxWall: 5 * time.Second,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeWallClock {
					t.Fatalf("outcome = %s, want wall-clock", res.Outcome)
				}
				if !strings.Contains(string(res.Stderr), "real time limit of 1 seconds exceeded") {
					t.Fatalf("missing wall-clock diagnostic: %q", res.Stderr)
				}
			},
		},
		{
			name: "background_grandchild_killed",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd:    spec.ShellCommand(`sleep 30 & sleep 30`),
					Limits: spec.Limits{RealSeconds: 1},
				}
			},
			maxWall: 5 * time.Second,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeWallClock {
					t.Fatalf("outcome = %s, want wall-clock", res.Outcome)
				}
			},
		},
		{
			name: "exit_with_background_child",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd:    spec.ShellCommand(`sleep 3 & echo hi`),
					Limits: spec.Limits{RealSeconds: 1},
				}
			},
			maxWall: 2500 * time.Millisecond,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeNormal || res.ExitCode != 0 {
					t.Fatalf("outcome = %s exit = %d, want normal exit 0", res.Outcome, res.ExitCode)
				}
				if string(res.Stdout) != "hi\n" {
					t.Fatalf("stdout = %q", res.Stdout)
				}
				if strings.Contains(string(res.Stderr), "real time limit") {
					t.Fatalf("unexpected wall-clock diagnostic: %q", res.Stderr)
				}
			},
		},
		{
			name: "cpu_limit",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd:     spec.ShellCommand(`while :; do :; done`),
					WorkDir: t.TempDir(),
					Limits:  spec.Limits{CPUSeconds: 1, RealSeconds: 20},
				}
			},
			maxWall: 6 * time.Second,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeCPULimit {
					t.Fatalf("outcome = %s, want cpu-limit", res.Outcome)
				}
				if !strings.Contains(string(res.Stderr), "CPU limit of 1 seconds exceeded") {
					t.Fatalf("missing cpu diagnostic: %q", res.Stderr)
				}
			},
		},
		{
			name: "file_size_limit",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd:     []string{"dd", "if=/dev/zero", "of=big", "bs=1000", "count=100"},
					WorkDir: t.TempDir(),
					Limits:  spec.Limits{FileSizeBytes: 4096},
				}
			},
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeFileSize {
					t.Fatalf("outcome = %s, want file-size", res.Outcome)
				}
				if !strings.Contains(string(res.Stderr), "maximum file creation size of 4096 bytes exceeded") {
					t.Fatalf("missing file size diagnostic: %q", res.Stderr)
				}
			},
		},
		{
			name: "cpu_limit_in_shell_child",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd:     spec.ShellCommand(`sh -c 'while :; do :; done'; exit $?`),
					WorkDir: t.TempDir(),
					Limits:  spec.Limits{CPUSeconds: 1, RealSeconds: 20},
				}
			},
			maxWall: 6 * time.Second,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeCPULimit {
					t.Fatalf("outcome = %s exit = %d, want cpu-limit", res.Outcome, res.ExitCode)
				}
				if !strings.Contains(string(res.Stderr), "CPU limit of 1 seconds exceeded") {
					t.Fatalf("missing cpu diagnostic: %q", res.Stderr)
				}
			},
		},
		{
			name: "file_size_limit_in_shell_child",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{
					Cmd:     spec.ShellCommand(`yes > big; exit $?`),
					WorkDir: t.TempDir(),
					Limits:  spec.Limits{FileSizeBytes: 1024, RealSeconds: 10},
				}
			},
			maxWall: 5 * time.Second,
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeFileSize {
					t.Fatalf("outcome = %s exit = %d, want file-size", res.Outcome, res.ExitCode)
				}
				if !strings.Contains(string(res.Stderr), "maximum file creation size of 1024 bytes exceeded") {
					t.Fatalf("missing file size diagnostic: %q", res.Stderr)
				}
			},
		},
		{
			name: "shell_exit_status_without_limit",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{Cmd: spec.ShellCommand(`exit 153`)}
			},
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeNormal || res.ExitCode != 153 {
					t.Fatalf("outcome = %s exit = %d, want normal exit 153", res.Outcome, res.ExitCode)
				}
			},
		},
		{
			name: "spawn_error",
			runSpec: func(t *testing.T) spec.RunSpec {
				return spec.RunSpec{Cmd: []string{"/nonexistent/autotest-program"}}
			},
			verify: func(t *testing.T, res result.ExecutionResult) {
				if res.Outcome != result.OutcomeSpawnError {
					t.Fatalf("outcome = %s, want spawn-error", res.Outcome)
				}
				if res.ExitCode != spawnErrorExit || len(res.Stderr) == 0 {
					t.Fatalf("unexpected spawn error result: exit=%d stderr=%q", res.ExitCode, res.Stderr)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			start := time.Now()
			res, err := eng.Run(ctx, tc.runSpec(t))
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if tc.maxWall > 0 && time.Since(start) > tc.maxWall {
				t.Fatalf("run took %s, want under %s", time.Since(start), tc.maxWall)
			}
			tc.verify(t, res)
		})
	}
}

func TestLinuxEngineCancel(t *testing.T) {
	eng := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := eng.Run(ctx, spec.RunSpec{Cmd: []string{"sleep", "30"}})
	if !appErr.Is(err, appErr.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancel took %s", time.Since(start))
	}
}

func TestLinuxEngineValidate(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Run(context.Background(), spec.RunSpec{}); err == nil {
		t.Fatalf("expected validation error for empty command")
	}
	_, err := eng.Run(context.Background(), spec.RunSpec{Cmd: []string{"true"}, Limits: spec.Limits{CPUSeconds: -1}})
	if err == nil {
		t.Fatalf("expected validation error for negative limit")
	}
}

func TestLinuxEngineMissingHelper(t *testing.T) {
	eng, err := NewEngine(Config{HelperPath: "/nonexistent/autotest-helper"})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	_, err = eng.Run(context.Background(), spec.RunSpec{Cmd: []string{"true"}})
	if !appErr.Is(err, appErr.SpawnFailed) {
		t.Fatalf("expected spawn-failed error, got %v", err)
	}
}

func TestNewEngineConfig(t *testing.T) {
	if _, err := NewEngine(Config{EnableCgroup: true}); err == nil {
		t.Fatalf("expected error without cgroup root")
	}
	if _, err := NewEngine(Config{EnableSeccomp: true}); err == nil {
		t.Fatalf("expected error without seccomp profile")
	}
}
