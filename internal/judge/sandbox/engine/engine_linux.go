//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"autotest/internal/judge/sandbox/initproc"
	"autotest/internal/judge/sandbox/result"
	"autotest/internal/judge/sandbox/spec"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// selfExe keeps working after chroot as long as /proc is mounted.
	selfExe = "/proc/self/exe"
	// killGrace bounds how long drains may run after the process group was killed.
	killGrace = 2 * time.Second
)

type linuxEngine struct {
	cfg       Config
	helper    string
	helperEnv []string
}

// NewEngine creates a Linux process runner.
func NewEngine(cfg Config) (Engine, error) {
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	if cfg.EnableSeccomp && cfg.SeccompProfile == "" {
		return nil, fmt.Errorf("seccomp profile is required")
	}
	helper := cfg.HelperPath
	if helper == "" {
		helper = selfExe
	}
	env := append(os.Environ(), initproc.EnvMarker+"=1")
	return &linuxEngine{cfg: cfg, helper: helper, helperEnv: env}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.ExecutionResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.ExecutionResult{}, err
	}
	limits := runSpec.Limits

	pipes, err := openChildPipes(runSpec.Stdin)
	if err != nil {
		return result.ExecutionResult{}, appErr.Wrapf(err, appErr.InternalServerError, "prepare child pipes failed")
	}
	defer pipes.closeAll()

	var cg *runCgroup
	if e.cfg.EnableCgroup {
		cg, err = createRunCgroup(e.cfg.CgroupRoot, limits)
		if err != nil {
			return result.ExecutionResult{}, appErr.Wrapf(err, appErr.InternalServerError, "create cgroup failed")
		}
		defer cg.cleanup()
	}

	req := initproc.Request{Cmd: runSpec.Cmd, Env: runSpec.Env, Limits: limits}
	if e.cfg.EnableSeccomp {
		req.SeccompProfile = e.cfg.SeccompProfile
	}

	cmd := exec.Command(e.helper)
	cmd.Env = e.helperEnv
	cmd.Dir = runSpec.WorkDir
	if pipes.stdin != nil {
		cmd.Stdin = pipes.stdin
	}
	cmd.Stdout = pipes.stdoutW
	cmd.Stderr = pipes.stderrW
	cmd.ExtraFiles = pipes.extraFiles()
	cmd.SysProcAttr = buildSysProcAttr(cg)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		logger.Error(ctx, "start limit helper failed", zap.String("helper", e.helper), zap.Error(err))
		return result.ExecutionResult{}, appErr.Wrapf(err, appErr.SpawnFailed, "start limit helper %s", e.helper)
	}
	pipes.closeChildEnds()
	go sendRequest(pipes.requestW, req)
	pid := cmd.Process.Pid
	logger.Debug(ctx, "child started", zap.Int("pid", pid), zap.Strings("cmd", runSpec.Cmd))

	var finish finishLine
	grace := &graceCloser{close: pipes.closeReaders}
	terminate := func() {
		killProcessGroup(pid)
		if err := cg.kill(); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.Error(err))
		}
		grace.arm(killGrace)
	}

	capture := newBoundedCapture(limits.StdoutBytes, limits.StderrBytes, func(stream streamID) bool {
		reason := finishStdoutCap
		if stream == streamStderr {
			reason = finishStderrCap
		}
		if !finish.claim(reason) {
			// Output left in the pipe after the leader exited still overflows.
			return finish.winner() == finishExited
		}
		logger.Info(ctx, "output cap exceeded, killing child", zap.Stringer("stream", stream), zap.Int("pid", pid))
		terminate()
		return true
	})

	var watchdog *time.Timer
	if limits.RealSeconds > 0 {
		watchdog = time.AfterFunc(time.Duration(limits.RealSeconds)*time.Second, func() {
			if !finish.claim(finishWallClock) {
				return
			}
			capture.appendDiagnostic(fmt.Sprintf(wallClockMessage, limits.RealSeconds))
			logger.Info(ctx, "wall-clock limit exceeded, killing child", zap.Int("pid", pid), zap.Int64("seconds", limits.RealSeconds))
			terminate()
		})
	}
	stopCancel := context.AfterFunc(ctx, func() {
		if finish.claim(finishCanceled) {
			terminate()
		}
	})
	defer stopCancel()

	var drains errgroup.Group
	drains.Go(func() error { return capture.drain(pipes.stdoutR, streamStdout) })
	drains.Go(func() error { return capture.drain(pipes.stderrR, streamStderr) })

	spawnMsg := readStatus(pipes.statusR)

	waitErr := cmd.Wait()
	if finish.claim(finishExited) {
		// Descendants may still hold the output pipes open.
		terminate()
	}
	if watchdog != nil {
		watchdog.Stop()
	}
	drainErr := drains.Wait()
	grace.stop()

	if drainErr != nil {
		logger.Warn(ctx, "drain child output failed", zap.Error(drainErr))
	}
	state := cmd.ProcessState
	if state == nil {
		return result.ExecutionResult{}, appErr.Wrapf(waitErr, appErr.InternalServerError, "wait for child failed")
	}

	if spawnMsg != "" {
		logger.Debug(ctx, "child could not be started", zap.String("reason", spawnMsg))
		return spawnErrorResult(spawnMsg, time.Since(start)), nil
	}

	res := result.ExecutionResult{
		Outcome:  result.OutcomeNormal,
		WallTime: time.Since(start),
		CPUTime:  cpuTime(state),
		MaxRSSKB: maxRSSKB(state, cg),
	}
	var signal syscall.Signal
	res.ExitCode, signal = exitStatus(state)

	switch {
	case finish.winner() == finishWallClock:
		res.Outcome = result.OutcomeWallClock
	case cpuLimitHit(signal, res.CPUTime, limits),
		limits.CPUSeconds > 0 && shellSignalExit(runSpec.Cmd, res.ExitCode, syscall.SIGXCPU):
		res.Outcome = result.OutcomeCPULimit
		capture.appendDiagnostic(fmt.Sprintf(cpuLimitMessage, limits.CPUSeconds))
	case signal == syscall.SIGXFSZ,
		limits.FileSizeBytes > 0 && shellSignalExit(runSpec.Cmd, res.ExitCode, syscall.SIGXFSZ):
		res.Outcome = result.OutcomeFileSize
		capture.appendDiagnostic(fmt.Sprintf(fileSizeMessage, limits.FileSizeBytes))
	case signal == syscall.SIGKILL && cg.oomKilled():
		capture.appendDiagnostic(fmt.Sprintf("Error: memory limit of %d bytes exceeded\n", limits.RSSBytes))
	}
	res.Stdout, res.Stderr, res.StdoutTruncated, res.StderrTruncated = capture.snapshot()

	if finish.winner() == finishCanceled {
		return res, appErr.Wrapf(ctx.Err(), appErr.Canceled, "run canceled")
	}
	logger.Debug(ctx, "child finished",
		zap.Int("pid", pid),
		zap.Int("exit_code", res.ExitCode),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("wall", res.WallTime),
	)
	return res, nil
}

// cpuLimitHit covers SIGXCPU at the soft limit and SIGKILL at the hard limit
// for programs that ignore SIGXCPU.
func cpuLimitHit(signal syscall.Signal, used time.Duration, limits spec.Limits) bool {
	if limits.CPUSeconds <= 0 {
		return false
	}
	if signal == syscall.SIGXCPU {
		return true
	}
	return signal == syscall.SIGKILL && used >= time.Duration(limits.CPUSeconds)*time.Second
}

// shellSignalExit reports a shell command whose last program was killed by
// sig. The shell itself exits with 128+sig in that case.
func shellSignalExit(cmd []string, exitCode int, sig syscall.Signal) bool {
	return spec.IsShellCommand(cmd) && exitCode == 128+int(sig)
}

func exitStatus(state *os.ProcessState) (int, syscall.Signal) {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal()), ws.Signal()
	}
	return state.ExitCode(), 0
}

func spawnErrorResult(msg string, elapsed time.Duration) result.ExecutionResult {
	return result.ExecutionResult{
		Stderr:   []byte(msg),
		ExitCode: spawnErrorExit,
		Outcome:  result.OutcomeSpawnError,
		WallTime: elapsed,
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		logger.Warn(context.Background(), "kill process group failed", zap.Int("pgid", pid), zap.Error(err))
	}
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if len(runSpec.Cmd) == 0 || runSpec.Cmd[0] == "" {
		return appErr.ValidationError("command", "is required")
	}
	if err := runSpec.Limits.Validate(); err != nil {
		return appErr.Wrap(err, appErr.InvalidValue)
	}
	return nil
}

func buildSysProcAttr(cg *runCgroup) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if fd, ok := cg.fd(); ok {
		attr.UseCgroupFD = true
		attr.CgroupFD = fd
	}
	return attr
}
