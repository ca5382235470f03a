// Package namespace builds the filesystem sandbox a whole run executes in.
//
// Entering is a two-process affair. The outer process writes the handoff
// state and re-executes itself in new user, mount and PID namespaces. The
// inner process reads the state once, assembles a root from bind mounts and
// chroots into it before any test runs.
package namespace

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"autotest/internal/judge/handoff"
	"autotest/internal/judge/model"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

// State is the position of a process in the sandbox lifecycle.
type State int

const (
	Unsandboxed State = iota
	NamespaceCreating
	RootAssembling
	Chrooted
)

func (s State) String() string {
	switch s {
	case Unsandboxed:
		return "unsandboxed"
	case NamespaceCreating:
		return "namespace-creating"
	case RootAssembling:
		return "root-assembling"
	case Chrooted:
		return "chrooted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// InsideFlag marks the re-executed process; the state directory follows it.
const InsideFlag = "--inside-sandbox"

// RootDirName is the assembled root inside the state directory.
const RootDirName = "root"

// Options configures a Builder.
type Options struct {
	// Executable is re-executed inside the namespaces, os.Executable() when empty.
	Executable string
	// Args precede InsideFlag on the re-executed command line.
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Builder drives one process through the sandbox states.
type Builder struct {
	opts Options

	mu    sync.Mutex
	state State
}

// NewBuilder returns a builder for a process that has not entered a sandbox.
func NewBuilder(opts Options) *Builder {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Builder{opts: opts, state: Unsandboxed}
}

// ResumeBuilder returns a builder for the process started by Enter, which is
// already inside the new namespaces.
func ResumeBuilder(opts Options) *Builder {
	b := NewBuilder(opts)
	b.state = NamespaceCreating
	return b
}

// State reports the current state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Builder) transition(from, to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != from {
		return appErr.Newf(appErr.SandboxStateInvalid, "sandbox cannot move to %s from %s", to, b.state).
			WithDetail("state", b.state.String())
	}
	b.state = to
	return nil
}

// Enter writes state into a fresh state directory and runs the inside half
// of the run in new namespaces. It returns the inner process's exit status.
func (b *Builder) Enter(ctx context.Context, state handoff.State) (int, error) {
	sb := state.Settings.Sandbox
	if err := b.transition(Unsandboxed, NamespaceCreating); err != nil {
		return appErr.ExitInternalError, err
	}

	stateDir, err := os.MkdirTemp(sb.StateDir, "autotest-sandbox-")
	if err != nil {
		return appErr.ExitInternalError, appErr.Wrapf(err, appErr.SandboxUnavailable, "create sandbox state directory")
	}
	defer func() {
		if err := cleanupStateDir(stateDir); err != nil {
			logger.Warn(ctx, "sandbox state directory cleanup failed", zap.String("dir", stateDir), zap.Error(err))
		}
	}()

	if err := handoff.Write(ctx, stateDir, state); err != nil {
		return appErr.ExitInternalError, err
	}

	argv, err := b.reexecArgv(sb, stateDir)
	if err != nil {
		return appErr.ExitInternalError, err
	}
	logger.Info(ctx, "entering sandbox",
		zap.Strings("argv", argv),
		zap.Bool("external", sb.Command != ""),
		zap.Bool("network_namespace", sb.Network),
	)
	code, err := b.spawn(ctx, argv, sb)
	if err != nil {
		return appErr.ExitInternalError, err
	}
	logger.Info(ctx, "left sandbox", zap.Int("exit_code", code))
	return code, nil
}

// Resume reads the handoff state from stateDir, assembles the root and
// chroots into it. The state file is gone afterwards even on failure.
func (b *Builder) Resume(ctx context.Context, stateDir string) (handoff.State, error) {
	if s := b.State(); s != NamespaceCreating {
		return handoff.State{}, appErr.Newf(appErr.SandboxStateInvalid, "sandbox cannot resume from %s", s)
	}
	state, err := handoff.ReadOnce(ctx, stateDir)
	if err != nil {
		return handoff.State{}, err
	}
	if state.WorkDir == "" {
		return handoff.State{}, appErr.New(appErr.HandoffCorrupt).WithMessage("handoff state has no working directory")
	}

	if err := b.transition(NamespaceCreating, RootAssembling); err != nil {
		return handoff.State{}, err
	}
	plan := buildMountPlan(state.Settings.Sandbox, state.WorkDir)
	if err := assembleRoot(ctx, stateDir, state.Settings.Sandbox.Network, plan); err != nil {
		return handoff.State{}, err
	}
	if err := chrootInto(ctx, rootDir(stateDir), state.WorkDir); err != nil {
		return handoff.State{}, err
	}
	if err := b.transition(RootAssembling, Chrooted); err != nil {
		return handoff.State{}, err
	}
	return state, nil
}

func (b *Builder) reexecArgv(sb model.SandboxSpec, stateDir string) ([]string, error) {
	exe := b.opts.Executable
	if exe == "" {
		path, err := os.Executable()
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "locate own executable")
		}
		exe = path
	}
	var argv []string
	if sb.Command != "" {
		prefix, err := shlex.Split(sb.Command)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "split sandbox command %q", sb.Command)
		}
		argv = append(argv, prefix...)
	}
	argv = append(argv, exe)
	argv = append(argv, b.opts.Args...)
	return append(argv, InsideFlag, stateDir), nil
}
