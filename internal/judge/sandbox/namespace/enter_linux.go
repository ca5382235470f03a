//go:build linux

package namespace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"syscall"

	"autotest/internal/judge/model"
	appErr "autotest/pkg/errors"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

func (b *Builder) spawn(ctx context.Context, argv []string, sb model.SandboxSpec) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = b.opts.Stdin
	cmd.Stdout = b.opts.Stdout
	cmd.Stderr = b.opts.Stderr
	if sb.Command == "" {
		cmd.SysProcAttr = namespaceAttr(sb.Network)
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
	}

	err := cmd.Run()
	if err == nil {
		return appErr.ExitAllPassed, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		if ctx.Err() != nil {
			return appErr.ExitInternalError, appErr.Wrapf(ctx.Err(), appErr.Canceled, "sandboxed run interrupted")
		}
		return appErr.ExitInternalError, appErr.Newf(appErr.SandboxUnavailable, "sandboxed run terminated: %v", exitErr)
	}
	return appErr.ExitInternalError, appErr.Wrapf(err, appErr.SandboxUnavailable, "start sandboxed run")
}

// namespaceAttr maps the caller to root inside fresh user, mount and PID
// namespaces, and a network namespace when requested.
func namespaceAttr(network bool) *syscall.SysProcAttr {
	flags := uintptr(unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWUSER)
	if network {
		flags |= unix.CLONE_NEWNET
	}
	return &syscall.SysProcAttr{
		Pdeathsig:                  syscall.SIGKILL,
		Cloneflags:                 flags,
		GidMappingsEnableSetgroups: false,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		},
	}
}

// cleanupStateDir removes the state directory without descending into
// anything that is still a mount point.
func cleanupStateDir(stateDir string) error {
	top, err := deviceOf(stateDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var paths []string
	err = filepath.WalkDir(stateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != stateDir {
			dev, err := deviceOf(path)
			if err != nil {
				return err
			}
			if dev != top {
				return fs.SkipDir
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	var errs error
	for _, path := range slices.Backward(paths) {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func deviceOf(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, &fs.PathError{Op: "lstat", Path: path, Err: err}
	}
	return uint64(st.Dev), nil
}
