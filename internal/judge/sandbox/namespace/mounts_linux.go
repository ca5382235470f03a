//go:build linux

package namespace

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// assembleRoot builds <stateDir>/root from fresh pseudo filesystems and the
// bind mounts in plan. It must run inside a private mount namespace.
func assembleRoot(ctx context.Context, stateDir string, network bool, plan []mountEntry) error {
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "make mounts private")
	}
	root := rootDir(stateDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "create root %s", root)
	}

	if err := mountTmp(filepath.Join(root, "tmp")); err != nil {
		return err
	}
	if err := mountProc(ctx, filepath.Join(root, "proc")); err != nil {
		return err
	}
	if err := mountSys(ctx, filepath.Join(root, "sys"), network); err != nil {
		return err
	}
	if err := bindMount("/dev", filepath.Join(root, "dev"), false); err != nil {
		return err
	}

	for _, m := range plan {
		if !exists(m.Source) {
			if m.Optional {
				logger.Debug(ctx, "skip missing mount source", zap.String("source", m.Source))
				continue
			}
			return appErr.Newf(appErr.SandboxMountFailed, "mount source %s does not exist", m.Source)
		}
		if err := bindMount(m.Source, inRoot(root, m.Target), m.ReadOnly); err != nil {
			return err
		}
		logger.Debug(ctx, "mounted",
			zap.String("source", m.Source),
			zap.String("target", m.Target),
			zap.Bool("read_only", m.ReadOnly),
		)
	}
	return nil
}

func mountTmp(target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "mkdir tmp")
	}
	if err := unix.Mount("tmpfs", target, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "mode=1777"); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "mount tmpfs")
	}
	return nil
}

func mountProc(ctx context.Context, target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "mkdir proc")
	}
	err := unix.Mount("proc", target, "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, "")
	if err == nil || errors.Is(err, unix.EBUSY) {
		return nil
	}
	// A fresh proc needs a PID namespace; external sandbox commands may not give one.
	logger.Debug(ctx, "mount proc failed, binding host proc", zap.Error(err))
	return bindMount("/proc", target, false)
}

func mountSys(ctx context.Context, target string, network bool) error {
	if network {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return appErr.Wrapf(err, appErr.SandboxMountFailed, "mkdir sys")
		}
		err := unix.Mount("sysfs", target, "sysfs", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC|unix.MS_RDONLY, "")
		if err == nil {
			return nil
		}
		logger.Debug(ctx, "mount sysfs failed, binding host sys", zap.Error(err))
	}
	return bindMount("/sys", target, false)
}

func bindMount(source, target string, readOnly bool) error {
	if err := ensureMountTarget(source, target); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "prepare %s", target)
	}
	if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "bind mount %s", source)
	}
	if !readOnly {
		return nil
	}
	// Flags locked by the user namespace must be repeated on remount.
	var st unix.Statfs_t
	if err := unix.Statfs(source, &st); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "statfs %s", source)
	}
	flags := unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | lockedFlags(uint64(st.Flags))
	if err := unix.Mount("", target, "", uintptr(flags), ""); err != nil {
		return appErr.Wrapf(err, appErr.SandboxMountFailed, "remount readonly %s", target)
	}
	return nil
}

// lockedFlags translates statfs flags into the mount flags that must be
// preserved on a bind remount.
func lockedFlags(stFlags uint64) int {
	pairs := []struct {
		st    uint64
		mount int
	}{
		{unix.ST_NOSUID, unix.MS_NOSUID},
		{unix.ST_NODEV, unix.MS_NODEV},
		{unix.ST_NOEXEC, unix.MS_NOEXEC},
		{unix.ST_NOATIME, unix.MS_NOATIME},
		{unix.ST_NODIRATIME, unix.MS_NODIRATIME},
		{unix.ST_RELATIME, unix.MS_RELATIME},
	}
	flags := 0
	for _, p := range pairs {
		if stFlags&p.st != 0 {
			flags |= p.mount
		}
	}
	return flags
}

func chrootInto(ctx context.Context, root, workDir string) error {
	if err := unix.Chroot(root); err != nil {
		return appErr.Wrapf(err, appErr.SandboxChrootFailed, "chroot %s", root)
	}
	if err := os.Chdir(workDir); err != nil {
		return appErr.Wrapf(err, appErr.SandboxChrootFailed, "chdir %s", workDir)
	}
	logger.Info(ctx, "sandbox root ready", zap.String("workdir", workDir))
	return nil
}
