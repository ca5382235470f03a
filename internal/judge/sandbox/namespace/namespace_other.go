//go:build !linux

package namespace

import (
	"context"

	"autotest/internal/judge/model"
	appErr "autotest/pkg/errors"
)

func (b *Builder) spawn(ctx context.Context, argv []string, sb model.SandboxSpec) (int, error) {
	return appErr.ExitInternalError, appErr.New(appErr.SandboxUnavailable).WithMessage("sandboxing requires linux")
}

func assembleRoot(ctx context.Context, stateDir string, network bool, plan []mountEntry) error {
	return appErr.New(appErr.SandboxUnavailable).WithMessage("sandboxing requires linux")
}

func chrootInto(ctx context.Context, root, workDir string) error {
	return appErr.New(appErr.SandboxUnavailable).WithMessage("sandboxing requires linux")
}

func cleanupStateDir(stateDir string) error {
	return nil
}
