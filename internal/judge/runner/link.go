package runner

import (
	"context"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"autotest/internal/judge/model"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// maxUniqueNameLen bounds readable unique names; longer ones are digested.
const maxUniqueNameLen = 200

// UniqueName names the binary built for program by compile from files.
// Names are readable where possible so a directory listing explains itself.
func UniqueName(program string, compile model.Command, files []string) string {
	commandStr := compile.String()
	if !compile.IsShell() {
		commandStr = strings.Join(compile.Argv, "_")
	}
	commandStr = strings.ReplaceAll(commandStr, " ", "_")
	parts := append([]string{commandStr}, files...)
	name := program + "." + strings.ReplaceAll(strings.Join(parts, "__"), "/", "___")
	if len(name) <= maxUniqueNameLen {
		return name
	}
	sum := blake3.Sum256([]byte(name))
	return program + "." + hex.EncodeToString(sum[:])[:16]
}

// removeStaleLink removes the canonical program before a compile, but only
// when it is a symlink or a link this run created.
func (r *Runner) removeStaleLink(ctx context.Context, program string) error {
	path := r.path(program)
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	if info.Mode()&fs.ModeSymlink == 0 && !r.state.createdByRun(path) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return appErr.Wrapf(err, appErr.LinkFailed, "remove link %s", program)
	}
	r.state.forget(path)
	logger.Debug(ctx, "removed program link", zap.String("program", program))
	return nil
}

// linkProgram points the canonical program at unique. The replacement is a
// rename, so the canonical name never disappears while a link exists. A file
// this run did not create is left alone and used as is.
func (r *Runner) linkProgram(ctx context.Context, program, unique string) error {
	path := r.path(program)
	uniquePath := r.path(unique)
	if r.state.linkedTo(path) == uniquePath && exists(path) {
		return nil
	}
	if !exists(uniquePath) {
		logger.Debug(ctx, "no binary to link", zap.String("program", program), zap.String("unique", unique))
		return nil
	}
	if info, err := os.Lstat(path); err == nil && info.Mode()&fs.ModeSymlink == 0 && !r.state.createdByRun(path) {
		logger.Warn(ctx, "program exists and was not created by this run, not replacing it",
			zap.String("program", program))
		return nil
	}

	tmp := path + ".link-" + uuid.NewString()[:8]
	if err := os.Link(uniquePath, tmp); err != nil {
		logger.Debug(ctx, "hard link failed, using symlink", zap.String("program", program), zap.Error(err))
		if err := os.Symlink(filepath.Base(uniquePath), tmp); err != nil {
			return appErr.Wrapf(err, appErr.LinkFailed, "link %s to %s", program, unique)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return appErr.Wrapf(err, appErr.LinkFailed, "replace %s", program)
	}
	r.state.recordLink(path, uniquePath)
	logger.Debug(ctx, "linked program", zap.String("program", program), zap.String("unique", unique))
	return nil
}

// renameCompiled moves a freshly compiled program to its unique name.
func (r *Runner) renameCompiled(ctx context.Context, program, unique string) error {
	path := r.path(program)
	if !exists(path) {
		return nil
	}
	if err := os.Rename(path, r.path(unique)); err != nil {
		return appErr.Wrapf(err, appErr.LinkFailed, "rename %s to %s", program, unique)
	}
	r.state.forget(path)
	logger.Debug(ctx, "renamed compiled program", zap.String("program", program), zap.String("unique", unique))
	return nil
}

// chmodProgram makes program executable once per run. Failure is expected
// when the program only appears after linking.
func (r *Runner) chmodProgram(ctx context.Context, program string) {
	path := r.path(program)
	if !exists(path) || !r.state.markChmod(path) {
		return
	}
	if err := os.Chmod(path, 0o700); err != nil {
		logger.Debug(ctx, "chmod program failed", zap.String("program", program), zap.Error(err))
	}
}

func (r *Runner) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.workDir, name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
