package namespace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"autotest/internal/judge/model"
)

type mountEntry struct {
	Source   string
	Target   string
	ReadOnly bool
	// Optional entries are skipped when the source does not exist.
	Optional bool
}

// buildMountPlan orders the bind mounts for the root: base read-only
// directories, explicit read-only mounts, explicit read-write mounts and
// finally the run's working directory.
func buildMountPlan(sb model.SandboxSpec, workDir string) []mountEntry {
	plan := make([]mountEntry, 0, len(sb.ReadOnlyMountBase)+len(sb.ReadOnlyMount)+len(sb.ReadWriteMount)+1)
	for _, m := range sb.ReadOnlyMountBase {
		plan = append(plan, mountEntry{Source: m.Source, Target: targetOf(m), ReadOnly: true, Optional: true})
	}
	for _, m := range sb.ReadOnlyMount {
		plan = append(plan, mountEntry{Source: m.Source, Target: targetOf(m), ReadOnly: true})
	}
	for _, m := range sb.ReadWriteMount {
		plan = append(plan, mountEntry{Source: m.Source, Target: targetOf(m)})
	}
	return append(plan, mountEntry{Source: workDir, Target: workDir})
}

func targetOf(m model.Mount) string {
	if m.Target == "" {
		return m.Source
	}
	return m.Target
}

func rootDir(stateDir string) string {
	return filepath.Join(stateDir, RootDirName)
}

// inRoot maps an absolute path inside the sandbox to its host location.
func inRoot(root, target string) string {
	return filepath.Join(root, filepath.Clean("/"+target))
}

// ensureMountTarget creates a directory or empty file at target matching the
// kind of source.
func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("mkdir mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir mount target dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return file.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
