//go:build linux

package namespace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"autotest/internal/judge/handoff"
	"autotest/internal/judge/model"

	"golang.org/x/sys/unix"
)

const (
	// resumeStateEnv switches the re-executed test binary into the inside half.
	resumeStateEnv = "AUTOTEST_TEST_RESUME_STATE"
	// resumeUnsupportedExit reports that the kernel refused the mounts.
	resumeUnsupportedExit = 3
)

func TestResumeAssemblesRoot(t *testing.T) {
	if stateDir := os.Getenv(resumeStateEnv); stateDir != "" {
		os.Exit(resumeInside(stateDir))
	}

	stateDir, err := os.MkdirTemp("", "autotest-resume-")
	if err != nil {
		t.Fatalf("mkdir state dir: %v", err)
	}
	t.Cleanup(func() {
		if err := cleanupStateDir(stateDir); err != nil {
			t.Errorf("cleanup state dir: %v", err)
		}
	})
	workDir := t.TempDir()
	roDir := t.TempDir()
	rwDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(roDir, "given.txt"), []byte("given\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	state := handoff.State{
		WorkDir: workDir,
		RunID:   "resume-test",
		Settings: model.Settings{Sandbox: model.SandboxSpec{
			Enabled:        true,
			ReadOnlyMount:  []model.Mount{{Source: roDir, Target: "/ro"}},
			ReadWriteMount: []model.Mount{{Source: rwDir, Target: "/rw"}},
		}},
	}
	if err := handoff.Write(context.Background(), stateDir, state); err != nil {
		t.Fatalf("write handoff: %v", err)
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestResumeAssemblesRoot$")
	cmd.Env = append(os.Environ(), resumeStateEnv+"="+stateDir)
	cmd.SysProcAttr = namespaceAttr(false)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSPC) {
			t.Skipf("user namespaces unavailable: %v", err)
		}
		t.Fatalf("start inside half: %v", err)
	}
	err = cmd.Wait()
	if code := cmd.ProcessState.ExitCode(); code == resumeUnsupportedExit {
		t.Skipf("mounts refused inside user namespace: %s", stderr.String())
	}
	if err != nil {
		t.Fatalf("inside half failed: %v\n%s", err, stderr.String())
	}

	if _, err := os.Stat(handoff.Path(stateDir)); !os.IsNotExist(err) {
		t.Fatalf("handoff file should be gone after the read, stat err=%v", err)
	}
	if data, err := os.ReadFile(filepath.Join(rwDir, "written.txt")); err != nil || string(data) != "rw\n" {
		t.Fatalf("read-write mount write not visible on host: %q err=%v", data, err)
	}
	if _, err := os.Stat(filepath.Join(workDir, "work.txt")); err != nil {
		t.Fatalf("working directory write not visible on host: %v", err)
	}
	if _, err := os.Stat(filepath.Join(roDir, "blocked.txt")); !os.IsNotExist(err) {
		t.Fatalf("read-only mount accepted a write, stat err=%v", err)
	}
}

// resumeInside runs in the new namespaces and returns the process exit status.
func resumeInside(stateDir string) int {
	state, err := ResumeBuilder(Options{}).Resume(context.Background(), stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resume: %v\n", err)
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return resumeUnsupportedExit
		}
		return 1
	}
	if err := checkAssembledRoot(state, stateDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func checkAssembledRoot(state handoff.State, stateDir string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}
	if wd != state.WorkDir {
		return fmt.Errorf("working directory = %q, want %q", wd, state.WorkDir)
	}
	if err := os.WriteFile("work.txt", []byte("work\n"), 0o644); err != nil {
		return fmt.Errorf("write in working directory: %w", err)
	}

	if data, err := os.ReadFile("/ro/given.txt"); err != nil || string(data) != "given\n" {
		return fmt.Errorf("read-only mount content = %q, err=%v", data, err)
	}
	err = os.WriteFile("/ro/blocked.txt", []byte("x"), 0o644)
	if !errors.Is(err, unix.EROFS) {
		return fmt.Errorf("write in read-only mount: err=%v, want EROFS", err)
	}
	if err := os.WriteFile("/rw/written.txt", []byte("rw\n"), 0o644); err != nil {
		return fmt.Errorf("write in read-write mount: %w", err)
	}

	var st unix.Statfs_t
	if err := unix.Statfs("/tmp", &st); err != nil {
		return fmt.Errorf("statfs /tmp: %w", err)
	}
	if st.Type != unix.TMPFS_MAGIC {
		return fmt.Errorf("/tmp filesystem type = %#x, want tmpfs", st.Type)
	}
	// The host's temporary directory holds the state directory; the fresh
	// tmpfs must not.
	if _, err := os.Stat(filepath.Join("/tmp", filepath.Base(stateDir))); !os.IsNotExist(err) {
		return fmt.Errorf("host /tmp leaked into the sandbox, stat err=%v", err)
	}
	if err := os.WriteFile("/tmp/scratch", nil, 0o644); err != nil {
		return fmt.Errorf("write in /tmp: %w", err)
	}
	return nil
}
