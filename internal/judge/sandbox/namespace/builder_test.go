package namespace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"autotest/internal/judge/handoff"
	"autotest/internal/judge/model"
	appErr "autotest/pkg/errors"

	"github.com/google/go-cmp/cmp"
)

func TestBuilderStates(t *testing.T) {
	b := NewBuilder(Options{})
	if b.State() != Unsandboxed {
		t.Fatalf("new builder state = %s", b.State())
	}
	if _, err := b.Resume(context.Background(), t.TempDir()); !appErr.Is(err, appErr.SandboxStateInvalid) {
		t.Fatalf("resume from unsandboxed: expected state error, got %v", err)
	}

	r := ResumeBuilder(Options{})
	if r.State() != NamespaceCreating {
		t.Fatalf("resume builder state = %s", r.State())
	}
	if _, err := r.Enter(context.Background(), handoff.State{}); !appErr.Is(err, appErr.SandboxStateInvalid) {
		t.Fatalf("enter from namespace-creating: expected state error, got %v", err)
	}
}

func TestResumeWithoutStateFile(t *testing.T) {
	b := ResumeBuilder(Options{})
	_, err := b.Resume(context.Background(), t.TempDir())
	if !appErr.Is(err, appErr.HandoffMissing) {
		t.Fatalf("expected handoff-missing, got %v", err)
	}
	if b.State() != NamespaceCreating {
		t.Fatalf("failed resume must not advance, state = %s", b.State())
	}
}

func TestResumeRejectsStateWithoutWorkDir(t *testing.T) {
	dir := t.TempDir()
	if err := handoff.Write(context.Background(), dir, handoff.State{RunID: "r"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := ResumeBuilder(Options{}).Resume(context.Background(), dir)
	if !appErr.Is(err, appErr.HandoffCorrupt) {
		t.Fatalf("expected handoff-corrupt, got %v", err)
	}
	if _, err := os.Stat(handoff.Path(dir)); !os.IsNotExist(err) {
		t.Fatalf("state file must be consumed, stat err=%v", err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Unsandboxed:       "unsandboxed",
		NamespaceCreating: "namespace-creating",
		RootAssembling:    "root-assembling",
		Chrooted:          "chrooted",
		State(9):          "state(9)",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestReexecArgv(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr bool
	}{
		{
			name: "namespaces",
			want: []string{"/usr/bin/autotest", "run", "--config", "c.yaml", InsideFlag, "/state"},
		},
		{
			name:    "external prefix",
			command: "bwrap --dev-bind / / --unshare-pid",
			want: []string{"bwrap", "--dev-bind", "/", "/", "--unshare-pid",
				"/usr/bin/autotest", "run", "--config", "c.yaml", InsideFlag, "/state"},
		},
		{name: "bad quoting", command: `sudo "unterminated`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(Options{
				Executable: "/usr/bin/autotest",
				Args:       []string{"run", "--config", "c.yaml"},
			})
			got, err := b.reexecArgv(model.SandboxSpec{Command: tt.command}, "/state")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("reexecArgv: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("argv mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildMountPlan(t *testing.T) {
	sb := model.SandboxSpec{
		ReadOnlyMountBase: []model.Mount{{Source: "/usr"}},
		ReadOnlyMount:     []model.Mount{{Source: "/opt/course", Target: "/course"}},
		ReadWriteMount:    []model.Mount{{Source: "/var/scratch", Target: "/var/scratch"}},
	}
	got := buildMountPlan(sb, "/home/s/lab1")
	want := []mountEntry{
		{Source: "/usr", Target: "/usr", ReadOnly: true, Optional: true},
		{Source: "/opt/course", Target: "/course", ReadOnly: true},
		{Source: "/var/scratch", Target: "/var/scratch"},
		{Source: "/home/s/lab1", Target: "/home/s/lab1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestInRootStaysInsideRoot(t *testing.T) {
	if got := inRoot("/state/root", "../../etc"); got != "/state/root/etc" {
		t.Fatalf("inRoot escaped: %s", got)
	}
	if got := inRoot("/state/root", "/home/s"); got != "/state/root/home/s" {
		t.Fatalf("inRoot = %s", got)
	}
}

func TestEnsureMountTarget(t *testing.T) {
	src := t.TempDir()
	srcFile := filepath.Join(src, "data.txt")
	if err := os.WriteFile(srcFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root := t.TempDir()

	dirTarget := filepath.Join(root, "a", "b")
	if err := ensureMountTarget(src, dirTarget); err != nil {
		t.Fatalf("dir target: %v", err)
	}
	if info, err := os.Stat(dirTarget); err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s, err=%v", dirTarget, err)
	}

	fileTarget := filepath.Join(root, "c", "data.txt")
	if err := ensureMountTarget(srcFile, fileTarget); err != nil {
		t.Fatalf("file target: %v", err)
	}
	if info, err := os.Stat(fileTarget); err != nil || !info.Mode().IsRegular() || info.Size() != 0 {
		t.Fatalf("expected empty file at %s, err=%v", fileTarget, err)
	}

	if err := ensureMountTarget(filepath.Join(src, "missing"), filepath.Join(root, "m")); err == nil {
		t.Fatalf("expected error for missing source")
	}
}
