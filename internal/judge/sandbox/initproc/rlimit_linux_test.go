//go:build linux

package initproc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autotest/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

func TestRlimitSettingsSkipZero(t *testing.T) {
	limits := spec.Limits{CPUSeconds: 2, OpenFiles: 256}
	active := map[string]int64{}
	for _, s := range rlimitSettings(limits) {
		if s.value > 0 || s.applyZero {
			active[s.name] = s.value
		}
	}
	if len(active) != 3 {
		t.Fatalf("expected cpu, core and nofile limits, got %v", active)
	}
	if v, ok := active["core"]; !ok || v != 0 {
		t.Fatalf("core limit must be applied even at zero, got %v", active)
	}
	if active["cpu"] != 2 {
		t.Fatalf("cpu limit = %d", active["cpu"])
	}
	if active["nofile"] != 257 {
		t.Fatalf("nofile limit = %d, want 257", active["nofile"])
	}
}

func TestValidateRequest(t *testing.T) {
	cases := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{name: "empty command", req: Request{}, wantErr: "command is required"},
		{name: "negative limit", req: Request{Cmd: []string{"true"}, Limits: spec.Limits{StackBytes: -1}}, wantErr: "max_stack_bytes"},
		{name: "ok", req: Request{Cmd: []string{"true"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRequest(tc.req)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	payload, err := json.Marshal(Request{Cmd: []string{"cat"}, Limits: spec.Limits{CPUSeconds: 1}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := decodeRequest(strings.NewReader(string(payload)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Cmd[0] != "cat" || req.Limits.CPUSeconds != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if _, err := decodeRequest(strings.NewReader("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestParseSeccompAction(t *testing.T) {
	for _, action := range []string{"SCMP_ACT_ALLOW", "scmp_act_kill", "SCMP_ACT_ERRNO", "SCMP_ACT_LOG"} {
		if _, err := parseSeccompAction(action); err != nil {
			t.Fatalf("parse %s: %v", action, err)
		}
	}
	if _, err := parseSeccompAction("SCMP_ACT_TRAP"); err == nil {
		t.Fatalf("expected unsupported action error")
	}
}

func TestLoadSeccompProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	body := `{"defaultAction":"SCMP_ACT_ALLOW","syscalls":[{"names":["ptrace"],"action":"SCMP_ACT_ERRNO"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	profile, err := loadSeccompProfile(path)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.DefaultAction != "SCMP_ACT_ALLOW" || len(profile.Syscalls) != 1 || profile.Syscalls[0].Names[0] != "ptrace" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestInheritedEnvDropsMarker(t *testing.T) {
	t.Setenv(EnvMarker, "1")
	t.Setenv("AUTOTEST_KEEP", "yes")
	env := inheritedEnv()
	var sawKeep bool
	for _, kv := range env {
		if strings.HasPrefix(kv, EnvMarker+"=") {
			t.Fatalf("marker leaked into target env")
		}
		if kv == "AUTOTEST_KEEP=yes" {
			sawKeep = true
		}
	}
	if !sawKeep {
		t.Fatalf("expected inherited variable to survive")
	}
}

func TestSetRlimitLowersLimit(t *testing.T) {
	var cur unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_CORE, &cur); err != nil {
		t.Fatalf("getrlimit: %v", err)
	}
	if cur.Max == unix.RLIM_INFINITY || cur.Max == 0 {
		t.Skip("core hard limit is not finite and positive")
	}
	// Lowering is always allowed; this exercises the path without needing privilege.
	if err := setRlimit(unix.RLIMIT_CORE, cur.Max-1); err != nil {
		t.Fatalf("setRlimit: %v", err)
	}
}
