package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"autotest/internal/judge/report"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autotest.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	cfg, err := loadAppConfig(missing, false)
	if err != nil {
		t.Fatalf("missing default config: %v", err)
	}
	if cfg.Suite != defaultSuitePath {
		t.Fatalf("suite = %q, want %q", cfg.Suite, defaultSuitePath)
	}
	if cfg.Output.Color != report.ColorAuto {
		t.Fatalf("color = %q, want auto", cfg.Output.Color)
	}
	settings := cfg.settings()
	if settings.Retry.Attempts != 3 || settings.Retry.Delay != time.Second {
		t.Fatalf("retry defaults = %+v", settings.Retry)
	}
	if _, ok := settings.Languages["c"]; !ok {
		t.Fatalf("default languages missing c: %v", settings.Languages)
	}
}

func TestLoadAppConfigExplicitMissing(t *testing.T) {
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.yaml"), true); err == nil {
		t.Fatalf("expected an error for a missing explicit config")
	}
}

func TestLoadAppConfigFile(t *testing.T) {
	path := writeConfig(t, `
suite: suite.yaml
output:
  color: never
retry:
  attempts: 5
  delay: 10ms
sandbox:
  enabled: true
  network: true
engine:
  enableCgroup: true
`)
	cfg, err := loadAppConfig(path, true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Suite != "suite.yaml" || cfg.Output.Color != report.ColorNever {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.Sandbox.Enabled || !cfg.Sandbox.Network || cfg.Sandbox.StateDir == "" {
		t.Fatalf("sandbox = %+v", cfg.Sandbox)
	}
	if cfg.Engine.CgroupRoot == "" {
		t.Fatalf("cgroup root default not applied")
	}
	settings := cfg.settings()
	if settings.Retry.Attempts != 5 || settings.Retry.Delay != 10*time.Millisecond {
		t.Fatalf("retry = %+v", settings.Retry)
	}
}

func TestLoadAppConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "color", body: "output:\n  color: rainbow\n"},
		{name: "seccomp without profile", body: "engine:\n  enableSeccomp: true\n"},
		{name: "syntax", body: "retry: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadAppConfig(writeConfig(t, tc.body), true); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	if code := execute([]string{"frobnicate"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
