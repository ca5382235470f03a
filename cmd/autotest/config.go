package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"autotest/internal/judge/model"
	"autotest/internal/judge/report"
	"autotest/internal/judge/sandbox/engine"
	"autotest/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "configs/autotest.yaml"
	defaultSuitePath  = "tests.yaml"
)

// EngineConfig holds process runner settings.
type EngineConfig struct {
	HelperPath     string `yaml:"helperPath"`
	SeccompProfile string `yaml:"seccompProfile"`
	EnableSeccomp  bool   `yaml:"enableSeccomp"`
	EnableCgroup   bool   `yaml:"enableCgroup"`
	CgroupRoot     string `yaml:"cgroupRoot"`
}

// OutputConfig holds report settings.
type OutputConfig struct {
	Color report.ColorMode `yaml:"color"`
}

// AppConfig holds autotest config.
type AppConfig struct {
	Logger             logger.Config             `yaml:"logger"`
	Engine             EngineConfig              `yaml:"engine"`
	Sandbox            model.SandboxSpec         `yaml:"sandbox"`
	Limits             model.LimitParams         `yaml:"limits"`
	Retry              model.RetryPolicy         `yaml:"retry"`
	Languages          map[string]model.Language `yaml:"languages"`
	Output             OutputConfig              `yaml:"output"`
	ShowCompileCommand bool                      `yaml:"showCompileCommand"`
	// Suite is the test suite document, relative to the working directory.
	Suite string `yaml:"suite"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads path. A missing file at the default path yields the
// built-in defaults; an explicitly named file must exist.
func loadAppConfig(path string, explicit bool) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if cfg.Suite == "" {
		cfg.Suite = defaultSuitePath
	}
	switch cfg.Output.Color {
	case "":
		cfg.Output.Color = report.ColorAuto
	case report.ColorAuto, report.ColorAlways, report.ColorNever:
	default:
		return nil, fmt.Errorf("output color must be auto, always or never, got %q", cfg.Output.Color)
	}
	if cfg.Engine.EnableSeccomp && cfg.Engine.SeccompProfile == "" {
		return nil, fmt.Errorf("engine seccompProfile is required when seccomp is enabled")
	}
	if cfg.Engine.EnableCgroup && cfg.Engine.CgroupRoot == "" {
		cfg.Engine.CgroupRoot = "/sys/fs/cgroup/autotest"
	}
	if cfg.Sandbox.StateDir == "" {
		cfg.Sandbox.StateDir = os.TempDir()
	}
	if cfg.Engine.HelperPath != "" {
		abs, err := filepath.Abs(cfg.Engine.HelperPath)
		if err != nil {
			return nil, fmt.Errorf("resolve helper path failed: %w", err)
		}
		cfg.Engine.HelperPath = abs
	}
	return &cfg, nil
}

func (c *AppConfig) settings() model.Settings {
	s := model.Settings{
		Limits:             c.Limits,
		Languages:          c.Languages,
		Retry:              c.Retry,
		Sandbox:            c.Sandbox,
		ShowCompileCommand: c.ShowCompileCommand,
	}
	s.ApplyDefaults()
	return s
}

func (e EngineConfig) toEngineConfig() engine.Config {
	return engine.Config{
		HelperPath:     e.HelperPath,
		SeccompProfile: e.SeccompProfile,
		EnableSeccomp:  e.EnableSeccomp,
		EnableCgroup:   e.EnableCgroup,
		CgroupRoot:     e.CgroupRoot,
	}
}
