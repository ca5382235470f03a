package model

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
)

// Settings holds run-wide parameters shared by every test.
type Settings struct {
	// Limits are defaults under every test's own limit parameters.
	Limits LimitParams `yaml:"limits" cbor:"limits"`
	// Languages maps a file suffix to its default compilers and checkers.
	Languages map[string]Language `yaml:"languages" cbor:"languages"`
	Retry     RetryPolicy         `yaml:"retry" cbor:"retry"`
	Sandbox   SandboxSpec         `yaml:"sandbox" cbor:"sandbox"`
	// ShowCompileCommand echoes compile commands into the report.
	ShowCompileCommand bool `yaml:"showCompileCommand" cbor:"showCompileCommand"`
}

// Language defines defaults for sources with one suffix.
type Language struct {
	Compilers    CompilerList `yaml:"compilers" cbor:"compilers"`
	CompilerArgs []string     `yaml:"compilerArgs" cbor:"compilerArgs,omitempty"`
	Checkers     CompilerList `yaml:"checkers" cbor:"checkers,omitempty"`
}

// RetryPolicy bounds re-runs of executions that look spurious.
type RetryPolicy struct {
	Attempts int           `yaml:"attempts" cbor:"attempts"`
	Delay    time.Duration `yaml:"delay" cbor:"delay"`
}

// SandboxSpec describes the filesystem sandbox for a whole run.
type SandboxSpec struct {
	Enabled bool `yaml:"enabled" cbor:"enabled"`
	// Command is an external prefix such as "unshare --user --mount --map-root-user"
	// used instead of creating namespaces directly.
	Command string `yaml:"command" cbor:"command"`
	// Network creates a network namespace, leaving the sandbox without network access.
	Network           bool    `yaml:"network" cbor:"network"`
	ReadOnlyMountBase []Mount `yaml:"readOnlyMountBase" cbor:"readOnlyMountBase"`
	ReadOnlyMount     []Mount `yaml:"readOnlyMount" cbor:"readOnlyMount"`
	ReadWriteMount    []Mount `yaml:"readWriteMount" cbor:"readWriteMount"`
	// StateDir is the parent of the per-run state directory, os.TempDir() when empty.
	StateDir string `yaml:"stateDir" cbor:"stateDir"`
}

// Mount is a path bound at the same location, or a source bound at a different target.
type Mount struct {
	Source string `yaml:"source" cbor:"source"`
	Target string `yaml:"target" cbor:"target"`
}

// UnmarshalYAML accepts a plain path or a {source, target} mapping.
func (m *Mount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var path string
		if err := node.Decode(&path); err != nil {
			return err
		}
		*m = Mount{Source: path, Target: path}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: mount must be a path or {source, target}", node.Line)
	}
	type plain Mount
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Target == "" {
		p.Target = p.Source
	}
	*m = Mount(p)
	return nil
}

// DefaultReadOnlyMountBase lists the system directories visible inside the sandbox.
func DefaultReadOnlyMountBase() []Mount {
	paths := []string{"/bin", "/etc", "/lib", "/lib32", "/lib64", "/libx32", "/opt", "/sbin", "/usr"}
	mounts := make([]Mount, len(paths))
	for i, p := range paths {
		mounts[i] = Mount{Source: p, Target: p}
	}
	return mounts
}

// DefaultLanguages returns the built-in suffix table.
func DefaultLanguages() map[string]Language {
	gxx := CompilerList{{Alternatives: []Command{ArgvCommand("g++", "-Wall")}}}
	return map[string]Language{
		"c": {
			Compilers: CompilerList{{Alternatives: []Command{
				ArgvCommand("dcc"),
				ArgvCommand("clang", "-Wall"),
				ArgvCommand("gcc", "-Wall"),
			}}},
		},
		"cc":   {Compilers: gxx},
		"cpp":  {Compilers: gxx},
		"java": {Compilers: CompilerList{{Alternatives: []Command{ArgvCommand("javac")}}}},
		"rs":   {Compilers: CompilerList{{Alternatives: []Command{ArgvCommand("rustc")}}}},
	}
}

// ApplyDefaults fills zero values with built-in defaults.
func (s *Settings) ApplyDefaults() {
	if s.Retry.Attempts <= 0 {
		s.Retry.Attempts = defaultRetryAttempts
	}
	if s.Retry.Delay <= 0 {
		s.Retry.Delay = defaultRetryDelay
	}
	defaults := DefaultLanguages()
	if s.Languages == nil {
		s.Languages = defaults
	} else {
		for suffix, lang := range defaults {
			if _, ok := s.Languages[suffix]; !ok {
				s.Languages[suffix] = lang
			}
		}
	}
	if s.Sandbox.ReadOnlyMountBase == nil {
		s.Sandbox.ReadOnlyMountBase = DefaultReadOnlyMountBase()
	}
}
