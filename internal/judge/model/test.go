package model

import (
	"maps"
	"slices"

	"autotest/internal/judge/compare"
	"autotest/internal/judge/sandbox/spec"
)

// Test is one test record. The YAML-facing fields are filled by the suite
// loader; the finalized fields are computed once by Finalize and never
// change afterwards.
type Test struct {
	Label       string   `yaml:"label" cbor:"label"`
	Description string   `yaml:"description" cbor:"description"`
	Program     string   `yaml:"program" cbor:"program"`
	Command     Command  `yaml:"command" cbor:"command"`
	Arguments   []string `yaml:"arguments" cbor:"arguments,omitempty"`
	// Files are glob patterns for the files a submission must supply.
	Files []string `yaml:"files" cbor:"files,omitempty"`

	Stdin          Stream            `yaml:"stdin" cbor:"stdin"`
	ExpectedStdout Stream            `yaml:"expectedStdout" cbor:"expectedStdout"`
	ExpectedStderr Stream            `yaml:"expectedStderr" cbor:"expectedStderr"`
	ExpectedFiles  map[string]string `yaml:"expectedFiles" cbor:"expectedFiles,omitempty"`

	// Environment holds variables set for the test on top of the kept and base environment.
	Environment     map[string]string `yaml:"environment" cbor:"environment,omitempty"`
	EnvironmentKept string            `yaml:"environmentKept" cbor:"environmentKept"`

	Limits  LimitParams     `yaml:",inline" cbor:"limits"`
	Compare compare.Options `yaml:",inline" cbor:"compare"`
	// PostprocessCommand filters actual and expected output before comparison.
	PostprocessCommand Command `yaml:"postprocessOutputCommand" cbor:"postprocessOutputCommand"`

	Compilers CompilerList `yaml:"compilers" cbor:"compilers,omitempty"`
	// CompilerArgs replace the submitted files on every compile command when set.
	CompilerArgs      []string     `yaml:"compilerArgs" cbor:"compilerArgs,omitempty"`
	Checkers          CompilerList `yaml:"checkers" cbor:"checkers,omitempty"`
	PreCompileCommand Command      `yaml:"preCompileCommand" cbor:"preCompileCommand"`
	SetupCommand      Command      `yaml:"setupCommand" cbor:"setupCommand"`

	AllowUnexpectedStderr bool `yaml:"allowUnexpectedStderr" cbor:"allowUnexpectedStderr"`
	DccOutputChecking     bool `yaml:"dccOutputChecking" cbor:"dccOutputChecking"`
	UnicodeStdout         bool `yaml:"unicodeStdout" cbor:"unicodeStdout"`
	UnicodeStderr         bool `yaml:"unicodeStderr" cbor:"unicodeStderr"`
	UnicodeFiles          bool `yaml:"unicodeFiles" cbor:"unicodeFiles"`

	// Finalized fields.
	RunLimits       spec.Limits `yaml:"-" cbor:"runLimits"`
	RunCommand      Command     `yaml:"-" cbor:"runCommand"`
	Env             []string    `yaml:"-" cbor:"env,omitempty"`
	CompileCommands []Command   `yaml:"-" cbor:"compileCommands,omitempty"`
	CheckCommands   []Command   `yaml:"-" cbor:"checkCommands,omitempty"`
	Finalized       bool        `yaml:"-" cbor:"finalized"`
}

// defaultTest returns the parameter template every suite starts from.
func defaultTest() Test {
	return Test{
		Compare:         compare.DefaultOptions(),
		EnvironmentKept: DefaultEnvironmentKept,
		UnicodeStdout:   true,
		UnicodeStderr:   true,
		UnicodeFiles:    true,
	}
}

// CompareOptions returns the comparison options for stdout, stderr or files.
func (t *Test) CompareOptions(unicode bool) compare.Options {
	opts := t.Compare
	opts.Filter = nil
	if !t.PostprocessCommand.IsZero() {
		opts.Filter = t.PostprocessCommand.Vector()
	}
	opts.Binary = !unicode
	return opts
}

// Clone returns a deep copy so that decoding into the copy never touches t.
func (t Test) Clone() Test {
	c := t
	c.Command = t.Command.clone()
	c.Arguments = slices.Clone(t.Arguments)
	c.Files = slices.Clone(t.Files)
	c.Stdin = t.Stdin.clone()
	c.ExpectedStdout = t.ExpectedStdout.clone()
	c.ExpectedStderr = t.ExpectedStderr.clone()
	c.ExpectedFiles = maps.Clone(t.ExpectedFiles)
	c.Environment = maps.Clone(t.Environment)
	c.Limits = t.Limits.Merge(LimitParams{})
	c.Compare.Filter = slices.Clone(t.Compare.Filter)
	c.PostprocessCommand = t.PostprocessCommand.clone()
	c.Compilers = t.Compilers.clone()
	c.CompilerArgs = slices.Clone(t.CompilerArgs)
	c.Checkers = t.Checkers.clone()
	c.PreCompileCommand = t.PreCompileCommand.clone()
	c.SetupCommand = t.SetupCommand.clone()
	c.RunCommand = t.RunCommand.clone()
	c.Env = slices.Clone(t.Env)
	c.CompileCommands = cloneCommands(t.CompileCommands)
	c.CheckCommands = cloneCommands(t.CheckCommands)
	return c
}

func cloneCommands(in []Command) []Command {
	if in == nil {
		return nil
	}
	out := make([]Command, len(in))
	for i, c := range in {
		out[i] = c.clone()
	}
	return out
}
