package model

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	appErr "autotest/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Suite is a loaded and finalized list of tests.
type Suite struct {
	Tests []Test
}

// LoadOptions supplies run-wide inputs to the loader.
type LoadOptions struct {
	Settings Settings
	// LookPath resolves compiler alternatives; exec.LookPath when nil.
	LookPath LookPathFunc
	// Environ is the inherited environment; os.Environ() when nil.
	Environ []string
}

type suiteDocument struct {
	Parameters yaml.Node   `yaml:"parameters"`
	Tests      []yaml.Node `yaml:"tests"`
}

var labelSuffixPattern = regexp.MustCompile(`[_0-9]*$`)

// LoadSuite reads and finalizes the suite at path.
func LoadSuite(path string, opts LoadOptions) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SpecificationError, "read suite %s", path)
	}
	return ParseSuite(data, filepath.Dir(path), opts)
}

// ParseSuite decodes a suite document. Parameters are decoded into the
// default template first; every test then starts from a deep copy of it.
func ParseSuite(data []byte, dir string, opts LoadOptions) (*Suite, error) {
	var doc suiteDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, appErr.Wrapf(err, appErr.SpecificationError, "parse suite")
	}

	template := defaultTest()
	if doc.Parameters.Kind != 0 {
		if err := doc.Parameters.Decode(&template); err != nil {
			return nil, appErr.Wrapf(err, appErr.SpecificationError, "parse parameters")
		}
	}

	suite := &Suite{Tests: make([]Test, 0, len(doc.Tests))}
	seen := make(map[string]struct{}, len(doc.Tests))
	for i := range doc.Tests {
		t := template.Clone()
		if err := doc.Tests[i].Decode(&t); err != nil {
			return nil, appErr.Wrapf(err, appErr.SpecificationError, "parse test %d", i+1)
		}
		if t.Label == "" {
			t.Label = strconv.Itoa(i + 1)
		}
		if _, dup := seen[t.Label]; dup {
			return nil, appErr.Newf(appErr.DuplicateTestLabel, "duplicate test label %q", t.Label)
		}
		seen[t.Label] = struct{}{}

		if err := Finalize(&t, dir, opts); err != nil {
			return nil, err
		}
		suite.Tests = append(suite.Tests, t)
	}
	return suite, nil
}

// Finalize computes the derived fields of t and validates it.
func Finalize(t *Test, dir string, opts LoadOptions) error {
	if t.Finalized {
		return nil
	}
	if strings.TrimSpace(t.Label) == "" {
		return appErr.ValidationError("label", "must not be empty")
	}
	wrap := func(err error) error {
		return appErr.Wrapf(err, appErr.GetCode(err), "test %s", t.Label).WithDetail("label", t.Label)
	}

	var err error
	if t.Stdin, err = t.Stdin.resolve(dir, t.Label, "stdin"); err != nil {
		return wrap(err)
	}
	if t.ExpectedStdout, err = t.ExpectedStdout.resolve(dir, t.Label, "expected_stdout"); err != nil {
		return wrap(err)
	}
	if t.ExpectedStderr, err = t.ExpectedStderr.resolve(dir, t.Label, "expected_stderr"); err != nil {
		return wrap(err)
	}

	lang, hasLang := languageFor(t.Files, opts.Settings.Languages)
	compilers := t.Compilers
	if compilers == nil && hasLang {
		compilers = lang.Compilers
	}
	compilerArgs := t.CompilerArgs
	if compilerArgs == nil && hasLang {
		compilerArgs = lang.CompilerArgs
	}
	checkers := t.Checkers
	if checkers == nil && hasLang {
		checkers = lang.Checkers
	}

	if t.Program == "" && len(compilers) > 0 && len(t.Files) > 0 {
		base := filepath.Base(t.Files[0])
		t.Program = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if t.Program == "" && t.Command.IsZero() {
		t.Program = labelSuffixPattern.ReplaceAllString(t.Label, "")
	}
	if len(compilers) > 0 && t.Program == "" {
		return wrap(appErr.ValidationError("program", "is required when compilers are set"))
	}

	resolved, err := compilers.Resolve("compilers", t.Program, opts.LookPath)
	if err != nil {
		return wrap(err)
	}
	t.CompileCommands = compileCommands(resolved, substituteAll(compilerArgs, t.Program), t.Program)
	t.CompilerArgs = slices.Clone(compilerArgs)

	if t.CheckCommands, err = checkers.Resolve("checkers", t.Program, opts.LookPath); err != nil {
		return wrap(err)
	}

	t.RunCommand = t.Command.clone()
	if t.RunCommand.IsZero() && t.Program != "" {
		program := t.Program
		if !strings.Contains(program, "/") && (len(resolved) > 0 || len(t.Files) > 0) {
			program = "./" + program
		}
		t.RunCommand = ArgvCommand(append([]string{program}, t.Arguments...)...)
	}
	if t.RunCommand.IsZero() {
		return wrap(appErr.ValidationError("command", "must not be empty"))
	}

	base := t.Limits.Merge(opts.Settings.Limits)
	t.RunLimits = base.Finalize(len(t.ExpectedStdout.Text), len(t.ExpectedStderr.Text))
	if err := t.RunLimits.Validate(); err != nil {
		return wrap(appErr.Wrap(err, appErr.InvalidValue))
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	if t.Env, err = buildEnvironment(environ, t.EnvironmentKept, t.Environment); err != nil {
		return wrap(err)
	}

	t.Finalized = true
	return nil
}

// languageFor looks up the language of the first file by suffix.
func languageFor(files []string, languages map[string]Language) (Language, bool) {
	if len(files) == 0 {
		return Language{}, false
	}
	suffix := strings.TrimPrefix(filepath.Ext(files[0]), ".")
	if suffix == "" {
		return Language{}, false
	}
	lang, ok := languages[suffix]
	return lang, ok
}

func substituteAll(args []string, program string) []string {
	if args == nil {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		if a == "%" {
			a = program
		}
		out[i] = a
	}
	return out
}

// compileCommands appends the compiler arguments. C-like compilers without
// explicit arguments get "-o program" so the output lands on the program name.
func compileCommands(compilers []Command, compilerArgs []string, program string) []Command {
	if len(compilers) == 0 {
		return nil
	}
	commands := make([]Command, 0, len(compilers))
	for _, cmd := range compilers {
		args := compilerArgs
		if isCLikeCompiler(cmd.Executable()) && !cmd.IsShell() {
			switch {
			case len(args) > 0 && slices.Contains(cmd.Argv, "-o") && slices.Contains(args, "-o"):
				cmd = removeOutputFlag(cmd)
			case len(args) == 0 && !slices.Contains(cmd.Argv, "-o") && !slices.Contains(cmd.Argv, program):
				args = []string{"-o", program}
			}
		}
		commands = append(commands, cmd.WithArgs(args...))
	}
	return commands
}

func isCLikeCompiler(exe string) bool {
	name := filepath.Base(exe)
	return strings.Contains(name, "cc") || strings.Contains(name, "clang") || strings.Contains(name, "++")
}

func removeOutputFlag(cmd Command) Command {
	i := slices.Index(cmd.Argv, "-o")
	end := min(i+2, len(cmd.Argv))
	argv := append(slices.Clone(cmd.Argv[:i]), cmd.Argv[end:]...)
	return Command{Argv: argv}
}
