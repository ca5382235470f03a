package model

import (
	"fmt"
	"os/exec"
	"strings"

	appErr "autotest/pkg/errors"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// CompilerChoice is one compiler configuration given as alternatives.
// The first alternative whose executable is found on PATH is used.
type CompilerChoice struct {
	Alternatives []Command `cbor:"alternatives"`
}

// CompilerList is a list of compiler or checker configurations.
//
// Accepted YAML forms:
//
//	compilers: "gcc -Wall:clang -Wall"           # legacy, split at ':'
//	compilers: [[gcc, -Wall], "clang -Wall"]     # argv or shell per entry
//	compilers: [[[dcc], [clang, -Wall]]]         # alternatives
type CompilerList []CompilerChoice

// LookPathFunc resolves an executable name, exec.LookPath by default.
type LookPathFunc func(file string) (string, error)

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *CompilerList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		list, err := ParseCompilerString(s)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*l = list
		return nil
	case yaml.SequenceNode:
		list := make(CompilerList, 0, len(node.Content))
		for _, item := range node.Content {
			choice, err := decodeChoice(item)
			if err != nil {
				return err
			}
			list = append(list, choice)
		}
		*l = list
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of commands", node.Line)
}

func decodeChoice(node *yaml.Node) (CompilerChoice, error) {
	// A sequence whose first element is itself a sequence lists alternatives.
	if node.Kind == yaml.SequenceNode && len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		alternatives := make([]Command, 0, len(node.Content))
		for _, alt := range node.Content {
			var cmd Command
			if err := alt.Decode(&cmd); err != nil {
				return CompilerChoice{}, err
			}
			alternatives = append(alternatives, cmd)
		}
		return CompilerChoice{Alternatives: alternatives}, nil
	}
	var cmd Command
	if err := node.Decode(&cmd); err != nil {
		return CompilerChoice{}, err
	}
	if cmd.IsZero() {
		return CompilerChoice{}, fmt.Errorf("line %d: empty command", node.Line)
	}
	return CompilerChoice{Alternatives: []Command{cmd}}, nil
}

// ParseCompilerString splits the legacy colon-separated form into argv commands.
func ParseCompilerString(s string) (CompilerList, error) {
	var list CompilerList
	for _, part := range strings.Split(s, ":") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		argv, err := shlex.Split(part)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", part, err)
		}
		list = append(list, CompilerChoice{Alternatives: []Command{{Argv: argv}}})
	}
	return list, nil
}

// Resolve picks the first alternative whose executable exists.
func (c CompilerChoice) Resolve(lookPath LookPathFunc) (Command, bool) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, alt := range c.Alternatives {
		exe := alt.Executable()
		if exe == "" {
			continue
		}
		if len(c.Alternatives) == 1 {
			return alt, true
		}
		if _, err := lookPath(exe); err == nil {
			return alt, true
		}
	}
	return Command{}, false
}

// Resolve resolves every configuration, substituting "%" with program.
// A configuration with no usable alternative is a specification error.
func (l CompilerList) Resolve(name, program string, lookPath LookPathFunc) ([]Command, error) {
	if len(l) == 0 {
		return nil, nil
	}
	commands := make([]Command, 0, len(l))
	for _, choice := range l {
		cmd, ok := choice.Resolve(lookPath)
		if !ok {
			return nil, appErr.Newf(appErr.CompilerNotFound, "parameter '%s' no alternative found: %s", name, choice)
		}
		commands = append(commands, cmd.Substitute(program))
	}
	return commands, nil
}

func (c CompilerChoice) String() string {
	parts := make([]string, len(c.Alternatives))
	for i, alt := range c.Alternatives {
		parts[i] = alt.String()
	}
	return strings.Join(parts, " | ")
}

func (l CompilerList) clone() CompilerList {
	if l == nil {
		return nil
	}
	out := make(CompilerList, len(l))
	for i, choice := range l {
		alts := make([]Command, len(choice.Alternatives))
		for j, alt := range choice.Alternatives {
			alts[j] = alt.clone()
		}
		out[i] = CompilerChoice{Alternatives: alts}
	}
	return out
}
