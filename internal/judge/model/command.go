package model

import (
	"fmt"
	"strings"

	"autotest/internal/judge/sandbox/spec"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

// Command is either an argument vector or a shell string.
// A YAML scalar becomes a shell string, a YAML sequence becomes an argument vector.
type Command struct {
	Argv  []string `cbor:"argv,omitempty"`
	Shell string   `cbor:"shell,omitempty"`
}

// ArgvCommand builds an argument-vector command.
func ArgvCommand(args ...string) Command {
	return Command{Argv: args}
}

// ShellCommand builds a shell-string command.
func ShellCommand(s string) Command {
	return Command{Shell: s}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*c = Command{Shell: s}
		return nil
	case yaml.SequenceNode:
		var argv []string
		if err := node.Decode(&argv); err != nil {
			return err
		}
		*c = Command{Argv: argv}
		return nil
	}
	return fmt.Errorf("line %d: command must be a string or a list of strings", node.Line)
}

// IsZero reports whether no command is set.
func (c Command) IsZero() bool {
	return len(c.Argv) == 0 && strings.TrimSpace(c.Shell) == ""
}

// IsShell reports whether the command runs through /bin/sh.
func (c Command) IsShell() bool {
	return len(c.Argv) == 0 && c.Shell != ""
}

// Vector returns the argument vector handed to the process runner.
func (c Command) Vector() []string {
	if c.IsShell() {
		return spec.ShellCommand(c.Shell)
	}
	return append([]string(nil), c.Argv...)
}

// Executable returns the program the command starts, for PATH lookups.
func (c Command) Executable() string {
	if !c.IsShell() {
		if len(c.Argv) == 0 {
			return ""
		}
		return c.Argv[0]
	}
	fields, err := shlex.Split(c.Shell)
	if err != nil || len(fields) == 0 {
		return strings.TrimSpace(c.Shell)
	}
	return fields[0]
}

// WithArgs returns a copy with args appended.
// Shell commands get the arguments joined by spaces.
func (c Command) WithArgs(args ...string) Command {
	if len(args) == 0 {
		return c.clone()
	}
	if c.IsShell() {
		return Command{Shell: c.Shell + " " + strings.Join(args, " ")}
	}
	argv := make([]string, 0, len(c.Argv)+len(args))
	argv = append(argv, c.Argv...)
	return Command{Argv: append(argv, args...)}
}

// Substitute replaces every "%" argument with program.
func (c Command) Substitute(program string) Command {
	if c.IsShell() {
		return c
	}
	argv := make([]string, len(c.Argv))
	for i, a := range c.Argv {
		if a == "%" {
			a = program
		}
		argv[i] = a
	}
	return Command{Argv: argv}
}

// String renders the command the way it would be typed.
func (c Command) String() string {
	if c.IsShell() {
		return c.Shell
	}
	return strings.Join(c.Argv, " ")
}

func (c Command) clone() Command {
	return Command{Argv: append([]string(nil), c.Argv...), Shell: c.Shell}
}
