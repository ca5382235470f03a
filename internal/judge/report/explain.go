package report

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"autotest/internal/judge/compare"
	"autotest/internal/judge/model"
	"autotest/internal/judge/sandbox/result"
)

const (
	maxShownBytes   = 4096
	maxShownStdin   = 32
	tooMuchOutput   = "Error too much output"
	dccStopped      = "Execution stopped because"
	reproduceIndent = "  "
)

// DefaultExplainer writes a plain description of what went wrong: the
// program's errors or output next to what was expected, the input and the
// commands that reproduce the run.
type DefaultExplainer struct {
	palette palette
}

// Explain implements Explainer.
func (e DefaultExplainer) Explain(t *model.Test, run result.TestRun) string {
	v, ok := run.SelectedVariant()
	if !ok {
		return ""
	}
	var b strings.Builder
	stdout := v.Result.Stdout
	stderr := v.Result.Stderr

	if !v.StderrOK {
		switch {
		case len(t.ExpectedStderr.Bytes()) > 0:
			b.WriteString(e.difference("stderr", t.ExpectedStderr.Bytes(), stderr, t.UnicodeStderr))
		case t.DccOutputChecking && bytes.Contains(stderr, []byte(dccStopped)):
			lines := strings.Count(compare.DecodeText(stdout), "\n")
			fmt.Fprintf(&b, "Your program produced these %d lines of output before it was terminated:\n", lines)
			b.WriteString(e.palette.cyan(shown(stdout)))
			b.WriteString(compare.DecodeText(stderr) + "\n")
		default:
			errText := e.palette.red(shown(stderr))
			if bytes.Contains(stderr, []byte(tooMuchOutput)) {
				errText += fmt.Sprintf("Your program produced these %d bytes of output before it was terminated:\n", len(stdout))
				errText += e.palette.yellow(shown(stdout))
			}
			if v.StdoutOK && len(t.ExpectedStdout.Bytes()) > 0 {
				b.WriteString("Your program's output was correct but errors occurred:\n")
				b.WriteString(errText)
				b.WriteString("Apart from the above errors, your program's output was correct.\n")
			} else {
				b.WriteString("Your program produced these errors:\n")
				b.WriteString(errText)
			}
		}
	}
	if !v.StdoutOK && v.StderrOK {
		b.WriteString(e.difference("output", t.ExpectedStdout.Bytes(), stdout, t.UnicodeStdout))
	}
	if v.StdoutOK && v.StderrOK && v.Mismatch != nil && v.Mismatch.Stream != string(compare.StreamStdout) &&
		v.Mismatch.Stream != string(compare.StreamStderr) {
		b.WriteString(e.fileDifference(t, v.Mismatch))
	}

	stdin := t.Stdin.Bytes()
	if len(stdin) > 0 && bytes.Count(stdin, []byte("\n")) < maxShownStdin {
		fmt.Fprintf(&b, "\nThe input for this test was:\n%s\n", e.palette.yellow(compare.DecodeText(stdin)))
		if stdin[len(stdin)-1] != '\n' && bytes.Contains(stdin[:len(stdin)-1], []byte("\n")) {
			b.WriteString("Note: last character in above input is not '\\n'\n\n")
		}
	}
	b.WriteString(e.reproduce(t, v))
	return b.String()
}

func (e DefaultExplainer) difference(name string, expected, actual []byte, unicode bool) string {
	if !unicode {
		return fmt.Sprintf("You had 0x%s as %s. You should have 0x%s\n\n", hex.EncodeToString(actual), name, hex.EncodeToString(expected))
	}
	var b strings.Builder
	if len(actual) == 0 {
		fmt.Fprintf(&b, "Your program produced no %s\n", name)
	} else {
		fmt.Fprintf(&b, "Your program produced this %s:\n", name)
		b.WriteString(e.palette.cyan(shown(actual)))
	}
	if len(expected) == 0 {
		fmt.Fprintf(&b, "\nNo %s was expected\n", name)
	} else {
		fmt.Fprintf(&b, "\nThe correct %s for this test is:\n", name)
		b.WriteString(e.palette.green(shown(expected)))
	}
	return b.String()
}

func (e DefaultExplainer) fileDifference(t *model.Test, m *result.Mismatch) string {
	expected := []byte(t.ExpectedFiles[m.Stream])
	switch m.Kind {
	case result.MismatchFileMissing:
		return fmt.Sprintf("Your program was expected to create a file named '%s' and did not\n", m.Stream)
	case result.MismatchFileEmpty:
		return fmt.Sprintf("Your program created an empty file named '%s'\n", m.Stream)
	}
	if !t.UnicodeFiles {
		return fmt.Sprintf("Your non-unicode files had incorrect output\nFile %s had the following error:\nexpected: 0x%s\n",
			m.Stream, hex.EncodeToString(expected))
	}
	return fmt.Sprintf("File %s had incorrect contents.\nThe correct contents are:\n%s", m.Stream, e.palette.green(shown(expected)))
}

func (e DefaultExplainer) reproduce(t *model.Test, v result.VariantRun) string {
	var b strings.Builder
	b.WriteString("You can reproduce this test by executing these commands:\n")
	if v.Compiler != "" {
		b.WriteString(e.palette.blue(reproduceIndent+v.Compiler) + "\n")
	}
	command := t.RunCommand.String()
	if stdin := t.Stdin.Bytes(); len(stdin) > 0 {
		if t.RunCommand.IsShell() && strings.ContainsAny(command, ";&|") {
			command = "(" + command + ")"
		}
		command = echoCommand(compare.DecodeText(stdin)) + " | " + command
	}
	b.WriteString(e.palette.blue(reproduceIndent+command) + "\n")
	return b.String()
}

// echoCommand returns a shell command printing s exactly.
func echoCommand(s string) string {
	if strings.HasSuffix(s, "\n") && !strings.Contains(s, "\\") {
		return "echo " + shellQuote(strings.TrimSuffix(s, "\n"))
	}
	return "printf '%s' " + shellQuote(s)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shown decodes b for display, cut to a readable size and newline terminated.
func shown(b []byte) string {
	s := compare.DecodeText(b)
	if len(s) > maxShownBytes {
		s = s[:maxShownBytes] + "\n...\n"
	}
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
