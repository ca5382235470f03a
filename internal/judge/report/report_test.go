package report

import (
	"bytes"
	"strings"
	"testing"

	"autotest/internal/judge/model"
	"autotest/internal/judge/sandbox/result"
)

type fixedExplainer map[string]string

func (f fixedExplainer) Explain(t *model.Test, run result.TestRun) string {
	return f[run.Label]
}

func failedRun(label, reason string) result.TestRun {
	return result.TestRun{
		Label:       label,
		Description: "desc " + label,
		Verdict:     result.Verdict{Status: result.StatusFailed, Reason: reason},
		Variants:    []result.VariantRun{{Reason: reason}},
		Selected:    0,
	}
}

func TestReporterLines(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, ColorNever, fixedExplainer{
		"b": "Segfault at 0x7ffd1234\n",
		"c": "Segfault at 0x7ffd9999\n",
	})
	test := &model.Test{}
	r.Test(test, result.TestRun{Label: "a", Description: "simple", Verdict: result.Verdict{Status: result.StatusPassed}, Selected: -1})
	r.Test(test, failedRun("b", "errors"))
	r.Test(test, failedRun("c", "errors"))
	r.Test(test, result.TestRun{
		Label:       "d",
		Description: "needs files",
		Verdict:     result.Verdict{Status: result.StatusNotRun, Reason: "these files are missing: d.c"},
		Output:      "checker says no",
		Selected:    -1,
	})
	r.Summary(result.Summary{Passed: 1, Failed: 2, NotRun: 1})

	want := strings.Join([]string{
		"Test a (simple) - passed",
		"Test b (desc b) - failed (errors)",
		"Segfault at 0x7ffd1234",
		"Test c (desc c) - failed (errors - same as Test b)",
		"checker says no",
		"Test d (needs files) - could not be run because these files are missing: d.c",
		"1 tests passed 2 tests failed 1 tests could not be run",
		"",
	}, "\n")
	if got := out.String(); got != want {
		t.Fatalf("report mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestSummaryLine(t *testing.T) {
	cases := []struct {
		name    string
		summary result.Summary
		want    string
	}{
		{name: "all passed", summary: result.Summary{Passed: 3}, want: "3 tests passed 0 tests failed\n"},
		{name: "none passed", summary: result.Summary{Failed: 2}, want: "0 tests passed 2 tests failed\n"},
		{name: "not run", summary: result.Summary{Passed: 1, NotRun: 2}, want: "1 tests passed 0 tests failed 2 tests could not be run\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			New(&out, ColorNever, nil).Summary(tc.summary)
			if out.String() != tc.want {
				t.Fatalf("summary = %q, want %q", out.String(), tc.want)
			}
		})
	}
}

func TestColorAlways(t *testing.T) {
	var out bytes.Buffer
	New(&out, ColorAlways, nil).Summary(result.Summary{Passed: 1})
	if !strings.Contains(out.String(), "\x1b[32m1 tests passed") {
		t.Fatalf("expected green summary, got %q", out.String())
	}
	out.Reset()
	New(&out, ColorAuto, nil).Summary(result.Summary{Passed: 1})
	if strings.Contains(out.String(), "\x1b[") {
		t.Fatalf("auto mode must not color a buffer, got %q", out.String())
	}
}

func TestDefaultExplainer(t *testing.T) {
	test := &model.Test{
		Stdin:          model.Stream{Text: "3\n", Set: true},
		ExpectedStdout: model.Stream{Text: "6\n", Set: true},
		RunCommand:     model.ArgvCommand("./double"),
		UnicodeStdout:  true,
		UnicodeStderr:  true,
	}
	run := result.TestRun{
		Label:    "double",
		Verdict:  result.Verdict{Status: result.StatusFailed, Reason: "Incorrect output"},
		Selected: 0,
		Variants: []result.VariantRun{{
			Compiler: "gcc -o double double.c",
			Result:   result.ExecutionResult{Stdout: []byte("5\n")},
			StderrOK: true,
			Mismatch: &result.Mismatch{Kind: result.MismatchContent, Stream: "stdout", Reason: "Incorrect output"},
		}},
	}
	got := DefaultExplainer{}.Explain(test, run)
	for _, want := range []string{
		"Your program produced this output:\n5\n",
		"The correct output for this test is:\n6\n",
		"The input for this test was:\n3\n",
		"  gcc -o double double.c\n",
		"  echo '3' | ./double\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("explanation missing %q:\n%s", want, got)
		}
	}
}

func TestDefaultExplainerErrorsWithCorrectOutput(t *testing.T) {
	test := &model.Test{
		ExpectedStdout: model.Stream{Text: "ok\n", Set: true},
		RunCommand:     model.ShellCommand("./prog; echo done"),
		UnicodeStdout:  true,
		UnicodeStderr:  true,
	}
	run := result.TestRun{
		Selected: 0,
		Variants: []result.VariantRun{{
			Result:   result.ExecutionResult{Stdout: []byte("ok\n"), Stderr: []byte("leak detected")},
			StdoutOK: true,
		}},
	}
	got := DefaultExplainer{}.Explain(test, run)
	if !strings.HasPrefix(got, "Your program's output was correct but errors occurred:\nleak detected\n") {
		t.Fatalf("unexpected explanation:\n%s", got)
	}
	if !strings.Contains(got, "  ./prog; echo done\n") {
		t.Fatalf("reproduce command missing:\n%s", got)
	}
}

func TestEchoCommand(t *testing.T) {
	cases := map[string]string{
		"hello\n":       "echo 'hello'",
		"no newline":    "printf '%s' 'no newline'",
		"it's\n":        `echo 'it'\''s'`,
		"back\\slash\n": `printf '%s' 'back\slash` + "\n'",
	}
	for in, want := range cases {
		if got := echoCommand(in); got != want {
			t.Fatalf("echoCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
