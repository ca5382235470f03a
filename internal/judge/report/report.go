// Package report prints per-test verdict lines and the run summary.
package report

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"autotest/internal/judge/model"
	"autotest/internal/judge/sandbox/result"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorMode selects when output is colorized.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Explainer turns a failed test into the long explanation printed under its
// verdict line. An empty explanation prints nothing.
type Explainer interface {
	Explain(t *model.Test, run result.TestRun) string
}

var hexConstant = regexp.MustCompile(`(?i)0x[0-9a-f]+`)

// Reporter writes the human-readable report of one run.
type Reporter struct {
	out       io.Writer
	explainer Explainer
	palette   palette
	// seen maps an explanation, hex constants removed, to the first test that produced it.
	seen map[string]string
}

// New creates a reporter writing to out. A nil explainer uses DefaultExplainer.
func New(out io.Writer, mode ColorMode, explainer Explainer) *Reporter {
	p := newPalette(useColor(out, mode))
	if explainer == nil {
		explainer = DefaultExplainer{palette: p}
	}
	return &Reporter{
		out:       out,
		explainer: explainer,
		palette:   p,
		seen:      make(map[string]string),
	}
}

func useColor(out io.Writer, mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Test prints the verdict of one test, preceded by any output its support
// commands produced.
func (r *Reporter) Test(t *model.Test, run result.TestRun) {
	if run.Output != "" {
		fmt.Fprint(r.out, run.Output)
		if !strings.HasSuffix(run.Output, "\n") {
			fmt.Fprintln(r.out)
		}
	}
	prefix := fmt.Sprintf("Test %s (%s) - ", run.Label, run.Description)
	switch run.Verdict.Status {
	case result.StatusPassed:
		fmt.Fprintln(r.out, prefix+r.palette.green("passed"))
	case result.StatusNotRun:
		fmt.Fprintln(r.out, prefix+r.palette.plain("could not be run")+" because "+r.palette.red(run.Verdict.Reason))
	default:
		r.failed(t, run, prefix)
	}
}

func (r *Reporter) failed(t *model.Test, run result.TestRun, prefix string) {
	explanation := r.explainer.Explain(t, run)
	key := hexConstant.ReplaceAllString(explanation, "")
	if first, ok := r.seen[key]; ok {
		fmt.Fprintf(r.out, "%s%s (%s - same as Test %s)\n", prefix, r.palette.red("failed"), run.Verdict.Reason, first)
		return
	}
	fmt.Fprintf(r.out, "%s%s (%s)\n", prefix, r.palette.red("failed"), run.Verdict.Reason)
	fmt.Fprint(r.out, explanation)
	r.seen[key] = run.Label
}

// Summary prints the closing tally line.
func (r *Reporter) Summary(s result.Summary) {
	var b strings.Builder
	if s.Passed > 0 {
		b.WriteString(r.palette.green(fmt.Sprintf("%d tests passed", s.Passed)))
	} else {
		b.WriteString(r.palette.red("0 tests passed"))
	}
	b.WriteString(" ")
	if s.Failed > 0 {
		b.WriteString(r.palette.red(fmt.Sprintf("%d tests failed", s.Failed)))
	} else {
		b.WriteString(r.palette.green("0 tests failed"))
	}
	if s.NotRun > 0 {
		fmt.Fprintf(&b, " %d tests could not be run", s.NotRun)
	}
	fmt.Fprintln(r.out, b.String())
}

type palette struct {
	enabled bool
}

func newPalette(enabled bool) palette {
	return palette{enabled: enabled}
}

func (p palette) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if p.enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func (p palette) plain(s string) string  { return s }
func (p palette) green(s string) string  { return p.paint(color.FgGreen, s) }
func (p palette) red(s string) string    { return p.paint(color.FgRed, s) }
func (p palette) yellow(s string) string { return p.paint(color.FgYellow, s) }
func (p palette) cyan(s string) string   { return p.paint(color.FgCyan, s) }
func (p palette) blue(s string) string   { return p.paint(color.FgBlue, s) }
