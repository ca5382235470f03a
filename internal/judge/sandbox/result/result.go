// Package result defines execution results and test verdicts.
package result

import (
	"fmt"
	"time"
)

// Outcome is the symbolic terminal state of one child process.
type Outcome string

const (
	OutcomeNormal     Outcome = "normal"
	OutcomeCPULimit   Outcome = "cpu-limit-exceeded"
	OutcomeWallClock  Outcome = "wall-clock-exceeded"
	OutcomeFileSize   Outcome = "file-size-limit-exceeded"
	OutcomeSpawnError Outcome = "spawn-error"
)

// ExecutionResult captures raw data from one child process.
type ExecutionResult struct {
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	// ExitCode is the exit status, or the negated signal number when the child was killed.
	ExitCode int
	Outcome  Outcome
	WallTime time.Duration
	CPUTime  time.Duration
	MaxRSSKB int64
}

// Abnormal reports a non-zero exit or any outcome other than a normal exit.
func (r ExecutionResult) Abnormal() bool {
	return r.ExitCode != 0 || r.Outcome != OutcomeNormal
}

// LimitReason returns the short explanation for a resource-limit outcome, or "".
func (r ExecutionResult) LimitReason() string {
	switch r.Outcome {
	case OutcomeCPULimit:
		return "CPU limit exceeded"
	case OutcomeWallClock:
		return "wall-clock time limit exceeded"
	case OutcomeFileSize:
		return "file size limit exceeded"
	}
	if r.StdoutTruncated || r.StderrTruncated {
		return "output limit exceeded"
	}
	return ""
}

// MismatchKind classifies why actual output did not match.
type MismatchKind string

const (
	MismatchEmptyWhenExpected MismatchKind = "empty-when-expected"
	MismatchUnexpected        MismatchKind = "unexpected-when-none-expected"
	MismatchContent           MismatchKind = "content-mismatch"
	MismatchFileMissing       MismatchKind = "file-missing"
	MismatchFileEmpty         MismatchKind = "file-empty"
)

// Mismatch is a failed comparison of one stream or file.
type Mismatch struct {
	Kind MismatchKind
	// Stream is "stdout", "stderr" or the expected file's path.
	Stream string
	// Reason is the short explanation shown next to the verdict.
	Reason string
}

func (m *Mismatch) String() string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", m.Stream, m.Kind)
}

// Status is the final state of a test.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusNotRun Status = "not-run"
)

// Verdict is the per-test decision.
type Verdict struct {
	Status   Status
	Mismatch *Mismatch
	// Reason is the short failure explanation or the reason the test was not run.
	Reason string
}

// VariantRun is one execution of a test against one compiler variant.
type VariantRun struct {
	// Compiler is the compile command for this variant, "" when nothing was compiled.
	Compiler string
	Result   ExecutionResult
	Attempts int
	Passed   bool
	StdoutOK bool
	StderrOK bool
	Mismatch *Mismatch
	Reason   string
}

// TestRun is a test verdict plus the state needed to explain it.
type TestRun struct {
	Label       string
	Description string
	Verdict     Verdict
	Variants    []VariantRun
	// Selected indexes the variant reported for a failed test, -1 otherwise.
	Selected int
	// Output holds support-command output collected while preparing the test.
	Output string
}

// SelectedVariant returns the reported variant, if any.
func (r TestRun) SelectedVariant() (VariantRun, bool) {
	if r.Selected < 0 || r.Selected >= len(r.Variants) {
		return VariantRun{}, false
	}
	return r.Variants[r.Selected], true
}

// Summary aggregates verdicts across a run.
type Summary struct {
	Passed int
	Failed int
	NotRun int
}

// Add tallies one verdict.
func (s *Summary) Add(v Verdict) {
	switch v.Status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	default:
		s.NotRun++
	}
}

// ExitCode is 0 when every test passed and 1 otherwise.
func (s Summary) ExitCode() int {
	if s.Failed > 0 || s.NotRun > 0 {
		return 1
	}
	return 0
}
