// Package runner prepares and executes one test: checkers, hooks, required
// files, compilation for every compiler variant, linking, execution with
// retries and evaluation.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"autotest/internal/judge/compare"
	"autotest/internal/judge/model"
	"autotest/internal/judge/sandbox/engine"
	"autotest/internal/judge/sandbox/observer"
	"autotest/internal/judge/sandbox/result"
	"autotest/pkg/utils/contextkey"
	"autotest/pkg/utils/logger"

	"go.uber.org/zap"
)

// Reasons a test is not run.
const (
	ReasonCheckFailed       = "check failed"
	ReasonCompileFailed     = "compilation failed"
	ReasonMissingFilePrefix = "these files are missing: "
)

// Runner runs tests against one working directory.
type Runner struct {
	engine   engine.Engine
	comparer *compare.Comparer
	state    *RunState
	workDir  string
	retry    model.RetryPolicy
	showCmd  bool
	metrics  observer.MetricsRecorder
}

// Config holds runner dependencies and settings.
type Config struct {
	Engine   engine.Engine
	Comparer *compare.Comparer
	// State is shared by every test of one run.
	State              *RunState
	WorkDir            string
	Retry              model.RetryPolicy
	ShowCompileCommand bool
	Metrics            observer.MetricsRecorder
}

// New creates a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work dir is required")
	}
	if cfg.Comparer == nil {
		cfg.Comparer = compare.NewComparer(compare.EngineFilter{Engine: cfg.Engine})
	}
	if cfg.State == nil {
		cfg.State = NewRunState()
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 1
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observer.NoopMetricsRecorder{}
	}
	return &Runner{
		engine:   cfg.Engine,
		comparer: cfg.Comparer,
		state:    cfg.State,
		workDir:  cfg.WorkDir,
		retry:    cfg.Retry,
		showCmd:  cfg.ShowCompileCommand,
		metrics:  cfg.Metrics,
	}, nil
}

// PrepareAndRun runs one finalized test and returns its verdict. Failures of
// the submission are verdicts; the error is reserved for internal faults.
func (r *Runner) PrepareAndRun(ctx context.Context, t *model.Test) (result.TestRun, error) {
	ctx = contextkey.WithTestLabel(ctx, t.Label)
	run := result.TestRun{Label: t.Label, Description: t.Description, Selected: -1}
	var out bytes.Buffer
	defer func() { run.Output = out.String() }()

	files, missing := r.globFiles(t.Files)

	ok, err := r.runCheckers(ctx, t, files, &out)
	if err != nil {
		return run, err
	}
	if !ok {
		run.Verdict = notRun(ReasonCheckFailed)
		return finish(ctx, run), nil
	}
	if len(missing) > 0 {
		run.Verdict = notRun(ReasonMissingFilePrefix + strings.Join(missing, " "))
		return finish(ctx, run), nil
	}

	ok, err = r.compileAll(ctx, t, files, &out)
	if err != nil {
		return run, err
	}
	if !ok {
		run.Verdict = notRun(ReasonCompileFailed)
		return finish(ctx, run), nil
	}
	if t.Program != "" {
		r.chmodProgram(ctx, t.Program)
	}

	variants := t.CompileCommands
	if len(variants) == 0 {
		variants = []model.Command{{}}
	}
	for _, compile := range variants {
		variant, err := r.runVariant(ctx, t, compile, files, &out)
		if err != nil {
			return run, err
		}
		run.Variants = append(run.Variants, variant)
		if !variant.StderrOK && !t.AllowUnexpectedStderr {
			break
		}
	}

	run.Selected = selectVariant(run.Variants)
	if run.Selected < 0 {
		run.Verdict = result.Verdict{Status: result.StatusPassed}
		return finish(ctx, run), nil
	}
	chosen := run.Variants[run.Selected]
	run.Verdict = result.Verdict{Status: result.StatusFailed, Mismatch: chosen.Mismatch, Reason: chosen.Reason}
	return finish(ctx, run), nil
}

func notRun(reason string) result.Verdict {
	return result.Verdict{Status: result.StatusNotRun, Reason: reason}
}

func finish(ctx context.Context, run result.TestRun) result.TestRun {
	logger.Info(ctx, "test finished",
		zap.String("status", string(run.Verdict.Status)),
		zap.String("reason", run.Verdict.Reason),
		zap.Int("variants", len(run.Variants)),
	)
	return run
}

// globFiles expands the required file patterns relative to the working
// directory. Patterns matching nothing are reported as missing.
func (r *Runner) globFiles(patterns []string) (files, missing []string) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(r.path(pattern))
		if err != nil || len(matches) == 0 {
			missing = append(missing, pattern)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if rel, err := filepath.Rel(r.workDir, m); err == nil && !filepath.IsAbs(pattern) {
				m = rel
			}
			files = append(files, m)
		}
	}
	return files, missing
}

// runCheckers runs every checker once per file, then the pre-compile hook.
// Results are cached for the run; failures are never retried.
func (r *Runner) runCheckers(ctx context.Context, t *model.Test, files []string, out *bytes.Buffer) (bool, error) {
	for _, checker := range t.CheckCommands {
		for _, file := range files {
			ok, err := r.runSupport(ctx, supportCall{cmd: checker, args: []string{file}, cache: true, print: true}, out)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	if t.PreCompileCommand.IsZero() {
		return true, nil
	}
	return r.runSupport(ctx, supportCall{cmd: t.PreCompileCommand, cache: true}, out)
}

// compileAll builds every compiler variant before any of them runs, so a
// broken variant stops the test before execution starts.
func (r *Runner) compileAll(ctx context.Context, t *model.Test, files []string, out *bytes.Buffer) (bool, error) {
	var args []string
	if len(t.CompilerArgs) == 0 {
		args = files
	}
	for _, compile := range t.CompileCommands {
		vctx := contextkey.WithVariant(ctx, compile.String())
		line := compile.WithArgs(args...).String()
		if ok, cached := r.state.supportResult(line); cached {
			if !ok {
				return false, nil
			}
			continue
		}
		ok, err := r.runSupport(vctx, supportCall{
			cmd:     compile,
			args:    args,
			cache:   true,
			print:   r.showCmd,
			unlink:  t.Program,
			compile: true,
		}, out)
		if err != nil {
			return false, err
		}
		if !ok {
			logger.Info(vctx, "compilation failed", zap.String("command", line))
			return false, nil
		}
		if err := r.renameCompiled(vctx, t.Program, UniqueName(t.Program, compile, files)); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Runner) runVariant(ctx context.Context, t *model.Test, compile model.Command, files []string, out *bytes.Buffer) (result.VariantRun, error) {
	variant := result.VariantRun{}
	if !compile.IsZero() {
		var args []string
		if len(t.CompilerArgs) == 0 {
			args = files
		}
		variant.Compiler = compile.WithArgs(args...).String()
		ctx = contextkey.WithVariant(ctx, compile.String())
		if err := r.linkProgram(ctx, t.Program, UniqueName(t.Program, compile, files)); err != nil {
			return variant, err
		}
	}
	if !t.SetupCommand.IsZero() {
		ok, err := r.runSupport(ctx, supportCall{cmd: t.SetupCommand}, out)
		if err != nil {
			return variant, err
		}
		if !ok {
			logger.Debug(ctx, "setup command failed", zap.String("command", t.SetupCommand.String()))
		}
	}

	res, attempts, err := r.execute(ctx, t)
	if err != nil {
		return variant, err
	}
	variant.Result = res
	variant.Attempts = attempts
	if err := r.evaluate(ctx, t, &variant); err != nil {
		return variant, err
	}
	verdict := result.StatusPassed
	if !variant.Passed {
		verdict = result.StatusFailed
	}
	r.metrics.ObserveRun(ctx, t.Label, string(verdict), res.WallTime, res.MaxRSSKB, int64(len(res.Stdout)))
	return variant, nil
}

// selectVariant picks the failure to report: the last failed variant when its
// stderr was unexpected and not just a leak report, else the first failure.
func selectVariant(variants []result.VariantRun) int {
	var failed []int
	for i, v := range variants {
		if !v.Passed {
			failed = append(failed, i)
		}
	}
	if len(failed) == 0 {
		return -1
	}
	last := variants[failed[len(failed)-1]]
	if !last.StderrOK && !bytes.Contains(last.Result.Stderr, []byte(benignStderr)) {
		return failed[len(failed)-1]
	}
	return failed[0]
}

// benignStderr marks a leak report, less informative than other errors.
const benignStderr = "free not called"

func (r *Runner) retryDelay() time.Duration {
	if r.retry.Delay < 0 {
		return 0
	}
	return r.retry.Delay
}
