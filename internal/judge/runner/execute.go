package runner

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"autotest/internal/judge/compare"
	"autotest/internal/judge/model"
	"autotest/internal/judge/sandbox/result"
	"autotest/internal/judge/sandbox/spec"
	"autotest/pkg/utils/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var errSpurious = errors.New("empty output with abnormal exit")

// dccStopped is printed by dcc when it halts a program at runtime.
const dccStopped = "Execution stopped because"

// execute runs the test command, retrying executions that produced nothing
// at all and exited abnormally while output was expected.
func (r *Runner) execute(ctx context.Context, t *model.Test) (result.ExecutionResult, int, error) {
	runSpec := spec.RunSpec{
		Cmd:     t.RunCommand.Vector(),
		Stdin:   t.Stdin.Bytes(),
		Env:     t.Env,
		WorkDir: r.workDir,
		Limits:  t.RunLimits,
	}
	expectStdout := len(t.ExpectedStdout.Bytes()) > 0

	var (
		res      result.ExecutionResult
		attempts int
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryDelay()), uint64(r.retry.Attempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		var err error
		res, err = r.engine.Run(ctx, runSpec)
		if err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		if spurious(res, expectStdout) {
			return errSpurious
		}
		return nil
	}, policy, func(err error, delay time.Duration) {
		logger.Warn(ctx, "retrying execution with no output",
			zap.Int("attempt", attempts),
			zap.Int("exit_code", res.ExitCode),
			zap.Duration("delay", delay),
		)
	})
	if err != nil && !errors.Is(err, errSpurious) {
		return res, attempts, err
	}
	logger.Debug(ctx, "execution finished",
		zap.Int("attempts", attempts),
		zap.Int("exit_code", res.ExitCode),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("stdout_bytes", len(res.Stdout)),
		zap.Int("stderr_bytes", len(res.Stderr)),
	)
	return res, attempts, nil
}

func spurious(res result.ExecutionResult, expectStdout bool) bool {
	return len(res.Stdout) == 0 && len(res.Stderr) == 0 && res.Abnormal() && expectStdout
}

// evaluate fills in the verdict fields of v from its execution result.
// stdout is checked first, then stderr, then expected files.
func (r *Runner) evaluate(ctx context.Context, t *model.Test, v *result.VariantRun) error {
	res := v.Result
	stdoutMismatch, err := r.comparer.Stream(ctx, compare.StreamStdout, res.Stdout, t.ExpectedStdout.Bytes(), t.CompareOptions(t.UnicodeStdout))
	if err != nil {
		return err
	}

	var stderrMismatch *result.Mismatch
	if !t.AllowUnexpectedStderr || stdoutMismatch != nil {
		if t.DccOutputChecking && bytes.Contains(res.Stderr, []byte(dccStopped)) {
			stderrMismatch = &result.Mismatch{Kind: result.MismatchContent, Stream: string(compare.StreamStderr), Reason: "incorrect output"}
		} else {
			stderrMismatch, err = r.comparer.Stream(ctx, compare.StreamStderr, res.Stderr, t.ExpectedStderr.Bytes(), t.CompareOptions(t.UnicodeStderr))
			if err != nil {
				return err
			}
		}
	}
	v.StdoutOK = stdoutMismatch == nil
	v.StderrOK = stderrMismatch == nil

	mismatch := stderrMismatch
	if mismatch == nil {
		mismatch = stdoutMismatch
	}
	if mismatch == nil {
		if mismatch, err = r.checkFiles(ctx, t); err != nil {
			return err
		}
	}
	v.Passed = mismatch == nil
	v.Mismatch = mismatch
	if mismatch != nil {
		v.Reason = mismatch.Reason
		if limit := res.LimitReason(); limit != "" {
			v.Reason = limit
		}
	}
	return nil
}

func (r *Runner) checkFiles(ctx context.Context, t *model.Test) (*result.Mismatch, error) {
	paths := make([]string, 0, len(t.ExpectedFiles))
	for path := range t.ExpectedFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	opts := t.CompareOptions(t.UnicodeFiles)
	for _, path := range paths {
		m, err := r.comparer.File(ctx, r.workDir, path, []byte(t.ExpectedFiles[path]), opts)
		if err != nil || m != nil {
			return m, err
		}
	}
	return nil, nil
}
