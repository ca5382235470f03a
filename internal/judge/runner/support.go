package runner

import (
	"bytes"
	"context"
	"fmt"

	"autotest/internal/judge/model"
	"autotest/internal/judge/sandbox/spec"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"go.uber.org/zap"
)

// mergeScript runs its arguments with stderr folded into stdout.
const mergeScript = `exec "$@" 2>&1`

func mergedVector(argv []string) []string {
	return append([]string{"/bin/sh", "-c", mergeScript, "sh"}, argv...)
}

// supportCall is one checker, hook or compiler invocation. Support commands
// run without resource limits and with empty stdin.
type supportCall struct {
	cmd  model.Command
	args []string
	// cache reuses an earlier result of the same command line within the run.
	cache bool
	print bool
	// unlink names a canonical program removed before the command runs,
	// when it is safe to remove.
	unlink string
	// compile reports the invocation to the metrics recorder.
	compile bool
}

func (r *Runner) runSupport(ctx context.Context, call supportCall, out *bytes.Buffer) (bool, error) {
	cmd := call.cmd.WithArgs(call.args...)
	line := cmd.String()
	if call.cache {
		if ok, cached := r.state.supportResult(line); cached {
			logger.Debug(ctx, "support command cached", zap.String("command", line), zap.Bool("ok", ok))
			return ok, nil
		}
	}
	if call.unlink != "" {
		if err := r.removeStaleLink(ctx, call.unlink); err != nil {
			return false, err
		}
	}
	if call.print {
		fmt.Fprintln(out, line)
	}

	res, err := r.engine.Run(ctx, spec.RunSpec{
		Cmd:     mergedVector(cmd.Vector()),
		WorkDir: r.workDir,
	})
	if err != nil {
		if appErr.Is(err, appErr.Canceled) {
			return false, err
		}
		return false, appErr.Wrapf(err, appErr.SupportCmdFailed, "run %s", line)
	}
	out.Write(res.Stdout)
	out.Write(res.Stderr)

	ok := !res.Abnormal()
	logger.Debug(ctx, "support command finished",
		zap.String("command", line),
		zap.Int("exit_code", res.ExitCode),
		zap.String("outcome", string(res.Outcome)),
	)
	if call.compile {
		r.metrics.ObserveCompile(ctx, line, ok, res.WallTime, res.MaxRSSKB)
	}
	if call.cache {
		r.state.storeSupport(line, ok)
	}
	return ok, nil
}
