package compare

import (
	"context"
	"strings"

	"autotest/internal/judge/sandbox/engine"
	"autotest/internal/judge/sandbox/spec"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"go.uber.org/zap"
)

// EngineFilter runs post-process commands through the process runner without limits.
type EngineFilter struct {
	Engine engine.Engine
	// Env replaces the filter's environment when non-nil.
	Env []string
}

// Filter implements FilterRunner.
// Output on stderr or a non-zero exit status is a fatal filter failure.
func (f EngineFilter) Filter(ctx context.Context, argv []string, input []byte) ([]byte, error) {
	res, err := f.Engine.Run(ctx, spec.RunSpec{Cmd: argv, Stdin: input, Env: f.Env})
	if err != nil {
		return nil, err
	}
	command := strings.Join(argv, " ")
	if len(res.Stderr) > 0 {
		logger.Warn(ctx, "post-process command wrote to stderr", zap.String("command", command))
		return nil, appErr.Newf(appErr.FilterFailed, "error from post-process command: %s", res.Stderr).
			WithDetail("command", command)
	}
	if res.Abnormal() {
		return nil, appErr.Newf(appErr.FilterFailed, "non-zero exit status from post-process command").
			WithDetail("command", command).
			WithDetail("exitCode", res.ExitCode)
	}
	return res.Stdout, nil
}
