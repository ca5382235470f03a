package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"autotest/internal/judge/compare"
	"autotest/internal/judge/handoff"
	"autotest/internal/judge/model"
	"autotest/internal/judge/report"
	"autotest/internal/judge/runner"
	"autotest/internal/judge/sandbox/engine"
	"autotest/internal/judge/sandbox/observer"
	"autotest/internal/judge/sandbox/result"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/contextkey"
	"autotest/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SandboxEntry runs the rest of a run inside the sandbox and reports its
// exit status.
type SandboxEntry interface {
	Enter(ctx context.Context, state handoff.State) (int, error)
}

// Service drives whole runs: selection, sandbox entry, every test and the summary.
type Service struct {
	engine   engine.Engine
	reporter *report.Reporter
	settings model.Settings
	workDir  string
	sandbox  SandboxEntry
}

// Config holds service dependencies and settings.
type Config struct {
	Engine   engine.Engine
	Reporter *report.Reporter
	Settings model.Settings
	// WorkDir is where tests run; it is mounted read-write inside the sandbox.
	WorkDir string
	// Sandbox is required when Settings.Sandbox.Enabled is set.
	Sandbox SandboxEntry
}

// NewService creates a run service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work dir is required")
	}
	if cfg.Settings.Sandbox.Enabled && cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox entry is required when the sandbox is enabled")
	}
	return &Service{
		engine:   cfg.Engine,
		reporter: cfg.Reporter,
		settings: cfg.Settings,
		workDir:  cfg.WorkDir,
		sandbox:  cfg.Sandbox,
	}, nil
}

// Run runs the tests whose labels are listed, or every test when labels is
// empty, and returns the exit status: 0 when all passed, 1 when any failed or
// could not be run. Internal and specification errors are returned with
// status 2.
func (s *Service) Run(ctx context.Context, tests []model.Test, labels []string) (int, error) {
	runID := uuid.NewString()
	ctx = contextkey.WithRunID(ctx, runID)
	if _, err := selectTests(tests, labels); err != nil {
		return appErr.ExitInternalError, err
	}

	if s.settings.Sandbox.Enabled {
		logger.Info(ctx, "run starting in sandbox", zap.Int("tests", len(tests)))
		return s.sandbox.Enter(ctx, handoff.State{
			Tests:    tests,
			Labels:   labels,
			Settings: s.settings,
			WorkDir:  s.workDir,
			RunID:    runID,
		})
	}
	return s.runTests(ctx, tests, labels)
}

// Resume continues a run from handoff state once the sandbox is assembled.
func (s *Service) Resume(ctx context.Context, state handoff.State) (int, error) {
	if state.RunID != "" {
		ctx = contextkey.WithRunID(ctx, state.RunID)
	}
	return s.runTests(ctx, state.Tests, state.Labels)
}

func (s *Service) runTests(ctx context.Context, tests []model.Test, labels []string) (int, error) {
	selected, err := selectTests(tests, labels)
	if err != nil {
		return appErr.ExitInternalError, err
	}
	r, err := runner.New(runner.Config{
		Engine:             s.engine,
		Comparer:           compare.NewComparer(compare.EngineFilter{Engine: s.engine}),
		State:              runner.NewRunState(),
		WorkDir:            s.workDir,
		Retry:              s.settings.Retry,
		ShowCompileCommand: s.settings.ShowCompileCommand,
		Metrics:            observer.LogMetricsRecorder{},
	})
	if err != nil {
		return appErr.ExitInternalError, appErr.Wrap(err, appErr.InternalServerError)
	}

	start := time.Now()
	logger.Info(ctx, "run starting", zap.Int("tests", len(selected)), zap.String("workdir", s.workDir))
	var summary result.Summary
	for i := range selected {
		t := &selected[i]
		if !t.Finalized {
			return appErr.ExitInternalError, appErr.Newf(appErr.SpecificationError, "test %s was not finalized", t.Label)
		}
		run, err := r.PrepareAndRun(ctx, t)
		if err != nil {
			logger.Error(ctx, "run aborted", zap.String("test", t.Label), zap.Error(err))
			return appErr.ExitCode(err), err
		}
		s.reporter.Test(t, run)
		summary.Add(run.Verdict)
	}
	s.reporter.Summary(summary)
	logger.Info(ctx, "run finished",
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("not_run", summary.NotRun),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary.ExitCode(), nil
}

// selectTests keeps suite order. Unknown labels are a specification error.
func selectTests(tests []model.Test, labels []string) ([]model.Test, error) {
	if len(tests) == 0 {
		return nil, appErr.New(appErr.SpecificationError).WithMessage("nothing to test")
	}
	if len(labels) == 0 {
		return tests, nil
	}
	known := make(map[string]bool, len(tests))
	for _, t := range tests {
		known[t.Label] = true
	}
	for _, label := range labels {
		if !known[label] {
			return nil, appErr.ValidationError("label", fmt.Sprintf("%q is not a test in this suite", label))
		}
	}
	selected := make([]model.Test, 0, len(labels))
	for _, t := range tests {
		if slices.Contains(labels, t.Label) {
			selected = append(selected, t)
		}
	}
	return selected, nil
}
