// Command autotest runs a suite of tests against programs in the current
// directory, optionally inside a private filesystem sandbox.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"autotest/internal/judge/model"
	"autotest/internal/judge/report"
	"autotest/internal/judge/sandbox/engine"
	"autotest/internal/judge/sandbox/initproc"
	"autotest/internal/judge/sandbox/namespace"
	"autotest/internal/judge/service"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	configPath    string
	suitePath     string
	insideSandbox string
}

func main() {
	initproc.MaybeRun()
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	exitCode := appErr.ExitAllPassed
	root := newRootCommand(&exitCode)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "autotest: %v\n", err)
		return appErr.ExitCode(err)
	}
	return exitCode
}

func newRootCommand(exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "autotest",
		Short:         "Compile and test programs against a suite of expected behaviour",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var flags runFlags
	run := &cobra.Command{
		Use:   "run [labels...]",
		Short: "Run the tests with the given labels, or every test",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runCommand(cmd.Context(), flags, cmd.Flags().Changed("config"), args)
			*exitCode = code
			return err
		},
	}
	run.Flags().StringVar(&flags.configPath, "config", defaultConfigPath, "Path to config file")
	run.Flags().StringVar(&flags.suitePath, "suite", "", "Override the test suite path")
	run.Flags().StringVar(&flags.insideSandbox, "inside-sandbox", "", "Continue a run inside the sandbox from this state directory")
	_ = run.Flags().MarkHidden("inside-sandbox")

	root.AddCommand(run)
	return root
}

func runCommand(ctx context.Context, flags runFlags, explicitConfig bool, labels []string) (int, error) {
	appCfg, err := loadAppConfig(flags.configPath, explicitConfig)
	if err != nil {
		return appErr.ExitInternalError, appErr.Wrapf(err, appErr.ConfigInvalid, "load app config")
	}
	if flags.suitePath != "" {
		appCfg.Suite = flags.suitePath
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		return appErr.ExitInternalError, appErr.Wrapf(err, appErr.ConfigInvalid, "init logger")
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.NewEngine(appCfg.Engine.toEngineConfig())
	if err != nil {
		logger.Error(ctx, "init engine failed", zap.Error(err))
		return appErr.ExitInternalError, err
	}
	reporter := report.New(os.Stdout, appCfg.Output.Color, nil)

	if flags.insideSandbox != "" {
		return resumeInSandbox(ctx, eng, reporter, flags.insideSandbox)
	}

	configPath, err := filepath.Abs(flags.configPath)
	if err != nil {
		return appErr.ExitInternalError, appErr.Wrap(err, appErr.ConfigInvalid)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return appErr.ExitInternalError, appErr.Wrap(err, appErr.WorkDirInvalid)
	}
	settings := appCfg.settings()
	suite, err := model.LoadSuite(appCfg.Suite, model.LoadOptions{Settings: settings})
	if err != nil {
		logger.Error(ctx, "load suite failed", zap.String("suite", appCfg.Suite), zap.Error(err))
		return appErr.ExitInternalError, err
	}

	reexecArgs := []string{"run"}
	if explicitConfig {
		reexecArgs = append(reexecArgs, "--config", configPath)
	}
	svc, err := service.NewService(service.Config{
		Engine:   eng,
		Reporter: reporter,
		Settings: settings,
		WorkDir:  workDir,
		Sandbox:  namespace.NewBuilder(namespace.Options{Args: reexecArgs}),
	})
	if err != nil {
		return appErr.ExitInternalError, appErr.Wrap(err, appErr.InternalServerError)
	}
	return svc.Run(ctx, suite.Tests, labels)
}

// resumeInSandbox runs in the process Builder.Enter started inside the new
// namespaces.
func resumeInSandbox(ctx context.Context, eng engine.Engine, reporter *report.Reporter, stateDir string) (int, error) {
	builder := namespace.ResumeBuilder(namespace.Options{})
	state, err := builder.Resume(ctx, stateDir)
	if err != nil {
		logger.Error(ctx, "assemble sandbox failed", zap.String("state_dir", stateDir), zap.Error(err))
		return appErr.ExitInternalError, err
	}
	svc, err := service.NewService(service.Config{
		Engine:   eng,
		Reporter: reporter,
		Settings: state.Settings,
		WorkDir:  state.WorkDir,
		Sandbox:  builder,
	})
	if err != nil {
		return appErr.ExitInternalError, appErr.Wrap(err, appErr.InternalServerError)
	}
	return svc.Resume(ctx, state)
}
