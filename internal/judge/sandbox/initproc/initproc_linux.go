//go:build linux

package initproc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	appErr "autotest/pkg/errors"

	"golang.org/x/sys/unix"
)

// Main runs the helper and never returns. Failures before exec are written to
// the status descriptor so the engine can report them as spawn errors.
func Main() {
	unix.CloseOnExec(StatusFD)
	status := os.NewFile(uintptr(StatusFD), "status")
	if err := run(); err != nil {
		if status == nil || writeStatus(status, err) != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(SpawnFailureExit)
	}
	// unix.Exec only returns on failure, which run reports.
	os.Exit(SpawnFailureExit)
}

func run() error {
	reqFile := os.NewFile(uintptr(RequestFD), "request")
	if reqFile == nil {
		return appErr.Newf(appErr.HelperProtocol, "request descriptor %d is not open", RequestFD)
	}
	req, err := decodeRequest(reqFile)
	_ = reqFile.Close()
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	if err := applyRlimits(req.Limits); err != nil {
		return err
	}

	if req.SeccompProfile != "" {
		if err := applySeccomp(req.SeccompProfile); err != nil {
			return err
		}
	}

	env := req.Env
	if env == nil {
		env = inheritedEnv()
	}
	if err := replaceEnv(env); err != nil {
		return err
	}

	// Test environments put "." on PATH to find the program under test.
	cmdPath, err := exec.LookPath(req.Cmd[0])
	if err != nil && !errors.Is(err, exec.ErrDot) {
		return err
	}
	if err := unix.Exec(cmdPath, req.Cmd, env); err != nil {
		return fmt.Errorf("exec %s: %w", req.Cmd[0], err)
	}
	return nil
}

func decodeRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, appErr.Wrapf(err, appErr.HelperProtocol, "decode request")
	}
	return req, nil
}

func validateRequest(req Request) error {
	if len(req.Cmd) == 0 || req.Cmd[0] == "" {
		return appErr.Newf(appErr.HelperProtocol, "request command is required")
	}
	if err := req.Limits.Validate(); err != nil {
		return appErr.Wrapf(err, appErr.HelperProtocol, "request limits")
	}
	return nil
}

// replaceEnv makes PATH lookup use the target's environment.
func replaceEnv(env []string) error {
	os.Clearenv()
	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("set env: %w", err)
		}
	}
	return nil
}

func writeStatus(status *os.File, err error) error {
	_, werr := io.WriteString(status, err.Error())
	cerr := status.Close()
	if werr != nil {
		return werr
	}
	return cerr
}
