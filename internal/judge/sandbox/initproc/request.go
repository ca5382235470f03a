// Package initproc is the pre-exec half of the process runner. The engine starts
// this code in a fresh process, which applies resource limits and an optional
// seccomp filter to itself and then replaces itself with the target program.
package initproc

import (
	"os"
	"strings"

	"autotest/internal/judge/sandbox/spec"
)

// EnvMarker in the environment turns a binary that calls MaybeRun into the helper.
const EnvMarker = "AUTOTEST_SANDBOX_INIT"

const (
	// RequestFD carries the JSON Request; it is ExtraFiles[0] on the engine side.
	RequestFD = 3
	// StatusFD is close-on-exec. EOF without data means the target was executed.
	StatusFD = 4
	// SpawnFailureExit is the helper's exit status when it could not exec the target.
	SpawnFailureExit = 127
)

// Request is the message the engine sends to the helper.
type Request struct {
	Cmd            []string    `json:"cmd"`
	Env            []string    `json:"env,omitempty"`
	Limits         spec.Limits `json:"limits"`
	SeccompProfile string      `json:"seccompProfile,omitempty"`
}

// MaybeRun takes over the process when it was started as the limit helper and
// returns immediately otherwise. Call it first thing in main and in TestMain.
func MaybeRun() {
	if os.Getenv(EnvMarker) != "1" {
		return
	}
	Main()
}

// inheritedEnv is the helper's own environment without the marker.
func inheritedEnv() []string {
	env := os.Environ()
	out := env[:0]
	prefix := EnvMarker + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
