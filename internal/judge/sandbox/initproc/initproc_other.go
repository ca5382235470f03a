//go:build !linux

package initproc

import (
	"fmt"
	"os"
)

// Main reports that the helper is unavailable and exits.
func Main() {
	status := os.NewFile(uintptr(StatusFD), "status")
	msg := "limit helper is only supported on linux"
	if status == nil {
		_, _ = fmt.Fprintln(os.Stderr, msg)
	} else {
		_, _ = fmt.Fprint(status, msg)
	}
	os.Exit(SpawnFailureExit)
}
