// Command sandbox-init is the standalone build of the limit helper. Point
// engine.helperPath at it to keep the helper out of the autotest binary.
package main

import "autotest/internal/judge/sandbox/initproc"

func main() {
	initproc.Main()
}
