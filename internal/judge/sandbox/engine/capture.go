package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

type streamID int

const (
	streamStdout streamID = iota
	streamStderr
)

func (s streamID) String() string {
	if s == streamStdout {
		return "stdout"
	}
	return "stderr"
}

const drainChunkSize = 32 * 1024

// boundedCapture accumulates a child's stdout and stderr, each up to a byte cap.
// A zero cap keeps everything.
type boundedCapture struct {
	stdoutCap int64
	stderrCap int64
	// overflow is called once per stream when its cap is first exceeded. It
	// reports whether this overflow decided the run's outcome.
	overflow func(streamID) bool

	mu              sync.Mutex
	stdout          bytes.Buffer
	stderr          bytes.Buffer
	stdoutTruncated bool
	stderrTruncated bool
}

func newBoundedCapture(stdoutCap, stderrCap int64, overflow func(streamID) bool) *boundedCapture {
	if overflow == nil {
		overflow = func(streamID) bool { return false }
	}
	return &boundedCapture{stdoutCap: stdoutCap, stderrCap: stderrCap, overflow: overflow}
}

// drain reads r until EOF. Bytes past the cap are read and discarded so the
// writer never blocks on a full pipe.
func (c *boundedCapture) drain(r io.Reader, stream streamID) error {
	buf := make([]byte, drainChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.accept(stream, buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read %s: %w", stream, err)
		}
	}
}

func (c *boundedCapture) accept(stream streamID, p []byte) {
	c.mu.Lock()
	buf, limit, truncated := &c.stdout, c.stdoutCap, &c.stdoutTruncated
	if stream == streamStderr {
		buf, limit, truncated = &c.stderr, c.stderrCap, &c.stderrTruncated
	}
	if *truncated {
		c.mu.Unlock()
		return
	}
	if limit <= 0 || int64(buf.Len()+len(p)) <= limit {
		buf.Write(p)
		c.mu.Unlock()
		return
	}
	if room := limit - int64(buf.Len()); room > 0 {
		buf.Write(p[:room])
	}
	*truncated = true
	c.mu.Unlock()

	if c.overflow(stream) && stream == streamStdout {
		c.appendDiagnostic(fmt.Sprintf(stdoutOverflowMessage, limit))
	}
}

// appendDiagnostic adds engine-generated text to stderr regardless of its cap.
func (c *boundedCapture) appendDiagnostic(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stderr.WriteString(msg)
}

func (c *boundedCapture) snapshot() (stdout, stderr []byte, stdoutTruncated, stderrTruncated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stdout = bytes.Clone(c.stdout.Bytes())
	stderr = bytes.Clone(c.stderr.Bytes())
	return stdout, stderr, c.stdoutTruncated, c.stderrTruncated
}

// finishReason identifies the event that ended a run.
type finishReason int

const (
	finishNone finishReason = iota
	finishExited
	finishStdoutCap
	finishStderrCap
	finishWallClock
	finishCanceled
)

// finishLine lets the first terminal event win; later events are ignored so
// no run is reported twice.
type finishLine struct {
	mu     sync.Mutex
	reason finishReason
}

func (f *finishLine) claim(reason finishReason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reason != finishNone {
		return false
	}
	f.reason = reason
	return true
}

func (f *finishLine) winner() finishReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}
