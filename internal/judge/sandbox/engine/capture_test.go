package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestBoundedCaptureTruncatesStdout(t *testing.T) {
	var mu sync.Mutex
	var overflows []streamID
	capture := newBoundedCapture(10, 100, func(s streamID) bool {
		mu.Lock()
		defer mu.Unlock()
		overflows = append(overflows, s)
		return true
	})

	payload := strings.Repeat("x", 25)
	if err := capture.drain(strings.NewReader(payload), streamStdout); err != nil {
		t.Fatalf("drain: %v", err)
	}
	stdout, stderr, stdoutTrunc, stderrTrunc := capture.snapshot()
	if len(stdout) != 10 {
		t.Fatalf("stdout length = %d, want 10", len(stdout))
	}
	if !stdoutTrunc || stderrTrunc {
		t.Fatalf("unexpected truncation flags stdout=%v stderr=%v", stdoutTrunc, stderrTrunc)
	}
	want := fmt.Sprintf(stdoutOverflowMessage, 10)
	if string(stderr) != want {
		t.Fatalf("stderr = %q, want %q", stderr, want)
	}
	if len(overflows) != 1 || overflows[0] != streamStdout {
		t.Fatalf("expected one stdout overflow, got %v", overflows)
	}
}

func TestBoundedCaptureExactCapIsNotOverflow(t *testing.T) {
	capture := newBoundedCapture(5, 5, func(streamID) bool {
		t.Fatalf("overflow must not fire at exactly the cap")
		return false
	})
	if err := capture.drain(strings.NewReader("hello"), streamStdout); err != nil {
		t.Fatalf("drain: %v", err)
	}
	stdout, _, trunc, _ := capture.snapshot()
	if string(stdout) != "hello" || trunc {
		t.Fatalf("stdout=%q truncated=%v", stdout, trunc)
	}
}

func TestBoundedCaptureLosingOverflowAddsNoMarker(t *testing.T) {
	capture := newBoundedCapture(3, 0, func(streamID) bool { return false })
	if err := capture.drain(strings.NewReader("abcdef"), streamStdout); err != nil {
		t.Fatalf("drain: %v", err)
	}
	stdout, stderr, trunc, _ := capture.snapshot()
	if string(stdout) != "abc" || !trunc {
		t.Fatalf("stdout=%q truncated=%v", stdout, trunc)
	}
	if len(stderr) != 0 {
		t.Fatalf("marker must only be written by the deciding event, got %q", stderr)
	}
}

func TestBoundedCaptureStderrCapAfterDiagnostic(t *testing.T) {
	capture := newBoundedCapture(0, 4, nil)
	capture.appendDiagnostic("diagnostic longer than cap\n")
	if err := capture.drain(strings.NewReader("program error"), streamStderr); err != nil {
		t.Fatalf("drain: %v", err)
	}
	_, stderr, _, trunc := capture.snapshot()
	if string(stderr) != "diagnostic longer than cap\n" {
		t.Fatalf("stderr = %q", stderr)
	}
	if !trunc {
		t.Fatalf("expected stderr truncation flag")
	}
}

func TestBoundedCaptureUnlimited(t *testing.T) {
	capture := newBoundedCapture(0, 0, nil)
	payload := bytes.Repeat([]byte("y"), drainChunkSize*3+7)
	if err := capture.drain(bytes.NewReader(payload), streamStdout); err != nil {
		t.Fatalf("drain: %v", err)
	}
	stdout, _, trunc, _ := capture.snapshot()
	if len(stdout) != len(payload) || trunc {
		t.Fatalf("stdout length = %d truncated=%v", len(stdout), trunc)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestBoundedCaptureReportsReadError(t *testing.T) {
	capture := newBoundedCapture(0, 0, nil)
	err := capture.drain(failingReader{}, streamStderr)
	if err == nil || !strings.Contains(err.Error(), "read stderr") {
		t.Fatalf("expected read error, got %v", err)
	}
	if err := capture.drain(io.LimitReader(strings.NewReader("abc"), 2), streamStdout); err != nil {
		t.Fatalf("EOF must not be an error: %v", err)
	}
}

func TestFinishLineFirstWins(t *testing.T) {
	var f finishLine
	var wg sync.WaitGroup
	wins := make(chan finishReason, 3)
	for _, r := range []finishReason{finishWallClock, finishStdoutCap, finishExited} {
		wg.Add(1)
		go func(r finishReason) {
			defer wg.Done()
			if f.claim(r) {
				wins <- r
			}
		}(r)
	}
	wg.Wait()
	close(wins)
	var got []finishReason
	for r := range wins {
		got = append(got, r)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one winner, got %v", got)
	}
	if f.winner() != got[0] {
		t.Fatalf("winner() = %v, want %v", f.winner(), got[0])
	}
}
