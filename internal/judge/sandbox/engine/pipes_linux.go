//go:build linux

package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"autotest/internal/judge/sandbox/initproc"
)

// childPipes holds every descriptor shared with one child. Child ends are
// closed in the parent right after start.
type childPipes struct {
	stdin    *os.File
	stdoutR  *os.File
	stdoutW  *os.File
	stderrR  *os.File
	stderrW  *os.File
	requestR *os.File
	requestW *os.File
	statusR  *os.File
	statusW  *os.File
}

func openChildPipes(stdin []byte) (*childPipes, error) {
	p := &childPipes{}
	var err error
	if p.stdin, err = stdinFile(stdin); err != nil {
		return nil, err
	}
	pairs := []struct {
		r, w **os.File
		name string
	}{
		{&p.stdoutR, &p.stdoutW, "stdout"},
		{&p.stderrR, &p.stderrW, "stderr"},
		{&p.requestR, &p.requestW, "request"},
		{&p.statusR, &p.statusW, "status"},
	}
	for _, pair := range pairs {
		r, w, err := os.Pipe()
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("create %s pipe: %w", pair.name, err)
		}
		*pair.r, *pair.w = r, w
	}
	return p, nil
}

// stdinFile spools data into an unlinked temporary file, so the child sees a
// regular seekable file. Empty data gives nil, which exec maps to /dev/null.
func stdinFile(data []byte) (*os.File, error) {
	if len(data) == 0 {
		return nil, nil
	}
	f, err := os.CreateTemp("", "autotest-stdin-*")
	if err != nil {
		return nil, fmt.Errorf("create stdin file: %w", err)
	}
	_ = os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write stdin file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rewind stdin file: %w", err)
	}
	return f, nil
}

func (p *childPipes) extraFiles() []*os.File {
	// Order fixes the descriptor numbers: initproc.RequestFD, then initproc.StatusFD.
	return []*os.File{p.requestR, p.statusW}
}

func (p *childPipes) closeChildEnds() {
	closeFiles(p.stdin, p.stdoutW, p.stderrW, p.requestR, p.statusW)
}

func (p *childPipes) closeReaders() {
	closeFiles(p.stdoutR, p.stderrR)
}

func (p *childPipes) closeAll() {
	closeFiles(p.stdin, p.stdoutR, p.stdoutW, p.stderrR, p.stderrW, p.requestR, p.requestW, p.statusR, p.statusW)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// sendRequest writes the helper request and closes the pipe. A helper that died
// early makes the write fail with EPIPE, which the status pipe already reports.
func sendRequest(w *os.File, req initproc.Request) {
	_ = json.NewEncoder(w).Encode(req)
	_ = w.Close()
}

// readStatus blocks until the helper has exec'd the target (empty result) or
// failed (the error text).
func readStatus(r *os.File) string {
	data, _ := io.ReadAll(r)
	_ = r.Close()
	return string(data)
}

// graceCloser closes the read ends a while after a kill, so a descendant that
// escaped the process group cannot hold the run open.
type graceCloser struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	close   func()
}

func (g *graceCloser) arm(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || g.timer != nil {
		return
	}
	g.timer = time.AfterFunc(d, g.close)
}

func (g *graceCloser) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	if g.timer != nil {
		g.timer.Stop()
	}
}
