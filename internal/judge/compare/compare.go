package compare

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"autotest/internal/judge/sandbox/result"
)

// Stream identifies the compared output.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

const nonUnicodeReason = "Your non-unicode output is not correct"

// Comparer compares actual output against expectations.
type Comparer struct {
	filter FilterRunner
}

// NewComparer creates a comparer. filter may be nil when no test uses a post-process command.
func NewComparer(filter FilterRunner) *Comparer {
	return &Comparer{filter: filter}
}

// Equal reports whether actual and expected match after canonicalization.
func (c *Comparer) Equal(ctx context.Context, actual, expected []byte, opts Options) (bool, error) {
	if bytes.Equal(actual, expected) {
		return true, nil
	}
	if opts.Binary {
		return false, nil
	}
	a, err := Canonicalize(ctx, DecodeText(actual), opts, c.filter)
	if err != nil {
		return false, err
	}
	e, err := Canonicalize(ctx, DecodeText(expected), opts, c.filter)
	if err != nil {
		return false, err
	}
	return a == e, nil
}

// Stream compares one standard stream. A nil mismatch means the stream matched.
// The error is reserved for post-process filter failures.
func (c *Comparer) Stream(ctx context.Context, stream Stream, actual, expected []byte, opts Options) (*result.Mismatch, error) {
	return c.check(ctx, string(stream), streamReasons(stream), actual, expected, opts)
}

// File compares a file the program was expected to create. A relative path
// is read from dir; reasons always name path as given.
func (c *Comparer) File(ctx context.Context, dir, path string, expected []byte, opts Options) (*result.Mismatch, error) {
	full := path
	if dir != "" && !filepath.IsAbs(path) {
		full = filepath.Join(dir, path)
	}
	actual, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &result.Mismatch{
				Kind:   result.MismatchFileMissing,
				Stream: path,
				Reason: fmt.Sprintf("File %s was not created", path),
			}, nil
		}
		// Unreadable files count as missing.
		return &result.Mismatch{
			Kind:   result.MismatchFileMissing,
			Stream: path,
			Reason: fmt.Sprintf("File %s could not be read", path),
		}, nil
	}
	return c.check(ctx, path, fileReasons(path), actual, expected, opts)
}

type reasons struct {
	content    string
	unexpected string
	empty      string
	emptyKind  result.MismatchKind
}

func streamReasons(stream Stream) reasons {
	if stream == StreamStderr {
		return reasons{
			content:    "Incorrect stderr",
			unexpected: "errors",
			empty:      "No stderr produced",
			emptyKind:  result.MismatchEmptyWhenExpected,
		}
	}
	return reasons{
		content:    "Incorrect output",
		unexpected: "output produced when none expected",
		empty:      "No output produced",
		emptyKind:  result.MismatchEmptyWhenExpected,
	}
}

func fileReasons(path string) reasons {
	return reasons{
		content:    "Incorrect file: " + path,
		unexpected: fmt.Sprintf("file: %s should be empty and was not", path),
		empty:      fmt.Sprintf("File %s is empty", path),
		emptyKind:  result.MismatchFileEmpty,
	}
}

func (c *Comparer) check(ctx context.Context, name string, r reasons, actual, expected []byte, opts Options) (*result.Mismatch, error) {
	switch {
	case len(actual) == 0 && len(expected) == 0:
		return nil, nil
	case len(actual) == 0:
		return &result.Mismatch{Kind: r.emptyKind, Stream: name, Reason: r.empty}, nil
	case len(expected) == 0:
		return &result.Mismatch{Kind: result.MismatchUnexpected, Stream: name, Reason: r.unexpected}, nil
	}
	ok, err := c.Equal(ctx, actual, expected, opts)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	reason := r.content
	if opts.Binary {
		reason = nonUnicodeReason
	}
	return &result.Mismatch{Kind: result.MismatchContent, Stream: name, Reason: reason}, nil
}
