// Package handoff carries run state across the re-exec into the sandbox.
// The state file is written once before the namespaces are requested and read
// exactly once inside them; reading always deletes it.
package handoff

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"autotest/internal/judge/model"
	"autotest/pkg/codec"
	appErr "autotest/pkg/errors"
	"autotest/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FileName is the state file inside the state directory.
const FileName = "handoff.cbor.zst"

// maxDecodedSize bounds the decompressed state.
const maxDecodedSize = 256 << 20

// State is everything the inner process needs to continue the run.
type State struct {
	Tests    []model.Test   `cbor:"tests"`
	Labels   []string       `cbor:"labels,omitempty"`
	Settings model.Settings `cbor:"settings"`
	// WorkDir is the directory the run started in; it is mounted read-write
	// and becomes the working directory after chroot.
	WorkDir string `cbor:"workDir"`
	RunID   string `cbor:"runId"`
}

// Path returns the state file location for stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, FileName)
}

// Write serializes state into stateDir. The file appears atomically.
func Write(ctx context.Context, stateDir string, state State) (err error) {
	payload, err := codec.Marshal(state)
	if err != nil {
		return appErr.Wrapf(err, appErr.HandoffCorrupt, "encode handoff state")
	}

	tmp, err := os.CreateTemp(stateDir, ".handoff-*")
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "create handoff file")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, removeIfExists(tmp.Name()))
		}
	}()

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		_ = tmp.Close()
		return appErr.Wrapf(err, appErr.InternalServerError, "create zstd writer")
	}
	_, werr := enc.Write(payload)
	werr = multierr.Combine(werr, enc.Close(), tmp.Sync(), tmp.Close())
	if werr != nil {
		return appErr.Wrapf(werr, appErr.InternalServerError, "write handoff file")
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "chmod handoff file")
	}
	if err := os.Rename(tmp.Name(), Path(stateDir)); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "publish handoff file")
	}
	logger.Debug(ctx, "handoff state written",
		zap.String("path", Path(stateDir)),
		zap.Int("tests", len(state.Tests)),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

// ReadOnce loads the state from stateDir and removes the file, whether or not
// decoding succeeds. A missing file is a HandoffMissing error.
func ReadOnce(ctx context.Context, stateDir string) (State, error) {
	path := Path(stateDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, appErr.Wrapf(err, appErr.HandoffMissing, "handoff state %s not found", path)
		}
		return State{}, multierr.Append(
			appErr.Wrapf(err, appErr.HandoffMissing, "read handoff state %s", path),
			removeIfExists(path),
		)
	}
	if err := os.Remove(path); err != nil {
		return State{}, appErr.Wrapf(err, appErr.SandboxStateInvalid, "remove handoff state %s", path)
	}

	state, err := decode(data)
	if err != nil {
		return State{}, err
	}
	logger.Debug(ctx, "handoff state read", zap.String("path", path), zap.Int("tests", len(state.Tests)))
	return state, nil
}

func decode(data []byte) (State, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return State{}, appErr.Wrapf(err, appErr.HandoffCorrupt, "open handoff state")
	}
	defer dec.Close()
	payload, err := io.ReadAll(dec)
	if err != nil {
		return State{}, appErr.Wrapf(err, appErr.HandoffCorrupt, "decompress handoff state")
	}
	var state State
	if err := codec.Unmarshal(payload, &state); err != nil {
		return State{}, appErr.Wrapf(err, appErr.HandoffCorrupt, "decode handoff state")
	}
	return state, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
