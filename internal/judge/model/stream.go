package model

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	appErr "autotest/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Stream is stdin or expected output given inline or as a list of files
// whose contents are concatenated.
type Stream struct {
	Text  string   `cbor:"text"`
	Files []string `cbor:"files,omitempty"`
	Set   bool     `cbor:"set"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Stream) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var text string
		if err := node.Decode(&text); err != nil {
			return err
		}
		*s = Stream{Text: text, Set: true}
		return nil
	case yaml.SequenceNode:
		var files []string
		if err := node.Decode(&files); err != nil {
			return err
		}
		*s = Stream{Files: files, Set: true}
		return nil
	}
	return fmt.Errorf("line %d: expected text or a list of file names", node.Line)
}

// Bytes returns the stream contents.
func (s Stream) Bytes() []byte {
	return []byte(s.Text)
}

// resolve reads listed files relative to dir. When nothing was given and
// <dir>/<label>.<suffix> exists, that file is used.
func (s Stream) resolve(dir, label, suffix string) (Stream, error) {
	files := s.Files
	if !s.Set && label != "" {
		candidate := filepath.Join(dir, label+"."+suffix)
		if _, err := os.Stat(candidate); err == nil {
			files = []string{candidate}
		}
	}
	if len(files) == 0 {
		return Stream{Text: s.Text, Set: s.Set}, nil
	}
	var b strings.Builder
	for _, name := range files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Stream{}, appErr.Wrapf(err, appErr.SpecificationError, "read %s", path)
		}
		b.Write(data)
	}
	return Stream{Text: b.String(), Set: true}, nil
}

func (s Stream) clone() Stream {
	return Stream{Text: s.Text, Files: slices.Clone(s.Files), Set: s.Set}
}
