// Package compare decides whether actual output matches expected output.
package compare

// Options controls canonicalization before comparison.
type Options struct {
	IgnoreCase bool `yaml:"ignoreCase" cbor:"ignoreCase"`
	// IgnoreWhitespace adds every whitespace character except newline to IgnoreCharacters.
	IgnoreWhitespace         bool   `yaml:"ignoreWhitespace" cbor:"ignoreWhitespace"`
	IgnoreTrailingWhitespace bool   `yaml:"ignoreTrailingWhitespace" cbor:"ignoreTrailingWhitespace"`
	IgnoreBlankLines         bool   `yaml:"ignoreBlankLines" cbor:"ignoreBlankLines"`
	IgnoreCharacters         string `yaml:"ignoreCharacters" cbor:"ignoreCharacters"`
	// CompareOnlyCharacters, when set, deletes every character below 256 that
	// is not listed here or a newline.
	CompareOnlyCharacters string `yaml:"compareOnlyCharacters" cbor:"compareOnlyCharacters"`
	// Filter is the argument vector of the post-process command, empty for none.
	Filter []string `yaml:"-" cbor:"filter,omitempty"`
	// Binary compares raw bytes with no canonicalization.
	Binary bool `yaml:"-" cbor:"binary"`
}

// DefaultOptions returns the options used when a suite sets none.
func DefaultOptions() Options {
	return Options{IgnoreTrailingWhitespace: true}
}

const asciiWhitespace = " \t\r\v\f"

// deletionSet returns a predicate for runes dropped by canonicalization, nil when none are.
func (o Options) deletionSet() func(r rune) bool {
	if o.CompareOnlyCharacters != "" {
		keep := make(map[rune]struct{}, len(o.CompareOnlyCharacters)+1)
		for _, r := range o.CompareOnlyCharacters {
			keep[r] = struct{}{}
		}
		keep['\n'] = struct{}{}
		return func(r rune) bool {
			if r >= 256 {
				return false
			}
			_, ok := keep[r]
			return !ok
		}
	}
	ignored := o.IgnoreCharacters
	if o.IgnoreWhitespace {
		ignored += asciiWhitespace
	}
	if ignored == "" {
		return nil
	}
	drop := make(map[rune]struct{}, len(ignored))
	for _, r := range ignored {
		if r != '\n' {
			drop[r] = struct{}{}
		}
	}
	return func(r rune) bool {
		_, ok := drop[r]
		return ok
	}
}
