package compare

import (
	"context"
	"regexp"
	"strings"

	appErr "autotest/pkg/errors"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/language"
)

var (
	lineEndingPattern     = regexp.MustCompile("\r\n?")
	blankLinesPattern     = regexp.MustCompile(`\n\s*\n`)
	leadingNewlinePattern = regexp.MustCompile(`^\n+`)
	trailingSpacePattern  = regexp.MustCompile("[ \t]+\n")
)

// FilterRunner pipes text through the post-process command.
type FilterRunner interface {
	Filter(ctx context.Context, argv []string, input []byte) ([]byte, error)
}

// DecodeText turns raw output into text, replacing invalid UTF-8 sequences.
func DecodeText(raw []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(decoded)
}

// Canonicalize applies the normalization pipeline to s.
// Without a filter the pipeline is idempotent.
func Canonicalize(ctx context.Context, s string, opts Options, filter FilterRunner) (string, error) {
	s = lineEndingPattern.ReplaceAllString(s, "\n")

	if len(opts.Filter) > 0 {
		if filter == nil {
			return "", appErr.New(appErr.FilterFailed).WithMessage("post-process command configured without a filter runner")
		}
		out, err := filter.Filter(ctx, opts.Filter, []byte(s))
		if err != nil {
			if appErr.Is(err, appErr.FilterFailed) || appErr.Is(err, appErr.Canceled) {
				return "", err
			}
			return "", appErr.Wrapf(err, appErr.FilterFailed, "post-process command %q failed", strings.Join(opts.Filter, " "))
		}
		s = DecodeText(out)
	}

	if opts.IgnoreCase {
		s = cases.Lower(language.Und).String(s)
	}

	if drop := opts.deletionSet(); drop != nil {
		s = strings.Map(func(r rune) rune {
			if drop(r) {
				return -1
			}
			return r
		}, s)
	}

	if opts.IgnoreTrailingWhitespace {
		s = trailingSpacePattern.ReplaceAllString(s, "\n")
	}

	if opts.IgnoreBlankLines {
		s = blankLinesPattern.ReplaceAllString(s, "\n")
		s = leadingNewlinePattern.ReplaceAllString(s, "")
	}
	return s, nil
}
