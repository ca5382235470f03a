package model

import (
	"regexp"
	"slices"
	"strings"

	appErr "autotest/pkg/errors"
)

// DefaultEnvironmentKept matches the inherited variables a test keeps.
const DefaultEnvironmentKept = `ARCH|C_CHECK_.*|DCC_.*|DRYRUN_.*|LANG|LANGUAGE|LC_.*|LOGNAME|USER`

// baseEnvironment is applied on top of the kept variables.
func baseEnvironment(originalPath string) map[string]string {
	return map[string]string{
		"LC_COLLATE": "POSIX",
		"LC_NUMERIC": "POSIX",
		"PERL5LIB":   ".",
		"HOME":       ".",
		"PATH":       "/bin:/usr/bin:/usr/local/bin:.:" + originalPath,
	}
}

// buildEnvironment filters environ by the kept pattern, then applies the base
// variables and finally the test's own settings. The result is sorted.
func buildEnvironment(environ []string, kept string, set map[string]string) ([]string, error) {
	pattern, err := regexp.Compile(`^(?:` + kept + `)$`)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SpecificationError, "invalid environmentKept pattern %q", kept)
	}
	vars := make(map[string]string)
	var originalPath string
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if name == "PATH" {
			originalPath = value
		}
		if pattern.MatchString(name) {
			vars[name] = value
		}
	}
	for k, v := range baseEnvironment(originalPath) {
		vars[k] = v
	}
	for k, v := range set {
		vars[k] = v
	}
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	slices.Sort(env)
	return env, nil
}
