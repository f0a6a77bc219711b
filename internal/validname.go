package internal

import (
	"regexp"
)

const (
	// A writable name must start with a letter, digit or underscore.
	// It may contain any character after that except control and slash.
	pattern = `^[\pL\pN_][^\pC/]*$`
	// It may not end with a whitespace character.
	antiPattern = `\pZ$`
)

var (
	re     *regexp.Regexp
	antiRe *regexp.Regexp
)

func init() {
	re = regexp.MustCompile(pattern)
	antiRe = regexp.MustCompile(antiPattern)
}

// IsValidName returns true if name is acceptable as a variable, attribute
// or group name in the on-disk formats the writers produce.
func IsValidName(name string) bool {
	return re.MatchString(name) && !antiRe.MatchString(name)
}
