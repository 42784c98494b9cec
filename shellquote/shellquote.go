// Package shellquote renders arbitrary byte strings as single POSIX shell
// words, for embedding file paths into the scripts scriptpkg emits.
package shellquote

import "strings"

// Quote wraps s in single quotes, suitable for splicing into a POSIX sh
// command line. Every character other than a literal single quote is left
// untouched, including newlines, tabs, backslashes, and non-ASCII bytes;
// a single quote in s is replaced by the four-character sequence '\'' (end
// quote, escaped literal quote, reopen quote).
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteByte(s[i])
		}
	}
	b.WriteByte('\'')
	return b.String()
}
