// Package strsplit provides a handful of splitting strategies for parsing
// wire text (the command proxy tokenizes its input lines with Tokenize):
// split on a single byte, split on a literal delimiter string, and
// whitespace tokenization. Each returns every piece up front rather than
// an iterator, since nothing in this module's demos needs to stop early.
package strsplit

import "strings"

// SplitByChar splits s on every occurrence of delim, the way the original
// library's character delimiter does: an empty field between two adjacent
// delimiters is kept, and a trailing delimiter produces a trailing empty
// field.
func SplitByChar(s string, delim byte) []string {
	return strings.Split(s, string(delim))
}

// SplitByString splits s on every non-overlapping occurrence of the
// literal delimiter substring. An empty delimiter is treated as "no
// delimiter": s comes back as the only field, unlike strings.Split(s, ""),
// which splits s after each UTF-8 sequence.
func SplitByString(s, delim string) []string {
	if delim == "" {
		return []string{s}
	}
	return strings.Split(s, delim)
}

// Tokenize splits s on runs of ASCII whitespace (anything <= ' ', matching
// the original's blank-delimiter test), discarding empty tokens. An input
// of all whitespace, or the empty string, yields no tokens.
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r <= ' '
	})
}
