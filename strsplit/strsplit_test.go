package strsplit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/petr-suchy/sari-go/strsplit"
)

func TestSplitByChar(t *testing.T) {
	cases := []struct {
		s     string
		delim byte
		want  []string
	}{
		{"a,b,c", ',', []string{"a", "b", "c"}},
		{"a,,c", ',', []string{"a", "", "c"}},
		{"a,", ',', []string{"a", ""}},
		{"", ',', []string{""}},
		{"abc", ',', []string{"abc"}},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, strsplit.SplitByChar(c.s, c.delim), "SplitByChar(%q, %q)", c.s, c.delim)
	}
}

func TestSplitByString(t *testing.T) {
	cases := []struct {
		s, delim string
		want     []string
	}{
		{"a::b::c", "::", []string{"a", "b", "c"}},
		{"abc", "", []string{"abc"}},
		{"no-delimiter-here", "::", []string{"no-delimiter-here"}},
		{"::", "::", []string{"", ""}},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, strsplit.SplitByString(c.s, c.delim), "SplitByString(%q, %q)", c.s, c.delim)
	}
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		s    string
		want []string
	}{
		{"PING", []string{"PING"}},
		{"ECHO hello world", []string{"ECHO", "hello", "world"}},
		{"  leading and trailing  ", []string{"leading", "and", "trailing"}},
		{"", nil},
		{"   ", nil},
		{"a\tb\nc", []string{"a", "b", "c"}},
	}

	for _, c := range cases {
		got := strsplit.Tokenize(c.s)
		if len(c.want) == 0 {
			assert.Empty(t, got, "Tokenize(%q)", c.s)
			continue
		}
		assert.Equal(t, c.want, got, "Tokenize(%q)", c.s)
	}
}
