// Package tokenizer turns book text into the normalised term set stored in
// the inverted index. A term is a maximal run of ASCII letters, lowercased,
// at least MinTermLength long. Anything else, including non-ASCII bytes and
// invalid UTF-8, separates terms.
package tokenizer

import (
	"sort"
	"strings"
)

// MinTermLength is the shortest run of letters kept as a term.
const MinTermLength = 2

// Set is a deduplicated collection of terms.
type Set map[string]struct{}

// Tokenize returns the distinct terms in text. A term occurring many times
// contributes exactly once.
func Tokenize(text string) Set {
	terms := make(Set)
	start := -1
	var buf []byte
	for i := 0; i <= len(text); i++ {
		var c byte
		letter := false
		if i < len(text) {
			c = text[i]
			letter = isASCIILetter(c)
		}
		if letter {
			if start < 0 {
				start = i
				buf = buf[:0]
			}
			buf = append(buf, toLower(c))
			continue
		}
		if start >= 0 && len(buf) >= MinTermLength {
			terms[string(buf)] = struct{}{}
		}
		start = -1
	}
	return terms
}

// Sorted returns the terms in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for term := range s {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether term is in the set.
func (s Set) Contains(term string) bool {
	_, ok := s[term]
	return ok
}

// SplitQuery lowercases a query and splits it on whitespace. Unlike
// Tokenize it keeps every word as typed, including single characters and
// punctuation; such words simply have no postings.
func SplitQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
