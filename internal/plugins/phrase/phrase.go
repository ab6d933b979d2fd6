// Package phrase holds the trigger matching shared by the built-in plugins.
package phrase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Set is a list of trigger phrases, matched case-insensitively as
// substrings.
type Set []string

// Find returns the first phrase contained in text.
func (s Set) Find(text string) (string, bool) {
	for _, p := range s {
		if _, _, ok := indexFold(text, p); ok {
			return p, true
		}
	}
	return "", false
}

// Match reports whether text contains any phrase.
func (s Set) Match(text string) bool {
	_, ok := s.Find(text)
	return ok
}

// After returns the text following the first phrase found, trimmed of
// spaces and punctuation. ok is false when no phrase is present.
func (s Set) After(text string) (rest string, ok bool) {
	for _, p := range s {
		if _, end, found := indexFold(text, p); found {
			return Trim(text[end:]), true
		}
	}
	return "", false
}

// indexFold finds the first case-insensitive occurrence of substr in s and
// returns its byte bounds in s. Offsets come from s itself, so case
// mappings that change encoded length elsewhere in s do not shift them.
func indexFold(s, substr string) (start, end int, ok bool) {
	if substr == "" {
		return 0, 0, false
	}
	n := utf8.RuneCountInString(substr)
	for i := range s {
		j, count := i, 0
		for count < n && j < len(s) {
			_, size := utf8.DecodeRuneInString(s[j:])
			j += size
			count++
		}
		if count < n {
			break
		}
		if strings.EqualFold(s[i:j], substr) {
			return i, j, true
		}
	}
	return 0, 0, false
}

// Trim strips spaces and punctuation, including CJK punctuation, from both
// ends of s.
func Trim(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

// Chinese reports whether s contains any Han characters. Plugins answer in
// Chinese when asked in Chinese.
func Chinese(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// Pick returns zh for Chinese input and en otherwise.
func Pick(input, zh, en string) string {
	if Chinese(input) {
		return zh
	}
	return en
}
