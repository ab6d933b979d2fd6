package speech

import (
	"regexp"
	"strings"
)

// annotation matches whisper's environmental annotations such as
// "(keyboard clicking)" or "[laughter]".
var annotation = regexp.MustCompile(`[\(\[][\p{L}][\p{L}\s_]*[\)\]]`)

// timestampPrefix matches "[00:00:00.000 --> 00:00:05.000]".
var timestampPrefix = regexp.MustCompile(`^\[[0-9:.]+\s*-->\s*[0-9:.]+\]\s*`)

// hallucinations are transcripts whisper produces from silence.
var hallucinations = []string{
	"...",
	"you",
	"thank you.",
	"thanks for watching!",
	"thank you for watching.",
	"bye.",
	"the end.",
	"字幕由amara.org社区提供",
}

// CleanTranscription normalizes whitespace and strips recognizer artifacts.
// It returns "" when nothing meaningful remains.
func CleanTranscription(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	for {
		loc := timestampPrefix.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = s[loc[1]:]
	}

	s = annotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if lower == h {
			return ""
		}
	}
	return s
}

// WakeMatch is the result of looking for a wake phrase in a transcript.
type WakeMatch struct {
	Phrase    string
	Remainder string
}

// FindWakeWord looks for any of the wake words in text, case-insensitively.
// The remainder is whatever follows the wake word, with leading punctuation
// trimmed. ok is false when no wake word is present.
func FindWakeWord(text string, wakeWords []string) (match WakeMatch, ok bool) {
	haystack := strings.ToLower(text)
	folded := len(haystack) == len(text)
	if !folded {
		haystack = text
	}
	for _, w := range wakeWords {
		wl := strings.TrimSpace(w)
		if folded {
			wl = strings.ToLower(wl)
		}
		if wl == "" {
			continue
		}
		idx := strings.Index(haystack, wl)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(wl):]
		rest = strings.TrimLeft(rest, " ,.!?，。！？、\t\r\n")
		return WakeMatch{Phrase: w, Remainder: strings.TrimSpace(rest)}, true
	}
	return WakeMatch{}, false
}

// StripWakeWords removes every wake word from text. Used on active
// transcripts where the user repeats the wake phrase.
func StripWakeWords(text string, wakeWords []string) string {
	for _, w := range wakeWords {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		text = replaceFold(text, w, "")
	}
	text = strings.TrimLeft(text, " ,.!?，。！？、")
	return strings.Join(strings.Fields(text), " ")
}

// replaceFold replaces old with repl, ignoring case.
func replaceFold(s, old, repl string) string {
	lower := strings.ToLower(s)
	lowerOld := strings.ToLower(old)
	if len(lower) != len(s) {
		// Case mapping changed byte lengths; fall back to exact replacement.
		return strings.ReplaceAll(s, old, repl)
	}

	var b strings.Builder
	i := 0
	for {
		j := strings.Index(lower[i:], lowerOld)
		if j < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		b.WriteString(s[i : i+j])
		b.WriteString(repl)
		i += j + len(lowerOld)
	}
}
