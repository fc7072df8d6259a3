// Package phonetic matches wake phrases against transcribed text.
//
// Frame-level wake-word models only cover the audio path. Text-mode clients
// (keyboard fallback, chat transports) still need a way to address the
// assistant, and STT output frequently mangles the wake phrase itself
// ("hal seon", "hell scion"). This matcher combines Double Metaphone phonetic
// encoding with Jaro-Winkler similarity so such near-misses still count as an
// invocation.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultThreshold is the minimum Jaro-Winkler score for a leading token
// group to be accepted as the wake phrase.
const defaultThreshold = 0.80

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold overrides the minimum Jaro-Winkler similarity. Default: 0.80.
func WithThreshold(t float64) Option {
	return func(m *Matcher) { m.threshold = t }
}

// Matcher tests whether a transcript starts with one of the configured wake
// phrases. It is read-only after construction and safe for concurrent use.
type Matcher struct {
	phrases   []string
	threshold float64
}

// New creates a Matcher for the given wake phrases (e.g. "hey halcyon",
// "computer").
func New(phrases []string, opts ...Option) *Matcher {
	m := &Matcher{threshold: defaultThreshold}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			m.phrases = append(m.phrases, p)
		}
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match reports whether text begins with a wake phrase. On a match it
// returns the remainder of the text with the phrase stripped, the similarity
// score, and true. Otherwise it returns text unchanged, 0, and false.
func (m *Matcher) Match(text string) (rest string, score float64, matched bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len(m.phrases) == 0 {
		return text, 0, false
	}

	lower := strings.ToLower(trimmed)
	tokens := strings.Fields(lower)

	for _, phrase := range m.phrases {
		n := len(strings.Fields(phrase))
		if n == 0 || n > len(tokens) {
			continue
		}
		head := strings.Join(tokens[:n], " ")

		s := similarity(head, phrase)
		if s < m.threshold {
			continue
		}
		if s > score {
			score = s
			rest = remainderAfter(trimmed, n)
			matched = true
		}
	}

	if !matched {
		return text, 0, false
	}
	return rest, score, true
}

// similarity scores two phrases, requiring phonetic overlap before Jaro-
// Winkler ranking so visually close but differently pronounced words do not
// slip through.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if !codesOverlap(codesFor(a), codesFor(b)) {
		return 0
	}
	score := matchr.JaroWinkler(a, b, false)
	// Space-stripped comparison handles "hal seon" vs "halcyon".
	if s := matchr.JaroWinkler(strings.ReplaceAll(a, " ", ""), strings.ReplaceAll(b, " ", ""), false); s > score {
		score = s
	}
	return score
}

// codesFor returns the union of Double Metaphone codes for every token in s.
func codesFor(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 4)
	for _, t := range strings.Fields(s) {
		p, sec := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// remainderAfter strips the first n whitespace-separated tokens from the
// original (case-preserved) text and trims leading punctuation left behind
// by the wake phrase ("halcyon, what time is it" → "what time is it").
func remainderAfter(text string, n int) string {
	fields := strings.Fields(text)
	if n >= len(fields) {
		return ""
	}
	rest := strings.Join(fields[n:], " ")
	return strings.TrimLeft(rest, ",.;:!? ")
}
