// Package tokenize turns free text into normalized lexical terms and alias
// lookup keys. Minimum token length depends on the script a token is written
// in: scripts where short tokens are still meaningful (Hebrew, Arabic, CJK)
// accept shorter tokens than Latin-like scripts.
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Script is the writing system a token is classified under.
type Script int

// Scripts with distinct minimum token lengths.
const (
	ScriptLatin Script = iota // also Cyrillic, Greek, and anything unlisted
	ScriptHebrew
	ScriptArabic
	ScriptCJK
	ScriptDigit
)

var defaultMinLen = map[Script]int{
	ScriptLatin:  3,
	ScriptHebrew: 2,
	ScriptArabic: 2,
	ScriptCJK:    1,
	ScriptDigit:  2,
}

// hebrewPrefixes are single-letter clitics (and, the, in, to) that attach to
// the following word.
var hebrewPrefixes = []rune{'ו', 'ה', 'ב', 'ל'}

// Tokenizer extracts lexical terms from text.
type Tokenizer struct {
	stop   map[string]struct{}
	minLen map[Script]int
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithMinLength overrides the minimum token length for one script.
func WithMinLength(s Script, n int) Option {
	return func(t *Tokenizer) { t.minLen[s] = n }
}

// WithStopwords adds stopwords on top of the built-in lists.
func WithStopwords(words ...string) Option {
	return func(t *Tokenizer) {
		for _, w := range words {
			t.stop[Normalize(w)] = struct{}{}
		}
	}
}

// New creates a Tokenizer with the built-in English and Hebrew stopwords.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		stop:   make(map[string]struct{}, len(englishStopwords)+len(hebrewStopwords)),
		minLen: make(map[Script]int, len(defaultMinLen)),
	}

	for s, n := range defaultMinLen {
		t.minLen[s] = n
	}

	for _, w := range englishStopwords {
		t.stop[w] = struct{}{}
	}

	for _, w := range hebrewStopwords {
		t.stop[w] = struct{}{}
	}

	for _, o := range opts {
		o(t)
	}

	return t
}

// Normalize applies NFKC, removes combining marks (accents, niqqud and
// cantillation), folds case and collapses whitespace.
func Normalize(s string) string {
	tr := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(isStrippableMark)), norm.NFKC, cases.Fold())

	out, _, err := transform.String(tr, s)
	if err != nil {
		out = strings.ToLower(s)
	}

	return strings.Join(strings.Fields(out), " ")
}

// isStrippableMark keeps the kana voicing marks, which change the letter.
func isStrippableMark(r rune) bool {
	return unicode.Is(unicode.Mn, r) && r != '\u3099' && r != '\u309A'
}

// Words splits text into normalized words without dropping stopwords or
// short tokens. Alias resolution builds n-grams from these.
func Words(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Terms returns the deduplicated lexical terms of text in order of first
// appearance. Stopwords and tokens below their script's minimum length are
// dropped. Hebrew words with a clitic prefix also yield the bare stem.
func (t *Tokenizer) Terms(text string) []string {
	words := Words(text)
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))

	add := func(w string) {
		if _, ok := seen[w]; ok {
			return
		}

		if !t.Keep(w) {
			return
		}

		seen[w] = struct{}{}
		terms = append(terms, w)
	}

	for _, w := range words {
		add(w)

		if stem, ok := stripHebrewPrefix(w); ok {
			add(stem)
		}
	}

	return terms
}

// Keep reports whether a normalized word is a usable lexical term.
func (t *Tokenizer) Keep(w string) bool {
	if _, stop := t.stop[w]; stop {
		return false
	}

	return len([]rune(w)) >= t.minLen[Classify(w)]
}

// Classify returns the script of the first letter or digit in w.
func Classify(w string) Script {
	for _, r := range w {
		switch {
		case unicode.Is(unicode.Hebrew, r):
			return ScriptHebrew
		case unicode.Is(unicode.Arabic, r):
			return ScriptArabic
		case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r),
			unicode.Is(unicode.Katakana, r), unicode.Is(unicode.Hangul, r):
			return ScriptCJK
		case unicode.IsNumber(r):
			return ScriptDigit
		case unicode.IsLetter(r):
			return ScriptLatin
		}
	}

	return ScriptLatin
}

func stripHebrewPrefix(w string) (string, bool) {
	rs := []rune(w)
	if len(rs) < 4 || !unicode.Is(unicode.Hebrew, rs[0]) {
		return "", false
	}

	for _, p := range hebrewPrefixes {
		if rs[0] == p {
			return string(rs[1:]), true
		}
	}

	return "", false
}

// Variants returns w and, when w is a Hebrew word carrying a clitic prefix,
// its bare stem. Alias lookups try both.
func Variants(w string) []string {
	if stem, ok := stripHebrewPrefix(w); ok {
		return []string{w, stem}
	}

	return []string{w}
}
