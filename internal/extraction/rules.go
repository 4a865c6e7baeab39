package extraction

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/wolfman30/booking-assistant/internal/textnorm"
)

// Rule finds one field value in free text. When a rule matches several
// times the latest mention wins.
type Rule interface {
	Name() string
	Apply(text string) (string, bool)
}

// Cascade tries rules in priority order; the first match wins.
type Cascade []Rule

// Apply returns the first rule match and the name of the rule that found it.
func (c Cascade) Apply(text string) (value, rule string, ok bool) {
	for _, r := range c {
		if v, ok := r.Apply(text); ok {
			return v, r.Name(), true
		}
	}
	return "", "", false
}

// LabeledField reads "Label: value" lines, tolerating emoji prefixes and
// WhatsApp bold markers around the label.
type LabeledField struct {
	Labels []string
}

func (r LabeledField) Name() string { return "labeled_field" }

func (r LabeledField) Apply(text string) (string, bool) {
	var found string
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !r.matches(key) {
			continue
		}
		value = strings.Trim(value, " \t*_~")
		if value != "" {
			found = value
		}
	}
	return found, found != ""
}

func (r LabeledField) matches(key string) bool {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || r == ' ' {
			return r
		}
		return -1
	}, textnorm.Fold(key)))
	for _, label := range r.Labels {
		if cleaned == label || strings.HasSuffix(cleaned, " "+label) {
			return true
		}
	}
	return false
}

var (
	nameIntroRE = regexp.MustCompile(`(?i:meu nome (?:é|e)|me chamo|pode ser no nome de|em nome de|my name is|i'm|i am)\s+(\p{Lu}\p{Ll}+(?:\s+(?:d[aeo]s?\s+)?\p{Lu}\p{Ll}+)*)`)
	namePairRE  = regexp.MustCompile(`^(\p{Lu}\p{Ll}+(?:\s+(?:d[aeo]s?\s+)?\p{Lu}\p{Ll}+)+)[.!]?$`)
)

// CapitalizedNamePair finds a person's name introduced with "meu nome é",
// "me chamo" and similar, or a line that is nothing but capitalized words.
// Exclude holds folded words that disqualify a bare capitalized line, such
// as weekday or professional names.
type CapitalizedNamePair struct {
	Exclude map[string]bool
}

func (r CapitalizedNamePair) Name() string { return "capitalized_name_pair" }

func (r CapitalizedNamePair) Apply(text string) (string, bool) {
	var found string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := nameIntroRE.FindAllStringSubmatch(line, -1); len(m) > 0 {
			found = m[len(m)-1][1]
			continue
		}
		if m := namePairRE.FindStringSubmatch(line); m != nil && !r.excluded(m[1]) {
			found = m[1]
		}
	}
	return found, found != ""
}

func (r CapitalizedNamePair) excluded(name string) bool {
	for _, w := range strings.Fields(textnorm.Fold(name)) {
		if r.Exclude[w] {
			return true
		}
	}
	return false
}

// KnownEntityScan looks for any of a fixed set of names in the text, on word
// boundaries and ignoring case and accents. It returns the name as listed.
type KnownEntityScan struct {
	Names []string
}

func (r KnownEntityScan) Name() string { return "known_entity_scan" }

func (r KnownEntityScan) Apply(text string) (string, bool) {
	folded := textnorm.Fold(text)
	best, bestPos := "", -1
	for _, name := range r.Names {
		needle := textnorm.Fold(name)
		if needle == "" {
			continue
		}
		if pos := lastPhraseIndex(folded, needle); pos > bestPos {
			best, bestPos = name, pos
		}
	}
	return best, bestPos >= 0
}

// lastPhraseIndex returns the byte offset of the last whole-word occurrence
// of phrase in s, or -1.
func lastPhraseIndex(s, phrase string) int {
	last := -1
	for idx := 0; idx+len(phrase) <= len(s); {
		pos := strings.Index(s[idx:], phrase)
		if pos < 0 {
			break
		}
		start := idx + pos
		if wordBoundary(s, start-1) && wordBoundary(s, start+len(phrase)) {
			last = start
		}
		idx = start + 1
	}
	return last
}

func wordBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}

func containsWord(s, phrase string) bool {
	return lastPhraseIndex(textnorm.Fold(s), textnorm.Fold(phrase)) >= 0
}
