package intel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/straja-ai/harassguard/internal/taxonomy"
)

type compiledPattern struct {
	hit string
	re  *regexp.Regexp
}

type categoryRules struct {
	category taxonomy.Category
	patterns []compiledPattern
}

// Matcher applies the per-category rule tables to incident text.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	id      string
	version string
	rules   []categoryRules
	count   int
}

var textNormalizer = strings.NewReplacer(
	"\u2019", "'",
	"\u2018", "'",
	"\u200e", "",
	"\u200f", "",
)

// NewMatcher compiles every pattern of the tables once.
func NewMatcher(tables *taxonomy.Tables) (*Matcher, error) {
	if tables == nil {
		return nil, fmt.Errorf("tables are nil")
	}
	m := &Matcher{
		id:      "harassguard-rules",
		version: tables.Digest(),
	}
	for _, c := range taxonomy.Categories() {
		cr := categoryRules{category: c}
		for _, p := range tables.Patterns(c) {
			re, err := compilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("category %q: %w", c, err)
			}
			cr.patterns = append(cr.patterns, compiledPattern{hit: p.HitText(), re: re})
		}
		m.count += len(cr.patterns)
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

// compilePattern anchors a literal phrase on the word boundary before it
// when it starts with a word character, so "hr" misses "three" and "f***"
// still matches. The trailing edge stays open so inflected forms such as
// "threats" or "extorting" match.
func compilePattern(p taxonomy.Pattern) (*regexp.Regexp, error) {
	if p.Regex != "" {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p.Regex, err)
		}
		return re, nil
	}

	phrase := strings.ToLower(textNormalizer.Replace(strings.TrimSpace(p.Phrase)))
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil, fmt.Errorf("empty phrase")
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	expr := strings.Join(quoted, `\s+`)
	if isWordByte(phrase[0]) {
		expr = `\b` + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile phrase %q: %w", p.Phrase, err)
	}
	return re, nil
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func (m *Matcher) Status() Status {
	return Status{
		Enabled:       true,
		BundleID:      m.id,
		BundleVersion: m.version,
		Patterns:      m.count,
	}
}

// Detect lower-cases text and tests every pattern of every category.
// Blank input yields an empty, non-nil result.
func (m *Matcher) Detect(text string) DetectionResult {
	res := DetectionResult{
		Detected: []taxonomy.Category{},
		Hits:     map[taxonomy.Category][]string{},
	}
	lc := strings.ToLower(textNormalizer.Replace(text))
	if strings.TrimSpace(lc) == "" {
		return res
	}

	for _, cr := range m.rules {
		var matched []string
		for _, p := range cr.patterns {
			if p.re.MatchString(lc) {
				matched = append(matched, p.hit)
			}
		}
		if len(matched) > 0 {
			res.Detected = append(res.Detected, cr.category)
			res.Hits[cr.category] = matched
		}
	}
	return res
}
