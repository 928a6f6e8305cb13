package taxonomy

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	MinWeight = 15
	MaxWeight = 45
)

//go:embed tables.yaml
var defaultTablesYAML []byte

type lawDoc struct {
	Section     string `yaml:"section"`
	Description string `yaml:"description"`
}

type categoryDoc struct {
	Name     string    `yaml:"name"`
	Weight   int       `yaml:"weight"`
	Patterns []Pattern `yaml:"patterns"`
	Laws     []lawDoc  `yaml:"laws"`
	Evidence []string  `yaml:"evidence"`
}

type tablesDoc struct {
	BaselineLaws []lawDoc      `yaml:"baseline_laws"`
	Categories   []categoryDoc `yaml:"categories"`
}

type categoryTable struct {
	weight   int
	patterns []Pattern
	laws     []LawEntry
	evidence []string
}

// Tables is the parsed, read-only rule/law/evidence configuration.
// Accessors return copies; a Tables value never changes after Parse.
type Tables struct {
	digest     string
	baseline   []LawEntry
	categories map[Category]categoryTable
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Default returns the embedded tables, parsed on first use.
func Default() *Tables {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = Parse(defaultTablesYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("taxonomy: embedded tables invalid: %v", defaultErr))
	}
	return defaultTables
}

// Load reads an override tables file. An empty path returns Default().
func Load(path string) (*Tables, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse tables %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a tables document.
func Parse(data []byte) (*Tables, error) {
	var doc tablesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}

	if len(doc.BaselineLaws) == 0 {
		return nil, errors.New("baseline_laws must not be empty")
	}
	baseline, err := convertLaws("baseline_laws", doc.BaselineLaws)
	if err != nil {
		return nil, err
	}

	cats := make(map[Category]categoryTable, len(ordered))
	for _, cd := range doc.Categories {
		c := Category(strings.TrimSpace(cd.Name))
		if !c.Valid() {
			return nil, fmt.Errorf("unknown category %q", cd.Name)
		}
		if _, dup := cats[c]; dup {
			return nil, fmt.Errorf("category %q listed twice", c)
		}
		if cd.Weight < MinWeight || cd.Weight > MaxWeight {
			return nil, fmt.Errorf("category %q weight %d outside %d..%d", c, cd.Weight, MinWeight, MaxWeight)
		}
		if len(cd.Patterns) == 0 {
			return nil, fmt.Errorf("category %q has no patterns", c)
		}
		for i, p := range cd.Patterns {
			if err := validatePattern(p); err != nil {
				return nil, fmt.Errorf("category %q pattern %d: %w", c, i, err)
			}
		}
		laws, err := convertLaws(string(c), cd.Laws)
		if err != nil {
			return nil, err
		}
		evidence := make([]string, 0, len(cd.Evidence))
		for _, e := range cd.Evidence {
			if e = strings.TrimSpace(e); e != "" {
				evidence = append(evidence, e)
			}
		}
		cats[c] = categoryTable{
			weight:   cd.Weight,
			patterns: append([]Pattern(nil), cd.Patterns...),
			laws:     laws,
			evidence: evidence,
		}
	}
	for _, c := range ordered {
		if _, ok := cats[c]; !ok {
			return nil, fmt.Errorf("category %q missing from tables", c)
		}
	}

	sum := sha256.Sum256(data)
	return &Tables{
		digest:     hex.EncodeToString(sum[:])[:12],
		baseline:   baseline,
		categories: cats,
	}, nil
}

func validatePattern(p Pattern) error {
	switch {
	case p.Phrase != "" && p.Regex != "":
		return errors.New("phrase and regex are mutually exclusive")
	case strings.TrimSpace(p.Phrase) == "" && p.Regex == "":
		return errors.New("phrase or regex required")
	case p.Regex != "":
		if _, err := regexp.Compile(p.Regex); err != nil {
			return fmt.Errorf("compile regex: %w", err)
		}
	}
	return nil
}

func convertLaws(owner string, in []lawDoc) ([]LawEntry, error) {
	out := make([]LawEntry, 0, len(in))
	for i, l := range in {
		id := strings.TrimSpace(l.Section)
		if id == "" {
			return nil, fmt.Errorf("%s law %d has empty section", owner, i)
		}
		out = append(out, LawEntry{SectionID: id, Description: strings.TrimSpace(l.Description)})
	}
	return out, nil
}

// Digest identifies the table content (sha256 prefix of the source document).
func (t *Tables) Digest() string { return t.digest }

// BaselineLaws returns the entries emitted for every analysis.
func (t *Tables) BaselineLaws() []LawEntry {
	return append([]LawEntry(nil), t.baseline...)
}

// Weight returns the severity weight for c, or 0 for an unknown category.
func (t *Tables) Weight(c Category) int {
	return t.categories[c].weight
}

// Patterns returns the rule patterns for c in table order.
func (t *Tables) Patterns(c Category) []Pattern {
	return append([]Pattern(nil), t.categories[c].patterns...)
}

// Laws returns the category-specific law entries for c.
func (t *Tables) Laws(c Category) []LawEntry {
	return append([]LawEntry(nil), t.categories[c].laws...)
}

// Evidence returns the recommended evidence items for c.
func (t *Tables) Evidence(c Category) []string {
	return append([]string(nil), t.categories[c].evidence...)
}
