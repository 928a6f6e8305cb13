// Package taxonomy holds the closed harassment category set and the static
// rule, law and evidence tables keyed by it.
package taxonomy

// Category is one label from the closed harassment taxonomy.
type Category string

const (
	SexualHarassment Category = "Sexual Harassment / Physical Touching"
	Workplace        Category = "Workplace Harassment"
	Stalking         Category = "Stalking / Repeated Contact"
	Threat           Category = "Threat / Intimidation"
	Blackmail        Category = "Blackmail / Sextortion"
	OnlineObscene    Category = "Online Sexual Harassment / Obscene Content"
	HateBased        Category = "Hate-based Harassment"
	VerbalAbuse      Category = "General Verbal Abuse"
)

// ordered is the category-table order. Outputs that list categories follow it.
var ordered = [...]Category{
	SexualHarassment,
	Workplace,
	Stalking,
	Threat,
	Blackmail,
	OnlineObscene,
	HateBased,
	VerbalAbuse,
}

// Categories returns the categories in table order.
func Categories() []Category {
	out := make([]Category, len(ordered))
	copy(out, ordered[:])
	return out
}

// Index returns the table position of c, or -1 if c is not a known category.
func (c Category) Index() int {
	for i, o := range ordered {
		if o == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c belongs to the taxonomy.
func (c Category) Valid() bool { return c.Index() >= 0 }

// LawEntry is one legal reference attached to an analysis.
type LawEntry struct {
	SectionID   string `json:"section_id"`
	Description string `json:"description"`
}

// Pattern is one rule-table entry. Exactly one of Phrase or Regex is set;
// Label names a regex in rule hits.
type Pattern struct {
	Phrase string `yaml:"phrase,omitempty" json:"phrase,omitempty"`
	Regex  string `yaml:"regex,omitempty" json:"regex,omitempty"`
	Label  string `yaml:"label,omitempty" json:"label,omitempty"`
}

// HitText is the string recorded when the pattern matches.
func (p Pattern) HitText() string {
	if p.Regex != "" {
		if p.Label != "" {
			return p.Label
		}
		return p.Regex
	}
	return p.Phrase
}
