// Package laws maps detected categories to legal references.
package laws

import "github.com/straja-ai/harassguard/internal/taxonomy"

// Map returns the baseline entries followed by the entries of every detected
// category in table order, keeping the first entry per section id.
// The order of detected and any duplicates in it do not affect the output.
func Map(tables *taxonomy.Tables, detected []taxonomy.Category) []taxonomy.LawEntry {
	present := make(map[taxonomy.Category]bool, len(detected))
	for _, c := range detected {
		present[c] = true
	}

	seen := map[string]bool{}
	out := []taxonomy.LawEntry{}
	add := func(entries []taxonomy.LawEntry) {
		for _, e := range entries {
			if seen[e.SectionID] {
				continue
			}
			seen[e.SectionID] = true
			out = append(out, e)
		}
	}

	add(tables.BaselineLaws())
	for _, c := range taxonomy.Categories() {
		if present[c] {
			add(tables.Laws(c))
		}
	}
	return out
}
