package laws

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/straja-ai/harassguard/internal/taxonomy"
)

func sections(entries []taxonomy.LawEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.SectionID)
	}
	return out
}

func TestMapBaselineOnly(t *testing.T) {
	got := Map(taxonomy.Default(), nil)
	want := []string{"IT Act 2000 - Section 66E", "IT Act 2000 - Section 67", "IT Act 2000 - Section 67A"}
	if diff := cmp.Diff(want, sections(got)); diff != "" {
		t.Fatalf("baseline (-want +got):\n%s", diff)
	}
}

func TestMapDedupesSharedSections(t *testing.T) {
	got := Map(taxonomy.Default(), []taxonomy.Category{
		taxonomy.OnlineObscene,
		taxonomy.Workplace,
		taxonomy.SexualHarassment,
		taxonomy.Workplace,
	})
	want := []string{
		"IT Act 2000 - Section 66E", "IT Act 2000 - Section 67", "IT Act 2000 - Section 67A",
		"IPC 354", "IPC 354A", "IPC 509", "POSH Act 2013",
		"IT Act 67",
	}
	if diff := cmp.Diff(want, sections(got)); diff != "" {
		t.Fatalf("sections (-want +got):\n%s", diff)
	}

	for _, e := range got {
		if e.SectionID == "POSH Act 2013" && e.Description != "Workplace sexual harassment complaint via Internal Committee (IC)." {
			t.Fatalf("first occurrence should win for POSH, got %q", e.Description)
		}
		if e.SectionID == "IPC 509" && e.Description != "Word/gesture intended to insult modesty of a woman." {
			t.Fatalf("first occurrence should win for IPC 509, got %q", e.Description)
		}
	}
}

func TestMapNeverDuplicatesAcrossAllCategories(t *testing.T) {
	got := Map(taxonomy.Default(), taxonomy.Categories())
	seen := map[string]bool{}
	for _, e := range got {
		if seen[e.SectionID] {
			t.Fatalf("duplicate section %s", e.SectionID)
		}
		seen[e.SectionID] = true
	}
	if sections(got)[0] != "IT Act 2000 - Section 66E" {
		t.Fatalf("baseline must come first")
	}
}
