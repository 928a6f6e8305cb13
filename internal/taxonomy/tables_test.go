package taxonomy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTablesCoverEveryCategory(t *testing.T) {
	tbl := Default()
	for _, c := range Categories() {
		if w := tbl.Weight(c); w < MinWeight || w > MaxWeight {
			t.Fatalf("%s weight %d out of range", c, w)
		}
		if len(tbl.Patterns(c)) == 0 {
			t.Fatalf("%s has no patterns", c)
		}
		if len(tbl.Evidence(c)) == 0 {
			t.Fatalf("%s has no evidence items", c)
		}
	}
	if got := len(tbl.BaselineLaws()); got != 3 {
		t.Fatalf("expected 3 baseline laws, got %d", got)
	}
	if tbl.Digest() == "" {
		t.Fatalf("expected digest")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	tbl := Default()
	laws := tbl.BaselineLaws()
	laws[0].SectionID = "mutated"
	if tbl.BaselineLaws()[0].SectionID == "mutated" {
		t.Fatalf("baseline laws mutated through accessor")
	}
	ev := tbl.Evidence(SexualHarassment)
	ev[0] = "mutated"
	if tbl.Evidence(SexualHarassment)[0] == "mutated" {
		t.Fatalf("evidence mutated through accessor")
	}
}

func TestCategoryOrder(t *testing.T) {
	cats := Categories()
	if cats[0] != SexualHarassment || cats[len(cats)-1] != VerbalAbuse {
		t.Fatalf("unexpected order: %v", cats)
	}
	if Category("Nope").Index() != -1 {
		t.Fatalf("unknown category should have index -1")
	}
	if Threat.Index() != 3 {
		t.Fatalf("threat index = %d", Threat.Index())
	}
}

func TestParseRejectsBadTables(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown category",
			doc:  "baseline_laws: [{section: a, description: b}]\ncategories:\n  - name: Gossip\n    weight: 20\n    patterns: [{phrase: x}]\n",
			want: "unknown category",
		},
		{
			name: "missing categories",
			doc:  "baseline_laws: [{section: a, description: b}]\ncategories:\n  - name: General Verbal Abuse\n    weight: 15\n    patterns: [{phrase: idiot}]\n",
			want: "missing from tables",
		},
		{
			name: "weight out of range",
			doc:  "baseline_laws: [{section: a, description: b}]\ncategories:\n  - name: General Verbal Abuse\n    weight: 90\n    patterns: [{phrase: idiot}]\n",
			want: "weight",
		},
		{
			name: "bad regex",
			doc:  "baseline_laws: [{section: a, description: b}]\ncategories:\n  - name: General Verbal Abuse\n    weight: 15\n    patterns: [{regex: '(['}]\n",
			want: "compile regex",
		},
		{
			name: "empty baseline",
			doc:  "categories: []\n",
			want: "baseline_laws",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	if err := os.WriteFile(path, defaultTablesYAML, 0o644); err != nil {
		t.Fatalf("write tables: %v", err)
	}
	tbl, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl.Digest() != Default().Digest() {
		t.Fatalf("digest mismatch for identical content")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
