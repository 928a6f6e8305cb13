package evidence

import (
	"math"
	"strings"

	"github.com/straja-ai/harassguard/internal/taxonomy"
)

// Readiness scores with no category-specific checklist.
const (
	BaselineWithUploads    = 25
	BaselineWithoutUploads = 10
)

// presenceRule marks a checklist item as present when its text contains one
// of the keywords and any upload name carries one of the extensions.
type presenceRule struct {
	keywords   []string
	extensions []string
}

var presenceRules = []presenceRule{
	{keywords: []string{"screenshot"}, extensions: []string{"png", "jpg", "jpeg"}},
	{keywords: []string{"cctv"}, extensions: []string{"mp4", "mov", "avi", "mkv"}},
	{keywords: []string{"chat export"}, extensions: []string{"txt", "pdf"}},
	{keywords: []string{"audio"}, extensions: []string{"mp3", "wav"}},
	{keywords: []string{"medical", "email"}, extensions: []string{"pdf"}},
}

// Readiness is the evidence-completeness assessment for one analysis.
type Readiness struct {
	Checklist []string `json:"evidence_checklist"`
	Missing   []string `json:"missing_evidence"`
	Readiness int      `json:"evidence_readiness"`
}

// Checklist concatenates the evidence items of the detected categories in
// table order, keeping the first occurrence of each item.
func Checklist(tables *taxonomy.Tables, detected []taxonomy.Category) []string {
	want := make(map[taxonomy.Category]bool, len(detected))
	for _, c := range detected {
		want[c] = true
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, c := range taxonomy.Categories() {
		if !want[c] {
			continue
		}
		for _, item := range tables.Evidence(c) {
			if seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// Score builds the checklist and checks it against the upload names.
// Presence is a coarse existence test: one qualifying upload satisfies every
// item its extension covers.
func Score(tables *taxonomy.Tables, detected []taxonomy.Category, uploads []UploadRecord) Readiness {
	checklist := Checklist(tables, detected)
	r := Readiness{Checklist: checklist, Missing: []string{}}

	if len(checklist) == 0 {
		r.Readiness = BaselineWithoutUploads
		if len(uploads) > 0 {
			r.Readiness = BaselineWithUploads
		}
		return r
	}

	names := make([]string, 0, len(uploads))
	for _, u := range uploads {
		names = append(names, strings.ToLower(u.OriginalName))
	}
	joined := strings.Join(names, " ")

	present := 0
	for _, item := range checklist {
		if itemPresent(strings.ToLower(item), joined) {
			present++
			continue
		}
		r.Missing = append(r.Missing, item)
	}
	r.Readiness = clampPercent(int(math.Round(float64(present) / float64(len(checklist)) * 100)))
	return r
}

func itemPresent(item, names string) bool {
	for _, rule := range presenceRules {
		if !containsAny(item, rule.keywords) {
			continue
		}
		for _, ext := range rule.extensions {
			if strings.Contains(names, "."+ext) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
