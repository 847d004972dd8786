package classifier

import (
	"strings"
	"testing"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// FuzzClassify feeds arbitrary titles and abstracts through keyword
// extraction and classification.
func FuzzClassify(f *testing.F) {
	seeds := []string{
		"",
		"Graphene oxide membranes for battery separators",
		"STEEL ALLOY fatigue",
		"<script>alert('xss')</script>",
		"'; DROP TABLE papers; --",
		"quantum\x00dot",
		"\u202Eedixo\u202C",
		string([]byte{0xfe, 0xff}),
		strings.Repeat("polymer ", 2000),
	}
	for _, s := range seeds {
		f.Add(s)
	}

	known := make(map[string]bool)
	for _, c := range Categories() {
		known[c.Name] = true
	}

	f.Fuzz(func(t *testing.T, text string) {
		keywords := ExtractKeywords(text)
		if len(keywords) > domain.MaxKeywords {
			t.Fatalf("got %d keywords, max is %d", len(keywords), domain.MaxKeywords)
		}

		seen := make(map[string]bool)
		for _, name := range Classify(text) {
			if !known[name] {
				t.Fatalf("unknown category %q", name)
			}
			if seen[name] {
				t.Fatalf("category %q returned twice", name)
			}
			seen[name] = true
		}
	})
}
