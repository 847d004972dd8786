// Package classifier maps free text onto a fixed materials-science taxonomy.
//
// Both the keyword vocabulary and the category table are static data. All
// functions are pure and safe for concurrent use.
package classifier

import (
	"strings"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// vocabulary is scanned in declaration order by ExtractKeywords.
var vocabulary = []string{
	"nanoparticle",
	"nanostructure",
	"nanocomposite",
	"nanotechnology",
	"quantum",
	"electronic",
	"optical",
	"magnetic",
	"thermal",
	"mechanical",
	"electrochemical",
	"photovoltaic",
	"catalytic",
	"synthesis",
	"characterization",
	"fabrication",
	"processing",
}

// Category is a named group of trigger terms.
type Category struct {
	Name     string
	Triggers []string
}

// categories is scanned in declaration order by Classify.
var categories = []Category{
	{Name: "metals", Triggers: []string{"metal", "alloy", "steel", "aluminum", "copper", "titanium"}},
	{Name: "ceramics", Triggers: []string{"ceramic", "oxide", "nitride", "carbide"}},
	{Name: "polymers", Triggers: []string{"polymer", "plastic", "resin", "composite"}},
	{Name: "nanomaterials", Triggers: []string{"nanoparticle", "nanotube", "nanowire", "quantum dot"}},
	{Name: "2D materials", Triggers: []string{"graphene", "molybdenum disulfide", "boron nitride"}},
	{Name: "biomaterials", Triggers: []string{"biomaterial", "biocompatible", "tissue engineering"}},
	{Name: "energy materials", Triggers: []string{"battery", "solar cell", "fuel cell", "supercapacitor"}},
	{Name: "electronic materials", Triggers: []string{"semiconductor", "conductor", "insulator"}},
}

// Vocabulary returns a copy of the keyword vocabulary.
func Vocabulary() []string {
	out := make([]string, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Categories returns a copy of the category table.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i, c := range categories {
		out[i] = Category{Name: c.Name, Triggers: append([]string(nil), c.Triggers...)}
	}
	return out
}

// ExtractKeywords returns the vocabulary terms found in text, case-insensitively,
// in vocabulary order and truncated to domain.MaxKeywords entries.
func ExtractKeywords(text string) []string {
	lower := strings.ToLower(text)
	keywords := make([]string, 0, domain.MaxKeywords)
	if lower == "" {
		return keywords
	}
	for _, term := range vocabulary {
		if strings.Contains(lower, term) {
			keywords = append(keywords, term)
			if len(keywords) == domain.MaxKeywords {
				break
			}
		}
	}
	return keywords
}

// Classify returns the names of every category with at least one trigger term
// appearing in text. Each category appears at most once, in table order.
func Classify(text string) []string {
	lower := strings.ToLower(text)
	matched := make([]string, 0, 2)
	if lower == "" {
		return matched
	}
	for _, c := range categories {
		for _, trigger := range c.Triggers {
			if strings.Contains(lower, trigger) {
				matched = append(matched, c.Name)
				break
			}
		}
	}
	return matched
}

// Apply fills the derived Keywords and MaterialsFocus fields of r from text.
func Apply(r *domain.Record, text string) {
	r.Keywords = ExtractKeywords(text)
	r.MaterialsFocus = Classify(text)
}
