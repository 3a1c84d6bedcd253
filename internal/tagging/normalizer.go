// Package tagging derives tags and fallback embeddings from raw product attributes.
package tagging

import (
	"sort"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {}, "that": {}, "pack": {},
}

// Attributes is the raw product data tags are derived from.
type Attributes struct {
	Title    string
	Category string
	Vendor   string
	Price    float64
	Tags     []string
}

// Normalize returns the canonical tag set of a product, sorted for stable output.
func Normalize(a Attributes) []string {
	set := make(map[string]struct{})
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			set[tag] = struct{}{}
		}
	}

	add(strings.ToLower(a.Category))
	for _, token := range titleTokens(a.Title) {
		add(token)
	}
	if vendor := strings.TrimSpace(a.Vendor); vendor != "" {
		add("vendor:" + dashed(vendor))
	}
	add(PriceBucket(a.Price))
	for _, t := range a.Tags {
		add(strings.ToLower(t))
	}

	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// PriceBucket maps a price onto the fixed price ladder.
func PriceBucket(price float64) string {
	switch {
	case price < 30:
		return "price:budget"
	case price < 75:
		return "price:mid"
	case price < 150:
		return "price:premium"
	default:
		return "price:luxury"
	}
}

// CategoryTag is the primary tag used when no oracle-assigned tag is available.
func CategoryTag(category, title string) string {
	if tag := Canonical(category); tag != "" {
		return tag
	}
	tokens := titleTokens(title)
	if len(tokens) > 0 {
		return tokens[len(tokens)-1]
	}
	return ""
}

// Canonical lowercases a tag and joins its words with dashes.
func Canonical(tag string) string {
	return dashed(tag)
}

func titleTokens(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) <= 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func dashed(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), "-")
}
