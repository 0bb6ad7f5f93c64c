package leadcapture

import "strings"

// Industry is one entry of the fixed category list offered by the form.
type Industry struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

var industryLabels = []string{
	"Technology",
	"Healthcare",
	"Finance",
	"Education",
	"Retail & E-commerce",
	"Manufacturing",
	"Consulting",
	"Other",
}

var industryKeys = func() map[string]struct{} {
	keys := make(map[string]struct{}, len(industryLabels))
	for _, label := range industryLabels {
		keys[IndustryKey(label)] = struct{}{}
	}
	return keys
}()

// IndustryKey derives the storage key of a category from its display label.
func IndustryKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Industries returns the categories in display order.
func Industries() []Industry {
	out := make([]Industry, 0, len(industryLabels))
	for _, label := range industryLabels {
		out = append(out, Industry{Label: label, Key: IndustryKey(label)})
	}
	return out
}

// IsIndustry reports whether value names a category, by label or key,
// ignoring case.
func IsIndustry(value string) bool {
	_, ok := industryKeys[IndustryKey(value)]
	return ok
}
