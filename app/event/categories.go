package event

import "strings"

const DefaultCategory = "General"

// Categories is the fixed set of event categories, in canonical spelling.
var Categories = []string{
	"Academic",
	"Arts",
	"Athletics",
	"Career",
	"Community",
	"Cultural",
	DefaultCategory,
	"Health & Wellness",
	"Social",
	"Workshop",
}

var categoryIndex = func() map[string]string {
	index := make(map[string]string, len(Categories))
	for _, c := range Categories {
		index[strings.ToLower(c)] = c
	}
	return index
}()

// CanonicalCategory matches name case-insensitively against Categories.
func CanonicalCategory(name string) (string, bool) {
	c, ok := categoryIndex[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}
