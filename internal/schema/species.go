package schema

import "strings"

// EmptyCategoryName is the category assigned to rows without a species.
const EmptyCategoryName = "empty"

// CategoryNameFor maps an optional species value onto a category name. A nil
// or blank species becomes EmptyCategoryName; anything else is used verbatim
// so that case differences stay distinct categories.
func CategoryNameFor(species *string) string {
	if species == nil || strings.TrimSpace(*species) == "" {
		return EmptyCategoryName
	}
	return *species
}
