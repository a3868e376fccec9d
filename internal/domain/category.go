package domain

import (
	"fmt"
	"strings"
)

// CategoryOther is assigned when a raw category matches nothing known.
const CategoryOther = "other"

// Categories is the closed set every stored category belongs to.
var Categories = []string{
	"restaurant",
	"cafe",
	"bar",
	"bakery",
	"grocery",
	"retail",
	"service",
	"health",
	"entertainment",
	"lodging",
	CategoryOther,
}

// categoryAliases maps normalized free-text categories to the closed set.
var categoryAliases = map[string]string{
	"food":                   "restaurant",
	"diner":                  "restaurant",
	"bistro":                 "restaurant",
	"eatery":                 "restaurant",
	"fast_food":              "restaurant",
	"meal_takeaway":          "restaurant",
	"meal_delivery":          "restaurant",
	"coffee":                 "cafe",
	"coffee_shop":            "cafe",
	"coffeehouse":            "cafe",
	"tea_house":              "cafe",
	"pub":                    "bar",
	"night_club":             "bar",
	"nightclub":              "bar",
	"brewery":                "bar",
	"wine_bar":               "bar",
	"pastry":                 "bakery",
	"patisserie":             "bakery",
	"supermarket":            "grocery",
	"grocery_store":          "grocery",
	"grocery_or_supermarket": "grocery",
	"convenience_store":      "grocery",
	"market":                 "grocery",
	"store":                  "retail",
	"shop":                   "retail",
	"shopping":               "retail",
	"clothing_store":         "retail",
	"book_store":             "retail",
	"bookstore":              "retail",
	"hardware_store":         "retail",
	"salon":                  "service",
	"hair_care":              "service",
	"beauty_salon":           "service",
	"laundry":                "service",
	"car_repair":             "service",
	"pharmacy":               "health",
	"doctor":                 "health",
	"dentist":                "health",
	"clinic":                 "health",
	"hospital":               "health",
	"gym":                    "health",
	"cinema":                 "entertainment",
	"movie_theater":          "entertainment",
	"museum":                 "entertainment",
	"theater":                "entertainment",
	"bowling_alley":          "entertainment",
	"hotel":                  "lodging",
	"motel":                  "lodging",
	"hostel":                 "lodging",
	"bed_and_breakfast":      "lodging",
}

var knownCategories = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		m[c] = struct{}{}
	}
	return m
}()

// CategoryTable maps free-text categories onto the closed set.
type CategoryTable struct {
	aliases map[string]string
}

var defaultCategories = &CategoryTable{aliases: categoryAliases}

// DefaultCategoryTable returns the built-in alias table.
func DefaultCategoryTable() *CategoryTable {
	return defaultCategories
}

// NewCategoryTable returns the built-in table extended with extra aliases.
// Keys are normalized like any raw category and override built-in entries.
// Every target must be a member of Categories.
func NewCategoryTable(extra map[string]string) (*CategoryTable, error) {
	aliases := make(map[string]string, len(categoryAliases)+len(extra))
	for k, v := range categoryAliases {
		aliases[k] = v
	}
	for raw, target := range extra {
		key := categoryKey(raw)
		if key == "" {
			return nil, NewValidationError("category_aliases", "alias must not be empty", ErrValidation)
		}
		target = categoryKey(target)
		if !IsKnownCategory(target) {
			return nil, NewValidationError("category_aliases",
				fmt.Sprintf("alias %q maps to unknown category %q", raw, target), ErrValidation)
		}
		aliases[key] = target
	}
	return &CategoryTable{aliases: aliases}, nil
}

// Normalize maps a raw category onto the closed set. Matching is
// case-insensitive and treats spaces and hyphens as underscores. Unknown or
// empty input yields CategoryOther. A nil table uses the built-in aliases.
func (t *CategoryTable) Normalize(raw string) string {
	if t == nil {
		t = defaultCategories
	}
	key := categoryKey(raw)
	if key == "" {
		return CategoryOther
	}
	if IsKnownCategory(key) {
		return key
	}
	if c, ok := t.aliases[key]; ok {
		return c
	}
	return CategoryOther
}

// NormalizeCategory normalizes raw with the built-in table.
func NormalizeCategory(raw string) string {
	return defaultCategories.Normalize(raw)
}

// IsKnownCategory reports whether c is already a member of the closed set.
func IsKnownCategory(c string) bool {
	_, ok := knownCategories[c]
	return ok
}

var categoryReplacer = strings.NewReplacer(" ", "_", "-", "_")

func categoryKey(raw string) string {
	return categoryReplacer.Replace(strings.ToLower(strings.TrimSpace(raw)))
}
