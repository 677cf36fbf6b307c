// Package preference holds the dietary preferences accumulated over one conversation.
package preference

import (
	"fmt"
	"strings"
)

// Unknown marks a field the user has not stated yet. It is distinct from an
// explicit answer such as "none".
const Unknown Field = "unknown"

// Field is a single preference value or Unknown.
type Field string

// Known reports whether the field carries a stated value. Blank values count as unknown.
func (f Field) Known() bool {
	v := strings.TrimSpace(string(f))
	return v != "" && !strings.EqualFold(v, string(Unknown))
}

func (f Field) String() string {
	if !f.Known() {
		return string(Unknown)
	}
	return string(f)
}

// Nutritional goals accepted by the extraction schema.
const (
	GoalWeightLoss        = "weight loss"
	GoalMuscleGain        = "muscle gain"
	GoalMaintenance       = "maintenance"
	GoalEndurance         = "endurance"
	GoalHealthImprovement = "health improvement"
	Other                 = "other"
)

// Dietary restrictions accepted by the extraction schema.
const (
	RestrictionVegan      = "vegan"
	RestrictionVegetarian = "vegetarian"
	RestrictionGlutenFree = "gluten-free"
	RestrictionDairyFree  = "dairy-free"
	RestrictionNutFree    = "nut-free"
	RestrictionHalal      = "halal"
	RestrictionKosher     = "kosher"
	RestrictionNone       = "none"
)

func NutritionalGoals() []string {
	return []string{
		string(Unknown), GoalWeightLoss, GoalMuscleGain, GoalMaintenance,
		GoalEndurance, GoalHealthImprovement, Other,
	}
}

func DietaryRestrictions() []string {
	return []string{
		string(Unknown), RestrictionVegan, RestrictionVegetarian, RestrictionGlutenFree,
		RestrictionDairyFree, RestrictionNutFree, RestrictionHalal, RestrictionKosher,
		RestrictionNone, Other,
	}
}

// Store is the four-field preference record.
type Store struct {
	Cuisine            Field `json:"cuisine"`
	NutritionalGoal    Field `json:"nutritionalGoal"`
	DietaryRestriction Field `json:"dietaryRestriction"`
	FoodPreference     Field `json:"foodPreference"`
}

// New returns a store with every field Unknown.
func New() Store {
	return Store{
		Cuisine:            Unknown,
		NutritionalGoal:    Unknown,
		DietaryRestriction: Unknown,
		FoodPreference:     Unknown,
	}
}

// Merge takes each field from extracted unless it is unknown, in which case the
// current value is kept. A known field is never reverted to unknown.
func Merge(current, extracted Store) Store {
	pick := func(cur, ext Field) Field {
		if ext.Known() {
			return Field(strings.TrimSpace(string(ext)))
		}
		if cur.Known() {
			return cur
		}
		return Unknown
	}
	return Store{
		Cuisine:            pick(current.Cuisine, extracted.Cuisine),
		NutritionalGoal:    pick(current.NutritionalGoal, extracted.NutritionalGoal),
		DietaryRestriction: pick(current.DietaryRestriction, extracted.DietaryRestriction),
		FoodPreference:     pick(current.FoodPreference, extracted.FoodPreference),
	}
}

// NamedField pairs a field with its wire name.
type NamedField struct {
	Name  string
	Value Field
}

func (s Store) Fields() []NamedField {
	return []NamedField{
		{"cuisine", s.Cuisine},
		{"nutritionalGoal", s.NutritionalGoal},
		{"dietaryRestriction", s.DietaryRestriction},
		{"foodPreference", s.FoodPreference},
	}
}

// KnownCount returns how many fields carry a stated value.
func (s Store) KnownCount() int {
	n := 0
	for _, f := range s.Fields() {
		if f.Value.Known() {
			n++
		}
	}
	return n
}

// Hints renders the store as "name: value" lines with unknown fields spelled out.
func (s Store) Hints() string {
	var b strings.Builder
	for _, f := range s.Fields() {
		fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Value)
	}
	return b.String()
}

// Or returns the field value, or def when unknown.
func (f Field) Or(def string) string {
	if !f.Known() {
		return def
	}
	return string(f)
}
