package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New()
	for _, f := range s.Fields() {
		assert.Equal(t, Unknown, f.Value, f.Name)
	}
	assert.Equal(t, 0, s.KnownCount())
}

func TestField_Known(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		want  bool
	}{
		{name: "sentinel", field: Unknown, want: false},
		{name: "sentinel uppercase", field: "UNKNOWN", want: false},
		{name: "empty", field: "", want: false},
		{name: "whitespace", field: "   ", want: false},
		{name: "explicit none", field: "none", want: true},
		{name: "value", field: "Thai", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.field.Known())
		})
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		current   Store
		extracted Store
		want      Store
	}{
		{
			name:      "fills unknown fields",
			current:   New(),
			extracted: Store{Cuisine: "Thai", NutritionalGoal: Unknown, DietaryRestriction: "vegan", FoodPreference: Unknown},
			want:      Store{Cuisine: "Thai", NutritionalGoal: Unknown, DietaryRestriction: "vegan", FoodPreference: Unknown},
		},
		{
			name:      "unknown never regresses a known field",
			current:   Store{Cuisine: "Thai", NutritionalGoal: "weight loss", DietaryRestriction: Unknown, FoodPreference: Unknown},
			extracted: New(),
			want:      Store{Cuisine: "Thai", NutritionalGoal: "weight loss", DietaryRestriction: Unknown, FoodPreference: Unknown},
		},
		{
			name:      "last write wins on conflict",
			current:   Store{Cuisine: "Thai", NutritionalGoal: Unknown, DietaryRestriction: Unknown, FoodPreference: Unknown},
			extracted: Store{Cuisine: "Italian", NutritionalGoal: Unknown, DietaryRestriction: Unknown, FoodPreference: Unknown},
			want:      Store{Cuisine: "Italian", NutritionalGoal: Unknown, DietaryRestriction: Unknown, FoodPreference: Unknown},
		},
		{
			name:      "blank extracted value treated as unknown",
			current:   Store{Cuisine: "Thai", NutritionalGoal: Unknown, DietaryRestriction: Unknown, FoodPreference: Unknown},
			extracted: Store{Cuisine: " ", NutritionalGoal: "", DietaryRestriction: Unknown, FoodPreference: " spicy "},
			want:      Store{Cuisine: "Thai", NutritionalGoal: Unknown, DietaryRestriction: Unknown, FoodPreference: "spicy"},
		},
		{
			name:      "zero value current normalizes to unknown",
			current:   Store{},
			extracted: Store{},
			want:      New(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.current, tt.extracted))
		})
	}
}

func TestMerge_Idempotent(t *testing.T) {
	current := Store{Cuisine: "Thai", NutritionalGoal: Unknown, DietaryRestriction: "none", FoodPreference: Unknown}
	extracted := Store{Cuisine: Unknown, NutritionalGoal: "muscle gain", DietaryRestriction: Unknown, FoodPreference: "noodles"}

	once := Merge(current, extracted)
	twice := Merge(once, extracted)
	assert.Equal(t, once, twice)
}

func TestHints(t *testing.T) {
	s := Store{Cuisine: "Thai", NutritionalGoal: Unknown, DietaryRestriction: "", FoodPreference: "spicy"}
	want := "- cuisine: Thai\n- nutritionalGoal: unknown\n- dietaryRestriction: unknown\n- foodPreference: spicy\n"
	assert.Equal(t, want, s.Hints())
}

func TestPolicies(t *testing.T) {
	oneKnown := Merge(New(), Store{Cuisine: "Thai"})
	allKnown := Store{Cuisine: "Thai", NutritionalGoal: "maintenance", DietaryRestriction: "none", FoodPreference: "curry"}

	tests := []struct {
		name   string
		policy Policy
		store  Store
		turns  int
		want   bool
	}{
		{name: "any with nothing known", policy: AnyKnown, store: New(), turns: 5, want: false},
		{name: "any with one known", policy: AnyKnown, store: oneKnown, turns: 1, want: true},
		{name: "all with one known", policy: AllKnown, store: oneKnown, turns: 1, want: false},
		{name: "all with all known", policy: AllKnown, store: allKnown, turns: 1, want: true},
		{name: "after turns too early", policy: AfterTurns(3), store: allKnown, turns: 2, want: false},
		{name: "after turns reached", policy: AfterTurns(3), store: oneKnown, turns: 3, want: true},
		{name: "after turns nothing known", policy: AfterTurns(1), store: New(), turns: 4, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy(tt.store, tt.turns))
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", 0)
	require.NoError(t, err)
	assert.True(t, p(Store{Cuisine: "Thai"}, 0))

	p, err = ParsePolicy("ALL", 0)
	require.NoError(t, err)
	assert.False(t, p(Store{Cuisine: "Thai"}, 0))

	p, err = ParsePolicy("turns", 2)
	require.NoError(t, err)
	assert.False(t, p(Store{Cuisine: "Thai"}, 1))

	_, err = ParsePolicy("turns", 0)
	assert.Error(t, err)

	_, err = ParsePolicy("sometimes", 1)
	assert.ErrorContains(t, err, "unknown readiness policy")
}
