package meal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	meals := []Meal{
		{ID: "1", Nutrition: Nutrition{Calories: 300, Protein: 20, Carbs: 30, Fats: 10}},
		{ID: "2", Nutrition: Nutrition{Calories: 400, Protein: 25, Carbs: 45, Fats: 12}},
		{ID: "3", Nutrition: Nutrition{Calories: 500, Protein: 35, Carbs: 50, Fats: 18}},
	}

	assert.Equal(t, Nutrition{Calories: 1200, Protein: 80, Carbs: 125, Fats: 40}, Sum(meals))
	assert.Equal(t, Nutrition{}, Sum(nil))
}

func TestSchema(t *testing.T) {
	resolved, err := Schema().Resolve(nil)
	require.NoError(t, err)

	valid := `{
		"id": "pad-thai",
		"name": "Pad Thai",
		"mealType": "dinner",
		"recipe": {"author": "AI Chef", "ingredients": ["rice noodles"], "instructions": ["Soak noodles"]},
		"nutrition": {"calories": 550, "protein": 22, "carbs": 70, "fats": 18},
		"servingSize": 2
	}`

	tests := []struct {
		name    string
		mutate  func(m map[string]any)
		wantErr bool
	}{
		{name: "valid", mutate: func(map[string]any) {}},
		{name: "no serving size", mutate: func(m map[string]any) { delete(m, "servingSize") }},
		{name: "with image", mutate: func(m map[string]any) { m["image"] = "https://example.com/pad-thai.jpg" }},
		{name: "serving size as text", mutate: func(m map[string]any) { m["servingSize"] = "1 plate" }, wantErr: true},
		{name: "extra field", mutate: func(m map[string]any) { m["price"] = 12 }, wantErr: true},
		{name: "missing nutrition", mutate: func(m map[string]any) { delete(m, "nutrition") }, wantErr: true},
		{name: "bad meal type", mutate: func(m map[string]any) { m["mealType"] = "brunch" }, wantErr: true},
		{name: "negative calories", mutate: func(m map[string]any) {
			m["nutrition"].(map[string]any)["calories"] = -1
		}, wantErr: true},
		{name: "empty ingredients", mutate: func(m map[string]any) {
			m["recipe"].(map[string]any)["ingredients"] = []any{}
		}, wantErr: true},
		{name: "extra recipe field", mutate: func(m map[string]any) {
			m["recipe"].(map[string]any)["source"] = "web"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m map[string]any
			require.NoError(t, json.Unmarshal([]byte(valid), &m))
			tt.mutate(m)

			err := resolved.Validate(m)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
