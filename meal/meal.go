// Package meal defines generated meals and their nutrition.
package meal

import (
	"github.com/google/jsonschema-go/jsonschema"
)

type Type string

const (
	Breakfast Type = "breakfast"
	Lunch     Type = "lunch"
	Dinner    Type = "dinner"
	Snack     Type = "snack"
)

func Types() []Type {
	return []Type{Breakfast, Lunch, Dinner, Snack}
}

type Recipe struct {
	Author       string   `json:"author"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
}

// Nutrition is in kcal for calories and grams for macros.
type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
}

// Add returns the field-wise sum.
func (n Nutrition) Add(o Nutrition) Nutrition {
	return Nutrition{
		Calories: n.Calories + o.Calories,
		Protein:  n.Protein + o.Protein,
		Carbs:    n.Carbs + o.Carbs,
		Fats:     n.Fats + o.Fats,
	}
}

// Meal is immutable once generated.
type Meal struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MealType    Type      `json:"mealType"`
	Recipe      Recipe    `json:"recipe"`
	Nutrition   Nutrition `json:"nutrition"`
	ServingSize float64   `json:"servingSize,omitempty"`
	Image       string    `json:"image,omitempty"`
}

// Sum returns the total nutrition of meals.
func Sum(meals []Meal) Nutrition {
	var total Nutrition
	for _, m := range meals {
		total = total.Add(m.Nutrition)
	}
	return total
}

// Schema is the strict shape a generated meal must match. Serving size and
// image are optional.
func Schema() *jsonschema.Schema {
	nonEmpty := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", MinLength: jsonschema.Ptr(1), Description: desc}
	}
	amount := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "number", Minimum: jsonschema.Ptr(0.0), Description: desc}
	}
	list := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "array", Items: nonEmpty(""), MinItems: jsonschema.Ptr(1), Description: desc}
	}
	mealTypes := make([]any, 0, len(Types()))
	for _, t := range Types() {
		mealTypes = append(mealTypes, string(t))
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":       nonEmpty("Unique identifier for the meal"),
			"name":     nonEmpty("Name of the dish"),
			"mealType": {Type: "string", Enum: mealTypes, Description: "When the meal is eaten"},
			"recipe": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"author":       nonEmpty("Recipe author, always starting with AI"),
					"ingredients":  list("Ingredients with quantities"),
					"instructions": list("Ordered preparation steps"),
				},
				Required:             []string{"author", "ingredients", "instructions"},
				AdditionalProperties: noExtra(),
			},
			"nutrition": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"calories": amount("Calories in kcal"),
					"protein":  amount("Protein in grams"),
					"carbs":    amount("Carbohydrates in grams"),
					"fats":     amount("Fats in grams"),
				},
				Required:             []string{"calories", "protein", "carbs", "fats"},
				AdditionalProperties: noExtra(),
			},
			"servingSize": amount("Number of servings the recipe makes"),
			"image":       {Type: "string", Description: "Image URL"},
		},
		Required:             []string{"id", "name", "mealType", "recipe", "nutrition"},
		AdditionalProperties: noExtra(),
	}
}

// noExtra is the false schema: no additional properties allowed.
func noExtra() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}
