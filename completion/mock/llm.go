// Package mock is a deterministic completion backend. It reads keywords from
// the latest user message and never calls a model, which makes it useful for
// demos and tests. Real models are not so predictable.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mealchat/candidate"
	"mealchat/completion"
	"mealchat/conversation"
	"mealchat/meal"
	"mealchat/preference"
)

type LLMClient struct{}

func NewLLMClient() *LLMClient {
	return &LLMClient{}
}

func (m *LLMClient) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", "mock", "operation", req.Name, "messages_len", len(req.Messages))

	if err := ctx.Err(); err != nil {
		return completion.Response{}, err
	}

	var answer any
	switch req.Name {
	case conversation.ExtractOperation:
		answer = extract(lastUserMessage(req.Messages))
	case candidate.GenerateOperation:
		answer = map[string]any{"meals": generate(req.System)}
	default:
		return completion.Response{}, fmt.Errorf("%w: mock has no answer for %q", completion.ErrMalformedResponse, req.Name)
	}

	b, err := json.Marshal(answer)
	if err != nil {
		return completion.Response{}, fmt.Errorf("%w: %v", completion.ErrMalformedResponse, err)
	}
	return completion.Response{Content: string(b)}, nil
}

func lastUserMessage(msgs []completion.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == completion.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

type keyword struct {
	match []string
	value string
}

var cuisines = []keyword{
	{[]string{"kpop", "k-pop", "korean"}, "Korean"},
	{[]string{"thai"}, "Thai"},
	{[]string{"italian", "pasta", "pizza"}, "Italian"},
	{[]string{"mexican", "taco"}, "Mexican"},
	{[]string{"japanese", "sushi"}, "Japanese"},
	{[]string{"indian"}, "Indian"},
	{[]string{"chinese"}, "Chinese"},
	{[]string{"mediterranean", "greek"}, "Mediterranean"},
	{[]string{"french"}, "French"},
}

var goals = []keyword{
	{[]string{"lose weight", "weight loss", "kpop", "k-pop", "slim"}, preference.GoalWeightLoss},
	{[]string{"muscle", "bulk", "schwarzenegger", "strong"}, preference.GoalMuscleGain},
	{[]string{"maintain"}, preference.GoalMaintenance},
	{[]string{"endurance", "marathon", "cycling"}, preference.GoalEndurance},
	{[]string{"healthy", "healthier", "health"}, preference.GoalHealthImprovement},
}

var restrictions = []keyword{
	{[]string{"vegan"}, preference.RestrictionVegan},
	{[]string{"vegetarian"}, preference.RestrictionVegetarian},
	{[]string{"gluten"}, preference.RestrictionGlutenFree},
	{[]string{"dairy", "lactose"}, preference.RestrictionDairyFree},
	{[]string{"nut allergy", "nut-free", "no nuts"}, preference.RestrictionNutFree},
	{[]string{"halal"}, preference.RestrictionHalal},
	{[]string{"kosher"}, preference.RestrictionKosher},
	{[]string{"no restrictions", "no restriction", "anything"}, preference.RestrictionNone},
}

var foods = []keyword{
	{[]string{"spicy"}, "spicy"},
	{[]string{"noodle"}, "noodles"},
	{[]string{"curry"}, "curry"},
	{[]string{"seafood", "fish", "shrimp"}, "seafood"},
	{[]string{"chicken"}, "chicken"},
	{[]string{"tofu"}, "tofu"},
	{[]string{"sweet"}, "sweet"},
}

func find(text string, table []keyword) string {
	for _, k := range table {
		for _, m := range k.match {
			if strings.Contains(text, m) {
				return k.value
			}
		}
	}
	return string(preference.Unknown)
}

func extract(utterance string) map[string]any {
	text := strings.ToLower(utterance)
	out := map[string]any{
		"cuisine":            find(text, cuisines),
		"nutritionalGoal":    find(text, goals),
		"dietaryRestriction": find(text, restrictions),
		"foodPreference":     find(text, foods),
	}

	var heard []string
	for _, k := range []string{"cuisine", "nutritionalGoal", "dietaryRestriction", "foodPreference"} {
		if v := out[k].(string); v != string(preference.Unknown) {
			heard = append(heard, v)
		}
	}

	switch {
	case strings.Contains(text, "generate"):
		out["followUpPrompt"] = "Great, I have what I need. Say \"generate meal\" whenever you're ready!"
	case len(heard) == 0:
		out["followUpPrompt"] = "Could you let me know your favorite cuisine?"
	default:
		out["followUpPrompt"] = fmt.Sprintf("Got it: %s. Anything else I should know, or shall we generate meals?", strings.Join(heard, ", "))
	}
	return out
}

var cuisineLine = regexp.MustCompile(`(?m)^- Cuisine: (.+)$`)

// generate returns three meals of 300, 400 and 500 kcal named after the cuisine in the prompt.
func generate(system string) []meal.Meal {
	cuisine := "Chef's"
	if m := cuisineLine.FindStringSubmatch(system); m != nil && m[1] != "any" {
		cuisine = strings.TrimSpace(m[1])
	}
	slug := strings.ToLower(strings.ReplaceAll(cuisine, " ", "-"))

	return []meal.Meal{
		{
			ID:       slug + "-breakfast-bowl",
			Name:     cuisine + " Breakfast Bowl",
			MealType: meal.Breakfast,
			Recipe: meal.Recipe{
				Author:       "AI Chef",
				Ingredients:  []string{"1 cup cooked rice", "1 egg", "spring onion"},
				Instructions: []string{"Warm the rice", "Fry the egg", "Top and serve"},
			},
			Nutrition:   meal.Nutrition{Calories: 300, Protein: 15, Carbs: 40, Fats: 8},
			ServingSize: 1,
		},
		{
			ID:       slug + "-noodle-salad",
			Name:     cuisine + " Noodle Salad",
			MealType: meal.Lunch,
			Recipe: meal.Recipe{
				Author:       "AI Chef",
				Ingredients:  []string{"100g rice noodles", "cucumber", "lime dressing"},
				Instructions: []string{"Soak the noodles", "Toss with vegetables and dressing"},
			},
			Nutrition:   meal.Nutrition{Calories: 400, Protein: 18, Carbs: 55, Fats: 12},
			ServingSize: 1,
		},
		{
			ID:       slug + "-curry",
			Name:     cuisine + " Curry",
			MealType: meal.Dinner,
			Recipe: meal.Recipe{
				Author:       "AI Chef",
				Ingredients:  []string{"200g tofu", "curry paste", "coconut milk", "jasmine rice"},
				Instructions: []string{"Fry the paste", "Simmer tofu in coconut milk", "Serve over rice"},
			},
			Nutrition:   meal.Nutrition{Calories: 500, Protein: 25, Carbs: 60, Fats: 20},
			ServingSize: 1,
		},
	}
}
