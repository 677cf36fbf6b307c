package mock

import (
	"context"
	"errors"
	"testing"

	"mealchat/candidate"
	"mealchat/completion"
	"mealchat/conversation"
	"mealchat/meal"
	"mealchat/preference"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMClient_Extraction(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      preference.Store
	}{
		{
			name:      "kpop idol",
			utterance: "I want to eat like a kpop idol",
			want:      preference.Store{Cuisine: "Korean", NutritionalGoal: preference.GoalWeightLoss, DietaryRestriction: preference.Unknown, FoodPreference: preference.Unknown},
		},
		{
			name:      "thai vegan spicy",
			utterance: "Spicy Thai food please, I'm vegan",
			want:      preference.Store{Cuisine: "Thai", NutritionalGoal: preference.Unknown, DietaryRestriction: preference.RestrictionVegan, FoodPreference: "spicy"},
		},
		{
			name:      "nothing recognised",
			utterance: "hello there",
			want:      preference.New(),
		},
	}

	engine := conversation.NewEngine(NewLLMClient(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Advance(context.Background(), nil, preference.New(), tt.utterance)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Preferences)
			assert.NotEmpty(t, res.Reply.Content)
		})
	}
}

func TestLLMClient_Generation(t *testing.T) {
	gen := candidate.NewGenerator(NewLLMClient(), 3)
	prefs := preference.Merge(preference.New(), preference.Store{Cuisine: "Thai"})

	meals, err := gen.Generate(context.Background(), prefs)
	require.NoError(t, err)
	require.Len(t, meals, 3)
	assert.Equal(t, "Thai Breakfast Bowl", meals[0].Name)
	assert.Equal(t, 1200.0, meal.Sum(meals).Calories)
}

func TestLLMClient_UnknownOperation(t *testing.T) {
	_, err := NewLLMClient().Complete(context.Background(), completion.Request{Name: "summarize"})
	assert.ErrorIs(t, err, completion.ErrMalformedResponse)
}

func TestScripted(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted(Step{Content: `{"a":1}`}, Step{Err: boom})

	resp, err := s.Complete(context.Background(), completion.Request{Name: "one"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Content)

	_, err = s.Complete(context.Background(), completion.Request{Name: "two"})
	assert.ErrorIs(t, err, boom)

	_, err = s.Complete(context.Background(), completion.Request{Name: "three"})
	assert.ErrorIs(t, err, completion.ErrServiceUnavailable)

	s.Push(Step{Content: "{}"})
	_, err = s.Complete(context.Background(), completion.Request{Name: "four"})
	assert.NoError(t, err)

	calls := s.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "three", calls[2].Name)
}
