package conversation

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"mealchat/preference"

	"github.com/google/jsonschema-go/jsonschema"
)

// ExtractOperation names the preference extraction call.
const ExtractOperation = "extract_preferences"

const (
	Greeting = "Hello! I'm here to help you create a personalized meal plan. " +
		"Tell me about your dietary preferences, health goals, and any other relevant information."

	// RetryMessage replaces the follow-up when extraction fails.
	RetryMessage = "Sorry, I couldn't process that just now. Could you say it again?"
)

// QuickResponses are canned openers offered before the user has typed anything.
var QuickResponses = []string{
	"I want to eat like a kpop idol",
	"I want to lose weight",
	"I want to become Arnold Schwarzenegger",
}

var openingQuestions = []string{
	"Could you let me know your favorite cuisine?",
	"What kind of cuisine do you enjoy?",
	"Is there a specific cuisine you prefer?",
	"Do you have any favorite cultural or regional dishes?",
	"Which restaurants do you find yourself going back to most often?",
}

var clarifyingQuestions = []string{
	"Is there a particular spice level you prefer?",
	"Are there any specific ingredients you especially enjoy?",
	"Are there any cooking methods you enjoy, like grilled or stir-fried?",
	"Do you have any favorite herbs or seasonings?",
	"How do you feel about fusion cuisine?",
}

const systemPrompt = `You are a friendly assistant learning about a user's meal preferences through conversation.

# Steps
1. Extract preferences from the conversation. Start with questions like %q.
2. Clarify when answers are broad, with follow-ups like %q.
3. When the user stalls, keeps answering "none", or every preference is filled with nothing new, invite them to say "generate meal" to continue.
4. Record the preferences with the %s tool.

# Rules
- Use "unknown" for any preference the user has not stated.
- followUpPrompt is your next message to the user: warm, personable, one or two sentences.

# Known preferences
%s`

func buildSystemPrompt(current preference.Store) string {
	return fmt.Sprintf(systemPrompt,
		openingQuestions[rand.IntN(len(openingQuestions))],
		clarifyingQuestions[rand.IntN(len(clarifyingQuestions))],
		ExtractOperation,
		strings.TrimRight(current.Hints(), "\n"),
	)
}

// extraction is the structured answer of the extraction call.
type extraction struct {
	Cuisine            string `json:"cuisine"`
	NutritionalGoal    string `json:"nutritionalGoal"`
	DietaryRestriction string `json:"dietaryRestriction"`
	FoodPreference     string `json:"foodPreference"`
	FollowUpPrompt     string `json:"followUpPrompt"`
}

func (e extraction) store() preference.Store {
	return preference.Store{
		Cuisine:            preference.Field(e.Cuisine),
		NutritionalGoal:    preference.Field(e.NutritionalGoal),
		DietaryRestriction: preference.Field(e.DietaryRestriction),
		FoodPreference:     preference.Field(e.FoodPreference),
	}
}

// ExtractionSchema is the strict output contract of the extraction call.
func ExtractionSchema() *jsonschema.Schema {
	enum := func(values []string) []any {
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = v
		}
		return out
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"cuisine": {
				Type:        "string",
				Description: `The type of cuisine the user prefers, or "unknown".`,
			},
			"nutritionalGoal": {
				Type:        "string",
				Enum:        enum(preference.NutritionalGoals()),
				Description: "The user's nutritional goal.",
			},
			"dietaryRestriction": {
				Type:        "string",
				Enum:        enum(preference.DietaryRestrictions()),
				Description: "Any dietary restriction the user has.",
			},
			"foodPreference": {
				Type:        "string",
				Description: `Specific foods or flavours the user likes, or "unknown".`,
			},
			"followUpPrompt": {
				Type:        "string",
				MinLength:   jsonschema.Ptr(1),
				Description: "Your next message to the user.",
			},
		},
		Required:             []string{"cuisine", "nutritionalGoal", "dietaryRestriction", "foodPreference", "followUpPrompt"},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}
