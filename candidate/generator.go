// Package candidate requests batches of meal candidates from the completion service.
package candidate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"mealchat"
	"mealchat/completion"
	"mealchat/meal"
	"mealchat/preference"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GenerateOperation names the candidate generation call.
const GenerateOperation = "generate_meals"

const defaultBatchSize = 5

// ErrEmptyCandidateBatch is a malformed response that held no meals.
var ErrEmptyCandidateBatch = fmt.Errorf("%w: empty candidate batch", completion.ErrMalformedResponse)

const systemPrompt = `Generate meals based on the user's food preferences, dietary restrictions, nutritional goals and cuisine.

The user's preferences:
- Cuisine: %s
- Nutritional goal: %s
- Dietary restriction: %s
- Food preferences: %s

Rules:
- Propose exactly %d distinct meals covering a mix of meal types.
- Every meal must respect the dietary restriction.
- Every id is unique within the batch.
- recipe.author always starts with "AI", for example "AI Chef".
- nutrition values are per serving: calories in kcal, protein, carbs and fats in grams.
- Record the meals with the %s tool.`

type batch struct {
	Meals []meal.Meal `json:"meals"`
}

// BatchSchema is the strict output contract: a non-empty list of meals and nothing else.
func BatchSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meals": {
				Type:        "array",
				Items:       meal.Schema(),
				MinItems:    jsonschema.Ptr(1),
				Description: "The proposed meals",
			},
		},
		Required:             []string{"meals"},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

type Generator struct {
	svc       completion.Service
	batchSize int
	tracer    trace.Tracer
}

// NewGenerator returns a generator asking for batchSize meals per call; zero means five.
func NewGenerator(svc completion.Service, batchSize int) *Generator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Generator{
		svc:       svc,
		batchSize: batchSize,
		tracer:    otel.Tracer(mealchat.TracerNameCandidates),
	}
}

// Generate makes one completion call and returns the validated batch unchanged.
// Calling it again yields a fresh batch; it never retries on its own.
func (g *Generator) Generate(ctx context.Context, prefs preference.Store) ([]meal.Meal, error) {
	ctx, span := g.tracer.Start(ctx, "candidate.Generate", trace.WithAttributes(
		attribute.Int("candidate.batch_size", g.batchSize),
		attribute.Int("preferences.known", prefs.KnownCount()),
	))
	defer span.End()

	meals, err := g.generate(ctx, prefs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("GENERATOR: Candidate generation failed", "kind", completion.Kind(err), "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("candidate.count", len(meals)))
	slog.Info("GENERATOR: Candidates generated", "count", len(meals))
	return meals, nil
}

func (g *Generator) generate(ctx context.Context, prefs preference.Store) ([]meal.Meal, error) {
	schema := BatchSchema()
	resp, err := g.svc.Complete(ctx, completion.Request{
		Name:        GenerateOperation,
		Description: "Record the generated meal candidates.",
		System: fmt.Sprintf(systemPrompt,
			prefs.Cuisine.Or("any"),
			prefs.NutritionalGoal.Or("any"),
			prefs.DietaryRestriction.Or("any"),
			prefs.FoodPreference.Or("any"),
			g.batchSize,
			GenerateOperation,
		),
		Messages: []completion.Message{{Role: completion.RoleUser, Content: "Generate meals."}},
		Schema:   schema,
	})
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}

	if isEmptyBatch(resp.Content) {
		return nil, ErrEmptyCandidateBatch
	}

	out, err := completion.Decode[batch](resp.Content, schema)
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}
	return out.Meals, nil
}

// isEmptyBatch reports an object whose meals list is missing, null or empty.
func isEmptyBatch(content string) bool {
	var probe struct {
		Meals *[]json.RawMessage `json:"meals"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &probe); err != nil {
		return false
	}
	return probe.Meals == nil || len(*probe.Meals) == 0
}
