package weekly_test

import (
	"context"
	"testing"
	"time"

	"mealchat/candidate"
	"mealchat/completion"
	"mealchat/completion/mock"
	"mealchat/conversation"
	"mealchat/meal"
	"mealchat/preference"
	"mealchat/triage"
	"mealchat/weekly"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

// A Thai conversation, three candidates, accept the first and third, schedule on Monday.
func TestThaiWeekScenario(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewLLMClient()

	res, err := conversation.NewEngine(svc, nil).Advance(ctx, nil, preference.New(), "I love Thai food")
	must.NoError(t, err)
	must.True(t, res.Ready)
	should.Equal(t, preference.Field("Thai"), res.Preferences.Cuisine)

	meals, err := candidate.NewGenerator(svc, 3).Generate(ctx, res.Preferences)
	must.NoError(t, err)
	must.Len(t, meals, 3)

	tri := triage.NewEngine(meals, nil, triage.Options{Meter: noop.NewMeterProvider().Meter("test")})
	_, err = tri.Accept(ctx)
	must.NoError(t, err)
	_, err = tri.Reject(ctx)
	must.NoError(t, err)
	v, err := tri.Accept(ctx)
	must.NoError(t, err)
	must.Equal(t, triage.StateComplete, v.State)

	plan, err := weekly.New("p1", "u1", "Thai week", time.Now(), time.Time{}, weekly.DefaultTarget())
	must.NoError(t, err)
	plan, err = weekly.AddMeals(plan, weekly.Monday, tri.Accepted())
	must.NoError(t, err)

	want := meals[0].Nutrition.Add(meals[2].Nutrition)
	should.Equal(t, want, plan.Days[0].Totals)
	should.Equal(t, 800.0, plan.Days[0].Totals.Calories)
	should.Equal(t, want, weekly.WeeklyTotals(plan))
}

// An empty batch from the service surfaces as malformed and leaves the plan alone.
func TestEmptyBatchLeavesPlanUntouched(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewScripted(mock.Step{Content: `{"meals":[]}`})

	plan, err := weekly.New("p1", "u1", "", time.Now(), time.Time{}, weekly.DefaultTarget())
	must.NoError(t, err)
	before := plan

	meals, err := candidate.NewGenerator(svc, 0).Generate(ctx, preference.New())
	should.ErrorIs(t, err, candidate.ErrEmptyCandidateBatch)
	should.ErrorIs(t, err, completion.ErrMalformedResponse)

	if err == nil {
		plan, _ = weekly.AddMeals(plan, weekly.Monday, meals)
	}
	should.Equal(t, before, plan)
	should.Equal(t, meal.Nutrition{}, weekly.WeeklyTotals(plan))
}
