package store

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"mealchat/meal"
	"mealchat/weekly"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "mealchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
		"s3":     NewS3(newFakeS3(), "bucket", "/mealchat/"),
	}
}

func testMeal(id string, calories float64) meal.Meal {
	return meal.Meal{
		ID:       id,
		Name:     "Meal " + id,
		MealType: meal.Dinner,
		Recipe: meal.Recipe{
			Author:       "AI Chef",
			Ingredients:  []string{"rice"},
			Instructions: []string{"cook"},
		},
		Nutrition:   meal.Nutrition{Calories: calories, Protein: 10, Carbs: 20, Fats: 5},
		ServingSize: 1,
	}
}

func planRecord(userID, name string, created time.Time) PlanRecord {
	return PlanRecord{
		UserID:    userID,
		Name:      name,
		StartDate: "2025-03-03",
		EndDate:   "2025-03-09",
		Target:    weekly.DefaultTarget(),
		CreatedAt: created,
	}
}

func TestStore_Plans(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			older, err := s.CreatePlan(ctx, planRecord("alice", "first", base))
			require.NoError(t, err)
			assert.NotEmpty(t, older)
			newer, err := s.CreatePlan(ctx, planRecord("alice", "second", base.Add(time.Hour)))
			require.NoError(t, err)
			_, err = s.CreatePlan(ctx, planRecord("bob", "bob's", base))
			require.NoError(t, err)

			plans, err := s.ListPlans(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, plans, 2)
			assert.Equal(t, newer, plans[0].ID)
			assert.Equal(t, "first", plans[1].Name)
			assert.Equal(t, weekly.DefaultTarget(), plans[1].Target)

			rec, days, err := s.GetPlanDays(ctx, "alice", older)
			require.NoError(t, err)
			assert.Equal(t, "2025-03-03", rec.StartDate)
			assert.Empty(t, days)

			_, _, err = s.GetPlanDays(ctx, "bob", older)
			assert.ErrorIs(t, err, ErrNotFound)
			_, _, err = s.GetPlanDays(ctx, "alice", "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Days(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.CreatePlan(ctx, planRecord("alice", "week", time.Now()))
			require.NoError(t, err)

			require.NoError(t, s.AppendMeals(ctx, "alice", id, weekly.Monday, []meal.Meal{testMeal("a", 300), testMeal("b", 400)}))
			require.NoError(t, s.AppendMeals(ctx, "alice", id, "monday", []meal.Meal{testMeal("c", 500)}))
			require.NoError(t, s.ReplaceDay(ctx, "alice", id, weekly.Friday, []meal.Meal{testMeal("d", 100)}))
			require.NoError(t, s.ReplaceDay(ctx, "alice", id, weekly.Friday, nil))

			_, days, err := s.GetPlanDays(ctx, "alice", id)
			require.NoError(t, err)
			require.Len(t, days, 2)
			assert.Equal(t, weekly.Monday, days[0].DayOfWeek)
			assert.Equal(t, []string{"a", "b", "c"}, mealIDs(days[0].Meals))
			assert.Equal(t, weekly.Friday, days[1].DayOfWeek)
			assert.Empty(t, days[1].Meals)

			p, err := Plan(ctx, s, "alice", id)
			require.NoError(t, err)
			require.Len(t, p.Days, 7)
			assert.Equal(t, 1200.0, p.Days[0].Totals.Calories)
			assert.Equal(t, "2025-03-03", p.Days[0].Date)

			assert.ErrorIs(t, s.AppendMeals(ctx, "bob", id, weekly.Monday, nil), ErrNotFound)
			assert.ErrorIs(t, s.AppendMeals(ctx, "alice", id, "Caturday", nil), weekly.ErrUnknownDay)
		})
	}
}

func TestStore_Decisions(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			favs, err := s.Favorites(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, favs)

			require.NoError(t, s.RecordDecision(ctx, "alice", testMeal("m1", 300), true))
			require.NoError(t, s.RecordDecision(ctx, "alice", testMeal("m2", 400), false))
			require.NoError(t, s.RecordDecision(ctx, "alice", testMeal("m3", 500), true))
			require.NoError(t, s.RecordDecision(ctx, "bob", testMeal("m9", 500), true))

			favs, err = s.Favorites(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, favs, 2)
			assert.Equal(t, "m1", favs[0].Meal.ID)
			assert.Equal(t, "m3", favs[1].Meal.ID)
			assert.Equal(t, []string{"rice"}, favs[0].Meal.Recipe.Ingredients)
			assert.False(t, favs[0].Favorite)

			on, err := s.ToggleFavorite(ctx, "alice", "m3")
			require.NoError(t, err)
			assert.True(t, on)
			off, err := s.ToggleFavorite(ctx, "alice", "m3")
			require.NoError(t, err)
			assert.False(t, off)
			on, err = s.ToggleFavorite(ctx, "alice", "m3")
			require.NoError(t, err)
			assert.True(t, on)

			favs, err = s.Favorites(ctx, "alice")
			require.NoError(t, err)
			assert.True(t, favs[1].Favorite)

			_, err = s.ToggleFavorite(ctx, "alice", "m2")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.ToggleFavorite(ctx, "carol", "m1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestS3_Layout(t *testing.T) {
	fake := newFakeS3()
	s := NewS3(fake, "bucket", "mealchat")
	ctx := context.Background()

	id, err := s.CreatePlan(ctx, PlanRecord{ID: "p1", UserID: "alice", StartDate: "2025-03-03", EndDate: "2025-03-09"})
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
	require.NoError(t, s.RecordDecision(ctx, "alice", testMeal("m1", 1), true))

	assert.Contains(t, fake.objects, "mealchat/users/alice/plans/p1.json")
	assert.Contains(t, fake.objects, "mealchat/users/alice/meals.json")
	assert.Equal(t, 2, fake.puts)
}

func mealIDs(ms []meal.Meal) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
