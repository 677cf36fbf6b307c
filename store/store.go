// Package store persists plans, plan days and triage decisions. Every
// operation is scoped to a user; plans owned by someone else are not found.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mealchat/meal"
	"mealchat/weekly"
)

var ErrNotFound = errors.New("not found")

// PlanRecord is a plan without its days.
type PlanRecord struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Name      string        `json:"name"`
	StartDate string        `json:"startDate"`
	EndDate   string        `json:"endDate"`
	Target    weekly.Target `json:"target"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SavedMeal is an accepted candidate. Favorite is toggled by the user later.
type SavedMeal struct {
	Meal      meal.Meal `json:"meal"`
	Favorite  bool      `json:"favorite"`
	DecidedAt time.Time `json:"decidedAt"`
}

type Store interface {
	// CreatePlan stores rec and returns its id, generating one when rec.ID is empty.
	CreatePlan(ctx context.Context, rec PlanRecord) (string, error)
	ListPlans(ctx context.Context, userID string) ([]PlanRecord, error)
	// GetPlanDays returns the plan and the days that hold persisted meals.
	GetPlanDays(ctx context.Context, userID, planID string) (PlanRecord, []weekly.Day, error)
	// Favorites returns the user's accepted meals in decision order.
	Favorites(ctx context.Context, userID string) ([]SavedMeal, error)
	RecordDecision(ctx context.Context, userID string, m meal.Meal, accepted bool) error
	AppendMeals(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error
	ReplaceDay(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error
	// ToggleFavorite flips the favorite flag of an accepted meal and returns the new value.
	ToggleFavorite(ctx context.Context, userID, mealID string) (bool, error)
}

// Plan loads a plan and lays its persisted days over an empty week.
func Plan(ctx context.Context, s Store, userID, planID string) (weekly.Plan, error) {
	rec, days, err := s.GetPlanDays(ctx, userID, planID)
	if err != nil {
		return weekly.Plan{}, err
	}
	return FromRecord(rec, days)
}

// FromRecord builds the week described by rec with days merged in. A record
// without a valid target gets the default one.
func FromRecord(rec PlanRecord, days []weekly.Day) (weekly.Plan, error) {
	start, err := time.Parse(time.DateOnly, rec.StartDate)
	if err != nil {
		return weekly.Plan{}, fmt.Errorf("plan %s start date: %w", rec.ID, err)
	}
	end, err := time.Parse(time.DateOnly, rec.EndDate)
	if err != nil {
		return weekly.Plan{}, fmt.Errorf("plan %s end date: %w", rec.ID, err)
	}
	target := rec.Target
	if target.Validate() != nil {
		target = weekly.DefaultTarget()
	}
	p, err := weekly.New(rec.ID, rec.UserID, rec.Name, start, end, target)
	if err != nil {
		return weekly.Plan{}, err
	}
	return weekly.MergeFetchedDays(p, days), nil
}

func checkDay(day weekly.DayOfWeek) (weekly.DayOfWeek, error) {
	return weekly.ParseDay(string(day))
}

func sortedDays(byDay map[weekly.DayOfWeek][]meal.Meal) []weekly.Day {
	var out []weekly.Day
	for _, d := range weekly.Days {
		if meals, ok := byDay[d]; ok {
			out = append(out, weekly.Day{DayOfWeek: d, Meals: append([]meal.Meal{}, meals...)})
		}
	}
	return out
}
