package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mealchat/meal"
	"mealchat/weekly"

	"github.com/google/uuid"
)

type memoryPlan struct {
	rec  PlanRecord
	days map[weekly.DayOfWeek][]meal.Meal
}

type memoryUser struct {
	meals map[string]SavedMeal
	order []string
}

// Memory keeps everything in process. It backs tests, the CLI and warm Lambda containers.
type Memory struct {
	mu    sync.RWMutex
	plans map[string]*memoryPlan
	users map[string]*memoryUser
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		plans: make(map[string]*memoryPlan),
		users: make(map[string]*memoryUser),
		now:   time.Now,
	}
}

func (m *Memory) CreatePlan(ctx context.Context, rec PlanRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, ok := m.plans[rec.ID]; ok {
		return "", fmt.Errorf("plan %s already exists", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	m.plans[rec.ID] = &memoryPlan{rec: rec, days: make(map[weekly.DayOfWeek][]meal.Meal)}
	return rec.ID, nil
}

func (m *Memory) ListPlans(ctx context.Context, userID string) ([]PlanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []PlanRecord
	for _, p := range m.plans {
		if p.rec.UserID == userID {
			out = append(out, p.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) plan(userID, planID string) (*memoryPlan, error) {
	p, ok := m.plans[planID]
	if !ok || p.rec.UserID != userID {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	return p, nil
}

func (m *Memory) GetPlanDays(ctx context.Context, userID, planID string) (PlanRecord, []weekly.Day, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.plan(userID, planID)
	if err != nil {
		return PlanRecord{}, nil, err
	}
	return p.rec, sortedDays(p.days), nil
}

func (m *Memory) Favorites(ctx context.Context, userID string) ([]SavedMeal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]SavedMeal, 0, len(u.order))
	for _, id := range u.order {
		out = append(out, u.meals[id])
	}
	return out, nil
}

func (m *Memory) RecordDecision(ctx context.Context, userID string, ml meal.Meal, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		u = &memoryUser{meals: make(map[string]SavedMeal)}
		m.users[userID] = u
	}
	_, seen := u.meals[ml.ID]
	if !accepted {
		if seen {
			delete(u.meals, ml.ID)
			u.order = remove(u.order, ml.ID)
		}
		return nil
	}
	u.meals[ml.ID] = SavedMeal{Meal: ml, Favorite: u.meals[ml.ID].Favorite, DecidedAt: m.now()}
	if !seen {
		u.order = append(u.order, ml.ID)
	}
	return nil
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (m *Memory) AppendMeals(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error {
	day, err := checkDay(day)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.plan(userID, planID)
	if err != nil {
		return err
	}
	p.days[day] = append(append([]meal.Meal{}, p.days[day]...), meals...)
	return nil
}

func (m *Memory) ReplaceDay(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error {
	day, err := checkDay(day)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.plan(userID, planID)
	if err != nil {
		return err
	}
	p.days[day] = append([]meal.Meal{}, meals...)
	return nil
}

func (m *Memory) ToggleFavorite(ctx context.Context, userID, mealID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return false, fmt.Errorf("meal %s: %w", mealID, ErrNotFound)
	}
	saved, ok := u.meals[mealID]
	if !ok {
		return false, fmt.Errorf("meal %s: %w", mealID, ErrNotFound)
	}
	saved.Favorite = !saved.Favorite
	u.meals[mealID] = saved
	return saved.Favorite, nil
}
