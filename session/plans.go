package session

import (
	"context"
	"fmt"
	"time"

	"mealchat/meal"
	"mealchat/store"
	"mealchat/weekly"

	"github.com/google/uuid"
)

// PlanView is a plan with its weekly totals and per-day progress against the target.
type PlanView struct {
	Plan     weekly.Plan                             `json:"plan"`
	Totals   meal.Nutrition                          `json:"weeklyTotals"`
	Progress map[weekly.DayOfWeek]weekly.DayProgress `json:"progress"`
}

func NewPlanView(p weekly.Plan) PlanView {
	v := PlanView{
		Plan:     p,
		Totals:   weekly.WeeklyTotals(p),
		Progress: make(map[weekly.DayOfWeek]weekly.DayProgress, len(p.Days)),
	}
	for _, d := range p.Days {
		v.Progress[d.DayOfWeek] = weekly.DailyProgress(d, p.Target)
	}
	return v
}

// CreatePlan persists an empty week. A zero start means today and a zero end six days later.
func (s *Session) CreatePlan(ctx context.Context, name string, start, end time.Time) (weekly.Plan, error) {
	if start.IsZero() {
		start = s.cfg.Now()
	}
	if name == "" {
		name = "Meal plan " + start.Format(time.DateOnly)
	}
	p, err := weekly.New(uuid.NewString(), s.userID, name, start, end, s.cfg.Target)
	if err != nil {
		return weekly.Plan{}, err
	}

	_, err = s.cfg.Store.CreatePlan(ctx, store.PlanRecord{
		ID:        p.ID,
		UserID:    s.userID,
		Name:      p.Name,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Target:    p.Target,
		CreatedAt: s.cfg.Now(),
	})
	if err != nil {
		return weekly.Plan{}, s.writeFailed(ctx, "create plan", err)
	}

	s.mu.Lock()
	s.plans[p.ID] = p
	s.mu.Unlock()
	return p, nil
}

// Plans summarizes the user's plans, newest first.
func (s *Session) Plans(ctx context.Context) ([]weekly.Summary, error) {
	recs, err := s.cfg.Store.ListPlans(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	out := make([]weekly.Summary, 0, len(recs))
	for _, rec := range recs {
		p, err := store.Plan(ctx, s.cfg.Store, s.userID, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("load plan %s: %w", rec.ID, err)
		}
		out = append(out, weekly.Summarize(p))
	}
	return out, nil
}

// OpenPlan fetches the persisted days and merges them into the cached week.
func (s *Session) OpenPlan(ctx context.Context, planID string) (weekly.Plan, error) {
	s.planMu.Lock()
	defer s.planMu.Unlock()
	return s.openPlan(ctx, planID)
}

func (s *Session) openPlan(ctx context.Context, planID string) (weekly.Plan, error) {
	rec, days, err := s.cfg.Store.GetPlanDays(ctx, s.userID, planID)
	if err != nil {
		return weekly.Plan{}, err
	}

	s.mu.Lock()
	cached, ok := s.plans[planID]
	s.mu.Unlock()

	if !ok {
		if cached, err = store.FromRecord(rec, nil); err != nil {
			return weekly.Plan{}, err
		}
	}
	p := weekly.MergeFetchedDays(cached, days)

	s.mu.Lock()
	s.plans[planID] = p
	s.mu.Unlock()
	return p, nil
}

func (s *Session) cached(ctx context.Context, planID string) (weekly.Plan, error) {
	s.mu.Lock()
	p, ok := s.plans[planID]
	s.mu.Unlock()
	if ok {
		return p, nil
	}
	return s.OpenPlan(ctx, planID)
}

// AddMeals persists the meals onto day and then applies them to the cached plan.
// A failed write leaves the cached plan as it was.
func (s *Session) AddMeals(ctx context.Context, planID string, day weekly.DayOfWeek, meals []meal.Meal) (weekly.Plan, error) {
	return s.changeDay(ctx, planID, day, meals, s.cfg.Store.AppendMeals, weekly.AddMeals)
}

// AddAccepted schedules the latest accepted candidates on day.
func (s *Session) AddAccepted(ctx context.Context, planID string, day weekly.DayOfWeek) (weekly.Plan, error) {
	accepted := s.Accepted()
	if len(accepted) == 0 {
		return weekly.Plan{}, ErrNoTriage
	}
	return s.AddMeals(ctx, planID, day, accepted)
}

func (s *Session) ReplaceDay(ctx context.Context, planID string, day weekly.DayOfWeek, meals []meal.Meal) (weekly.Plan, error) {
	return s.changeDay(ctx, planID, day, meals, s.cfg.Store.ReplaceDay, weekly.ReplaceDay)
}

func (s *Session) changeDay(
	ctx context.Context,
	planID string,
	day weekly.DayOfWeek,
	meals []meal.Meal,
	persist func(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error,
	apply func(p weekly.Plan, day weekly.DayOfWeek, meals []meal.Meal) (weekly.Plan, error),
) (weekly.Plan, error) {
	day, err := weekly.ParseDay(string(day))
	if err != nil {
		return weekly.Plan{}, err
	}

	// held from read to apply so concurrent changes each see the last one
	s.planMu.Lock()
	defer s.planMu.Unlock()

	s.mu.Lock()
	p, ok := s.plans[planID]
	s.mu.Unlock()
	if !ok {
		if p, err = s.openPlan(ctx, planID); err != nil {
			return weekly.Plan{}, err
		}
	}

	if err := persist(ctx, s.userID, planID, day, meals); err != nil {
		return p, s.writeFailed(ctx, "update "+string(day), err)
	}

	next, err := apply(p, day, meals)
	if err != nil {
		return p, err
	}
	s.mu.Lock()
	s.plans[planID] = next
	s.mu.Unlock()
	return next, nil
}

// Progress reports one day of a plan against the plan's target.
func (s *Session) Progress(ctx context.Context, planID string, day weekly.DayOfWeek) (weekly.DayProgress, error) {
	p, err := s.cached(ctx, planID)
	if err != nil {
		return weekly.DayProgress{}, err
	}
	day, err = weekly.ParseDay(string(day))
	if err != nil {
		return weekly.DayProgress{}, err
	}
	d, err := p.Day(day)
	if err != nil {
		return weekly.DayProgress{}, err
	}
	return weekly.DailyProgress(d, p.Target), nil
}

func (s *Session) Favorites(ctx context.Context) ([]store.SavedMeal, error) {
	return s.cfg.Store.Favorites(ctx, s.userID)
}

func (s *Session) ToggleFavorite(ctx context.Context, mealID string) (bool, error) {
	return s.cfg.Store.ToggleFavorite(ctx, s.userID, mealID)
}
