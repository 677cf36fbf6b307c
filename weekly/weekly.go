// Package weekly lays meals into a fixed Monday to Sunday week and tracks
// nutrition totals against a target. Every function here is pure: plans are
// values and mutations return a new plan.
package weekly

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"mealchat/meal"
)

var (
	ErrUnknownDay    = errors.New("unknown day of week")
	ErrInvalidTarget = errors.New("nutrition target values must be positive")
)

type DayOfWeek string

const (
	Monday    DayOfWeek = "Monday"
	Tuesday   DayOfWeek = "Tuesday"
	Wednesday DayOfWeek = "Wednesday"
	Thursday  DayOfWeek = "Thursday"
	Friday    DayOfWeek = "Friday"
	Saturday  DayOfWeek = "Saturday"
	Sunday    DayOfWeek = "Sunday"
)

// Days is the canonical order.
var Days = [7]DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseDay accepts any casing and the three-letter abbreviation.
func ParseDay(s string) (DayOfWeek, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Days {
		name := strings.ToLower(string(d))
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDay, s)
}

func (d DayOfWeek) index() int {
	for i, c := range Days {
		if c == d {
			return i
		}
	}
	return -1
}

func dayOf(t time.Time) DayOfWeek {
	// time.Weekday starts on Sunday
	return Days[(int(t.Weekday())+6)%7]
}

type Target struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
}

func DefaultTarget() Target {
	return Target{Calories: 2000, Protein: 150, Carbs: 200, Fats: 65}
}

func (t Target) Validate() error {
	if t.Calories <= 0 || t.Protein <= 0 || t.Carbs <= 0 || t.Fats <= 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidTarget, t)
	}
	return nil
}

type Day struct {
	DayOfWeek DayOfWeek      `json:"dayOfWeek"`
	Date      string         `json:"date,omitempty"`
	Meals     []meal.Meal    `json:"meals"`
	Totals    meal.Nutrition `json:"totals"`
}

type Plan struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Target    Target `json:"target"`
	Days      [7]Day `json:"days"`
}

const dateLayout = time.DateOnly

// New builds a plan of seven empty days. An empty end date means six days
// after start. Each weekday gets the date it falls on inside the range, if any.
func New(id, userID, name string, start time.Time, end time.Time, target Target) (Plan, error) {
	if err := target.Validate(); err != nil {
		return Plan{}, err
	}
	start = truncate(start)
	if end.IsZero() {
		end = start.AddDate(0, 0, 6)
	}
	end = truncate(end)
	if end.Before(start) {
		return Plan{}, fmt.Errorf("plan end %s is before start %s", end.Format(dateLayout), start.Format(dateLayout))
	}

	p := Plan{
		ID:        id,
		UserID:    userID,
		Name:      name,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Target:    target,
		Days:      emptyWeek(),
	}
	for d := start; !d.After(end) && d.Before(start.AddDate(0, 0, 7)); d = d.AddDate(0, 0, 1) {
		p.Days[dayOf(d).index()].Date = d.Format(dateLayout)
	}
	return p, nil
}

func truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func emptyWeek() [7]Day {
	var w [7]Day
	for i, d := range Days {
		w[i] = Day{DayOfWeek: d, Meals: []meal.Meal{}}
	}
	return w
}

// Day returns the named day.
func (p Plan) Day(d DayOfWeek) (Day, error) {
	i := d.index()
	if i < 0 {
		return Day{}, fmt.Errorf("%w: %q", ErrUnknownDay, d)
	}
	return p.Days[i], nil
}

func (p Plan) clone() Plan {
	out := p
	for i := range out.Days {
		out.Days[i].Meals = append([]meal.Meal{}, p.Days[i].Meals...)
	}
	return out
}

// MergeFetchedDays overlays persisted days onto the plan. Days that were not
// fetched keep their current content; days with an unknown name are ignored.
func MergeFetchedDays(p Plan, fetched []Day) Plan {
	out := p.clone()
	for _, f := range fetched {
		i := f.DayOfWeek.index()
		if i < 0 {
			continue
		}
		d := Day{
			DayOfWeek: Days[i],
			Date:      f.Date,
			Meals:     append([]meal.Meal{}, f.Meals...),
		}
		if d.Date == "" {
			d.Date = out.Days[i].Date
		}
		d.Totals = meal.Sum(d.Meals)
		out.Days[i] = d
	}
	return out
}

// AddMeals appends meals to a day, keeping order and duplicates, and recomputes its totals.
func AddMeals(p Plan, day DayOfWeek, meals []meal.Meal) (Plan, error) {
	i := day.index()
	if i < 0 {
		return p, fmt.Errorf("%w: %q", ErrUnknownDay, day)
	}
	out := p.clone()
	out.Days[i].Meals = append(out.Days[i].Meals, meals...)
	out.Days[i].Totals = meal.Sum(out.Days[i].Meals)
	return out, nil
}

// ReplaceDay sets a day's full meal list.
func ReplaceDay(p Plan, day DayOfWeek, meals []meal.Meal) (Plan, error) {
	i := day.index()
	if i < 0 {
		return p, fmt.Errorf("%w: %q", ErrUnknownDay, day)
	}
	out := p.clone()
	out.Days[i].Meals = append([]meal.Meal{}, meals...)
	out.Days[i].Totals = meal.Sum(out.Days[i].Meals)
	return out, nil
}

type Progress struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
	Percent float64 `json:"percent"`
}

type DayProgress struct {
	Calories Progress `json:"calories"`
	Protein  Progress `json:"protein"`
	Carbs    Progress `json:"carbs"`
	Fats     Progress `json:"fats"`
}

func progress(current, target float64) Progress {
	p := Progress{Current: current, Target: target}
	if target > 0 {
		p.Percent = math.Min(100, 100*current/target)
	}
	return p
}

// DailyProgress reports each field as a percentage of target, clamped at 100,
// alongside the raw current value.
func DailyProgress(d Day, t Target) DayProgress {
	return DayProgress{
		Calories: progress(d.Totals.Calories, t.Calories),
		Protein:  progress(d.Totals.Protein, t.Protein),
		Carbs:    progress(d.Totals.Carbs, t.Carbs),
		Fats:     progress(d.Totals.Fats, t.Fats),
	}
}

func WeeklyTotals(p Plan) meal.Nutrition {
	var n meal.Nutrition
	for _, d := range p.Days {
		n = n.Add(d.Totals)
	}
	return n
}

type Summary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
	TotalMeals    int     `json:"totalMeals"`
	TotalCalories float64 `json:"totalCalories"`
}

func Summarize(p Plan) Summary {
	s := Summary{
		ID:            p.ID,
		Name:          p.Name,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		TotalCalories: WeeklyTotals(p).Calories,
	}
	for _, d := range p.Days {
		s.TotalMeals += len(d.Meals)
	}
	return s
}
