package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mealchat/meal"
	"mealchat/weekly"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS plans (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        name TEXT NOT NULL,
        start_date TEXT NOT NULL,
        end_date TEXT NOT NULL,
        target_calories REAL NOT NULL,
        target_protein REAL NOT NULL,
        target_carbs REAL NOT NULL,
        target_fats REAL NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS plan_days (
        plan_id TEXT NOT NULL,
        day TEXT NOT NULL,
        meals TEXT NOT NULL,
        PRIMARY KEY (plan_id, day),
        FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS saved_meals (
        user_id TEXT NOT NULL,
        meal_id TEXT NOT NULL,
        meal TEXT NOT NULL,
        favorite INTEGER NOT NULL DEFAULT 0,
        decided_at TEXT NOT NULL,
        PRIMARY KEY (user_id, meal_id)
    );

    CREATE INDEX IF NOT EXISTS idx_plans_user ON plans(user_id);
    `
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLite) CreatePlan(ctx context.Context, rec PlanRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO plans (id, user_id, name, start_date, end_date, target_calories, target_protein, target_carbs, target_fats, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Name, rec.StartDate, rec.EndDate,
		rec.Target.Calories, rec.Target.Protein, rec.Target.Carbs, rec.Target.Fats,
		rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to insert plan: %w", err)
	}
	return rec.ID, nil
}

const planColumns = `id, user_id, name, start_date, end_date, target_calories, target_protein, target_carbs, target_fats, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (PlanRecord, error) {
	var rec PlanRecord
	var created string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.StartDate, &rec.EndDate,
		&rec.Target.Calories, &rec.Target.Protein, &rec.Target.Carbs, &rec.Target.Fats, &created)
	if err != nil {
		return PlanRecord{}, err
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return PlanRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return rec, nil
}

func (s *SQLite) ListPlans(ctx context.Context, userID string) ([]PlanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var out []PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) getPlan(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, userID, planID string) (PlanRecord, error) {
	rec, err := scanPlan(q.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = ? AND user_id = ?`, planID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	if err != nil {
		return PlanRecord{}, fmt.Errorf("failed to get plan: %w", err)
	}
	return rec, nil
}

func (s *SQLite) GetPlanDays(ctx context.Context, userID, planID string) (PlanRecord, []weekly.Day, error) {
	rec, err := s.getPlan(ctx, s.db, userID, planID)
	if err != nil {
		return PlanRecord{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT day, meals FROM plan_days WHERE plan_id = ?`, planID)
	if err != nil {
		return PlanRecord{}, nil, fmt.Errorf("failed to query plan days: %w", err)
	}
	defer rows.Close()

	byDay := make(map[weekly.DayOfWeek][]meal.Meal)
	for rows.Next() {
		var day, raw string
		if err := rows.Scan(&day, &raw); err != nil {
			return PlanRecord{}, nil, fmt.Errorf("failed to scan plan day: %w", err)
		}
		var meals []meal.Meal
		if err := json.Unmarshal([]byte(raw), &meals); err != nil {
			return PlanRecord{}, nil, fmt.Errorf("failed to decode meals for %s: %w", day, err)
		}
		byDay[weekly.DayOfWeek(day)] = meals
	}
	if err := rows.Err(); err != nil {
		return PlanRecord{}, nil, err
	}
	return rec, sortedDays(byDay), nil
}

func (s *SQLite) Favorites(ctx context.Context, userID string) ([]SavedMeal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT meal, favorite, decided_at FROM saved_meals WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved meals: %w", err)
	}
	defer rows.Close()

	var out []SavedMeal
	for rows.Next() {
		var raw, decided string
		var sm SavedMeal
		if err := rows.Scan(&raw, &sm.Favorite, &decided); err != nil {
			return nil, fmt.Errorf("failed to scan saved meal: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &sm.Meal); err != nil {
			return nil, fmt.Errorf("failed to decode saved meal: %w", err)
		}
		if sm.DecidedAt, err = time.Parse(timeLayout, decided); err != nil {
			return nil, fmt.Errorf("failed to parse decided_at: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLite) RecordDecision(ctx context.Context, userID string, m meal.Meal, accepted bool) error {
	if !accepted {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM saved_meals WHERE user_id = ? AND meal_id = ?`, userID, m.ID); err != nil {
			return fmt.Errorf("failed to record rejection: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode meal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO saved_meals (user_id, meal_id, meal, favorite, decided_at)
        VALUES (?, ?, ?, 0, ?)
        ON CONFLICT (user_id, meal_id) DO UPDATE SET meal = excluded.meal, decided_at = excluded.decided_at`,
		userID, m.ID, string(raw), s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record acceptance: %w", err)
	}
	return nil
}

// writeDay runs fn over the day's current meals inside a transaction and stores the result.
func (s *SQLite) writeDay(ctx context.Context, userID, planID string, day weekly.DayOfWeek, fn func([]meal.Meal) []meal.Meal) error {
	day, err := checkDay(day)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.getPlan(ctx, tx, userID, planID); err != nil {
		return err
	}

	var current []meal.Meal
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT meals FROM plan_days WHERE plan_id = ? AND day = ?`, planID, string(day)).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read plan day: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("failed to decode plan day: %w", err)
		}
	}

	next := fn(current)
	if next == nil {
		next = []meal.Meal{}
	}
	b, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode plan day: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO plan_days (plan_id, day, meals) VALUES (?, ?, ?)
        ON CONFLICT (plan_id, day) DO UPDATE SET meals = excluded.meals`,
		planID, string(day), string(b)); err != nil {
		return fmt.Errorf("failed to write plan day: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) AppendMeals(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error {
	return s.writeDay(ctx, userID, planID, day, func(cur []meal.Meal) []meal.Meal {
		return append(cur, meals...)
	})
}

func (s *SQLite) ReplaceDay(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error {
	return s.writeDay(ctx, userID, planID, day, func([]meal.Meal) []meal.Meal {
		return meals
	})
}

func (s *SQLite) ToggleFavorite(ctx context.Context, userID, mealID string) (bool, error) {
	var fav bool
	err := s.db.QueryRowContext(ctx, `
        UPDATE saved_meals SET favorite = 1 - favorite
        WHERE user_id = ? AND meal_id = ?
        RETURNING favorite`, userID, mealID).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("meal %s: %w", mealID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return fav, nil
}
