package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"mealchat/meal"
	"mealchat/weekly"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 keeps one JSON object per plan and one per user for saved meals:
//
//	<prefix>/users/<user>/plans/<plan>.json
//	<prefix>/users/<user>/meals.json
//
// Writes are read-modify-write. A process-wide lock orders them, which is
// enough for one writer per user.
type S3 struct {
	mu     sync.Mutex
	bucket string
	prefix string
	s3     s3API
	now    func() time.Time
}

type planObject struct {
	Plan PlanRecord                       `json:"plan"`
	Days map[weekly.DayOfWeek][]meal.Meal `json:"days"`
}

func NewS3(client s3API, bucket, prefix string) *S3 {
	return &S3{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		s3:     client,
		now:    time.Now,
	}
}

func (s *S3) userKey(userID string, parts ...string) string {
	return path.Join(append([]string{s.prefix, "users", userID}, parts...)...)
}

func (s *S3) planKey(userID, planID string) string {
	return s.userKey(userID, "plans", planID+".json")
}

func (s *S3) load(ctx context.Context, key string, v any) error {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("failed to get object %s from S3: %w", key, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode object %s: %w", key, err)
	}
	return nil
}

func (s *S3) save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode object %s: %w", key, err)
	}
	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s to S3: %w", key, err)
	}
	return nil
}

func (s *S3) CreatePlan(ctx context.Context, rec PlanRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := planObject{Plan: rec, Days: map[weekly.DayOfWeek][]meal.Meal{}}
	if err := s.save(ctx, s.planKey(rec.UserID, rec.ID), obj); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *S3) ListPlans(ctx context.Context, userID string) ([]PlanRecord, error) {
	prefix := s.userKey(userID, "plans") + "/"
	p := s3.NewListObjectsV2Paginator(s.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var out []PlanRecord
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list plans: %w", err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			var obj planObject
			if err := s.load(ctx, key, &obj); err != nil {
				return nil, err
			}
			out = append(out, obj.Plan)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *S3) getPlan(ctx context.Context, userID, planID string) (planObject, error) {
	var obj planObject
	if err := s.load(ctx, s.planKey(userID, planID), &obj); err != nil {
		if errors.Is(err, ErrNotFound) {
			return planObject{}, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
		}
		return planObject{}, err
	}
	if obj.Days == nil {
		obj.Days = map[weekly.DayOfWeek][]meal.Meal{}
	}
	return obj, nil
}

func (s *S3) GetPlanDays(ctx context.Context, userID, planID string) (PlanRecord, []weekly.Day, error) {
	obj, err := s.getPlan(ctx, userID, planID)
	if err != nil {
		return PlanRecord{}, nil, err
	}
	return obj.Plan, sortedDays(obj.Days), nil
}

func (s *S3) writeDay(ctx context.Context, userID, planID string, day weekly.DayOfWeek, fn func([]meal.Meal) []meal.Meal) error {
	day, err := checkDay(day)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.getPlan(ctx, userID, planID)
	if err != nil {
		return err
	}
	next := fn(append([]meal.Meal{}, obj.Days[day]...))
	if next == nil {
		next = []meal.Meal{}
	}
	obj.Days[day] = next
	return s.save(ctx, s.planKey(userID, planID), obj)
}

func (s *S3) AppendMeals(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error {
	return s.writeDay(ctx, userID, planID, day, func(cur []meal.Meal) []meal.Meal {
		return append(cur, meals...)
	})
}

func (s *S3) ReplaceDay(ctx context.Context, userID, planID string, day weekly.DayOfWeek, meals []meal.Meal) error {
	return s.writeDay(ctx, userID, planID, day, func([]meal.Meal) []meal.Meal {
		return append([]meal.Meal{}, meals...)
	})
}

func (s *S3) savedMeals(ctx context.Context, userID string) ([]SavedMeal, error) {
	var saved []SavedMeal
	err := s.load(ctx, s.userKey(userID, "meals.json"), &saved)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return saved, err
}

func (s *S3) Favorites(ctx context.Context, userID string) ([]SavedMeal, error) {
	return s.savedMeals(ctx, userID)
}

func (s *S3) RecordDecision(ctx context.Context, userID string, m meal.Meal, accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.savedMeals(ctx, userID)
	if err != nil {
		return err
	}

	idx := -1
	for i, sm := range saved {
		if sm.Meal.ID == m.ID {
			idx = i
			break
		}
	}
	switch {
	case !accepted && idx < 0:
		return nil
	case !accepted:
		saved = append(saved[:idx], saved[idx+1:]...)
	case idx < 0:
		saved = append(saved, SavedMeal{Meal: m, DecidedAt: s.now()})
	default:
		saved[idx].Meal = m
		saved[idx].DecidedAt = s.now()
	}
	return s.save(ctx, s.userKey(userID, "meals.json"), saved)
}

func (s *S3) ToggleFavorite(ctx context.Context, userID, mealID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.savedMeals(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range saved {
		if saved[i].Meal.ID == mealID {
			saved[i].Favorite = !saved[i].Favorite
			if err := s.save(ctx, s.userKey(userID, "meals.json"), saved); err != nil {
				return false, err
			}
			return saved[i].Favorite, nil
		}
	}
	return false, fmt.Errorf("meal %s: %w", mealID, ErrNotFound)
}
