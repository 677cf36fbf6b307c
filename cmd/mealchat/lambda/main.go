package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"mealchat"
	"mealchat/app"
	"mealchat/session"
	"mealchat/weekly"
)

type Params struct {
	UserID  string `json:"userId"`
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	PlanID  string `json:"planId,omitempty"`
	Day     string `json:"day,omitempty"`
}

type Results struct {
	Output any `json:"output"`
}

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	tracerProvider, meterProvider, _, err := mealchat.InitOtel(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %s", err)
	}

	// sessions live as long as the warm container
	a, err := app.New(ctx, cfg, app.Options{
		TurnLogger:     mealchat.NewStdoutTurnLogger(),
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
	})
	if err != nil {
		log.Fatalf("Failed to build sessions: %s", err)
	}

	fn := func(ctx context.Context, params Params) (Results, error) {
		defer func() {
			// pending triage writes and spans must land before the container freezes
			a.Sessions.Wait()
			if err := errors.Join(tracerProvider.ForceFlush(ctx), meterProvider.ForceFlush(ctx)); err != nil {
				slog.Error("SETUP: Failed to flush OpenTelemetry", "error", err)
			}
		}()

		s, err := a.Sessions.Get(params.UserID)
		if err != nil {
			return Results{}, err
		}

		output, err := handle(ctx, s, params)
		if err != nil {
			slog.Error("RESULT: Error handling action", "action", params.Action, "error", err)
			return Results{Output: output}, err
		}
		return Results{Output: output}, nil
	}

	lambda.Start(fn)
}

func handle(ctx context.Context, s *session.Session, params Params) (any, error) {
	switch params.Action {
	case "prompt":
		return s.Send(ctx, params.Message)
	case "generate":
		return s.Generate(ctx)
	case "accept":
		return s.Decide(ctx, true)
	case "reject":
		return s.Decide(ctx, false)
	case "plans":
		return s.Plans(ctx)
	case "plan":
		p, err := s.CreatePlan(ctx, params.Message, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		return session.NewPlanView(p), nil
	case "schedule":
		p, err := s.AddAccepted(ctx, params.PlanID, weekly.DayOfWeek(params.Day))
		if err != nil {
			return nil, err
		}
		return session.NewPlanView(p), nil
	case "progress":
		return s.Progress(ctx, params.PlanID, weekly.DayOfWeek(params.Day))
	default:
		return nil, fmt.Errorf("unknown action %q", params.Action)
	}
}
