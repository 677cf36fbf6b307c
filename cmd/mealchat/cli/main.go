package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mealchat"
	"mealchat/app"
	"mealchat/conversation"
	"mealchat/session"
	"mealchat/triage"
	"mealchat/weekly"
)

const help = `Type to chat. Commands:
  /generate         suggest meals
  /accept, /reject  decide on the current meal
  /plan <day>       add accepted meals to a day of this week's plan
  /progress <day>   show a day's nutrition against the target
  /quit`

func main() {
	debug := flag.Bool("debug", false, "dump every reply")
	provider := flag.String("provider", "", "model provider override: bedrock, gemini or mock")
	user := flag.String("user", "cli", "user id")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("SETUP: No .env file loaded", "error", err)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}
	if *provider != "" {
		cfg.Model.Provider = *provider
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to build sessions: %s", err)
	}
	defer a.Close()

	s, err := a.Sessions.Get(*user)
	if err != nil {
		log.Fatalf("Failed to start session: %s", err)
	}

	c := &chat{s: s, debug: *debug}
	greeting, _ := s.Transcript().Last()
	fmt.Println(greeting.Content)
	fmt.Println(help)

	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Print("> "); scanner.Scan(); fmt.Print("> ") {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if err := c.handle(ctx, line); err != nil {
			fmt.Println("error:", err)
		}
	}
}

type chat struct {
	s      *session.Session
	debug  bool
	planID string
}

func (c *chat) handle(ctx context.Context, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/generate":
		meals, err := c.s.Generate(ctx)
		if err != nil {
			c.printLast()
			return err
		}
		c.dump(meals)
		fmt.Printf("%d meals to review.\n", len(meals))
		return c.showTriage()
	case "/accept", "/reject":
		v, err := c.s.Decide(ctx, cmd == "/accept")
		if err != nil {
			return err
		}
		if v.State == triage.StateComplete {
			c.printLast()
			return nil
		}
		return c.showTriage()
	case "/plan":
		if c.planID == "" {
			p, err := c.s.CreatePlan(ctx, "", time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			c.planID = p.ID
		}
		p, err := c.s.AddAccepted(ctx, c.planID, weekly.DayOfWeek(arg))
		if err != nil {
			return err
		}
		c.dump(p)
		for _, d := range p.Days {
			fmt.Printf("%-9s %s  %d meals  %.0f kcal\n", d.DayOfWeek, d.Date, len(d.Meals), d.Totals.Calories)
		}
		return nil
	case "/progress":
		if c.planID == "" {
			return errors.New("no plan yet, use /plan <day> first")
		}
		prog, err := c.s.Progress(ctx, c.planID, weekly.DayOfWeek(arg))
		if err != nil {
			return err
		}
		fmt.Printf("calories %.0f/%.0f (%.0f%%)  protein %.0f/%.0fg  carbs %.0f/%.0fg  fats %.0f/%.0fg\n",
			prog.Calories.Current, prog.Calories.Target, prog.Calories.Percent,
			prog.Protein.Current, prog.Protein.Target,
			prog.Carbs.Current, prog.Carbs.Target,
			prog.Fats.Current, prog.Fats.Target)
		return nil
	}

	res, err := c.s.Send(ctx, line)
	c.dump(res)
	if res.Reply.Content != "" {
		fmt.Println(res.Reply.Content)
	}
	if err == nil && res.Ready {
		fmt.Println("(ready: /generate to see meal ideas)")
	}
	return err
}

func (c *chat) showTriage() error {
	v, err := c.s.Triage()
	if err != nil {
		return err
	}
	if v.Current == nil {
		return nil
	}
	m := v.Current
	fmt.Printf("[%d/%d] %s (%s, %.0f kcal)\n  %s\n", v.Index+1, v.Total, m.Name, m.MealType, m.Nutrition.Calories, strings.Join(m.Recipe.Ingredients, ", "))
	return nil
}

func (c *chat) printLast() {
	if last, ok := c.s.Transcript().Last(); ok && last.Kind != conversation.KindCandidateBatch {
		fmt.Println(last.Content)
	}
}

func (c *chat) dump(v any) {
	if c.debug {
		mealchat.Fdump(os.Stderr, "DEBUG:", v)
	}
}
