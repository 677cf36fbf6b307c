// Package mcpserver exposes meal planning sessions as MCP tools so an agent
// can hold the conversation on a user's behalf.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"mealchat/session"
	"mealchat/weekly"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	Name    = "mealchat"
	Version = "0.1.0"
)

type userInput struct {
	UserID string `json:"userId" jsonschema:"id of the user the session belongs to"`
}

type promptInput struct {
	UserID  string `json:"userId" jsonschema:"id of the user the session belongs to"`
	Message string `json:"message" jsonschema:"what the user said"`
}

type decideInput struct {
	UserID string `json:"userId" jsonschema:"id of the user the session belongs to"`
	Accept bool   `json:"accept" jsonschema:"true keeps the current candidate, false skips it"`
}

type createPlanInput struct {
	UserID    string `json:"userId" jsonschema:"id of the user the session belongs to"`
	Name      string `json:"name,omitempty" jsonschema:"plan name"`
	StartDate string `json:"startDate,omitempty" jsonschema:"first day as YYYY-MM-DD, defaults to today"`
	EndDate   string `json:"endDate,omitempty" jsonschema:"last day as YYYY-MM-DD, defaults to six days after the start"`
}

type dayInput struct {
	UserID string `json:"userId" jsonschema:"id of the user the session belongs to"`
	PlanID string `json:"planId" jsonschema:"plan id returned by create_plan"`
	Day    string `json:"day" jsonschema:"day of the week, e.g. Monday"`
}

// New registers the session tools on a fresh MCP server.
func New(sessions *session.Manager) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, nil)
	h := &handlers{sessions: sessions}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "prompt_user",
		Description: "Send the user's message to the meal planning conversation and get the assistant's reply and the preferences gathered so far.",
	}, h.promptUser)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_meals",
		Description: "Generate a batch of candidate meals from the gathered preferences. Fails until the conversation is ready.",
	}, h.generateMeals)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "triage_decide",
		Description: "Accept or reject the candidate meal currently being presented.",
	}, h.triageDecide)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_plan",
		Description: "Create an empty Monday to Sunday meal plan.",
	}, h.createPlan)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_plans",
		Description: "List the user's meal plans, newest first.",
	}, h.listPlans)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_meals_to_day",
		Description: "Add the meals accepted in the last triage to a day of a plan.",
	}, h.addMealsToDay)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "plan_progress",
		Description: "Report a day's nutrition against the plan's daily target.",
	}, h.planProgress)

	return server
}

type handlers struct {
	sessions *session.Manager
}

func (h *handlers) session(userID string) (*session.Session, error) {
	return h.sessions.Get(userID)
}

func (h *handlers) promptUser(ctx context.Context, req *mcp.CallToolRequest, in promptInput) (*mcp.CallToolResult, any, error) {
	s, err := h.session(in.UserID)
	if err != nil {
		return errorResult("prompt_user", err), nil, nil
	}
	res, err := s.Send(ctx, in.Message)
	if err != nil {
		return errorResult("prompt_user", err), nil, nil
	}
	return jsonResult(res)
}

func (h *handlers) generateMeals(ctx context.Context, req *mcp.CallToolRequest, in userInput) (*mcp.CallToolResult, any, error) {
	s, err := h.session(in.UserID)
	if err != nil {
		return errorResult("generate_meals", err), nil, nil
	}
	meals, err := s.Generate(ctx)
	if err != nil {
		return errorResult("generate_meals", err), nil, nil
	}
	return jsonResult(map[string]any{"meals": meals})
}

func (h *handlers) triageDecide(ctx context.Context, req *mcp.CallToolRequest, in decideInput) (*mcp.CallToolResult, any, error) {
	s, err := h.session(in.UserID)
	if err != nil {
		return errorResult("triage_decide", err), nil, nil
	}
	v, err := s.Decide(ctx, in.Accept)
	if err != nil {
		return errorResult("triage_decide", err), nil, nil
	}
	return jsonResult(v)
}

func (h *handlers) createPlan(ctx context.Context, req *mcp.CallToolRequest, in createPlanInput) (*mcp.CallToolResult, any, error) {
	s, err := h.session(in.UserID)
	if err != nil {
		return errorResult("create_plan", err), nil, nil
	}
	start, err := parseDate(in.StartDate)
	if err != nil {
		return errorResult("create_plan", fmt.Errorf("startDate: %w", err)), nil, nil
	}
	end, err := parseDate(in.EndDate)
	if err != nil {
		return errorResult("create_plan", fmt.Errorf("endDate: %w", err)), nil, nil
	}
	p, err := s.CreatePlan(ctx, in.Name, start, end)
	if err != nil {
		return errorResult("create_plan", err), nil, nil
	}
	return jsonResult(session.NewPlanView(p))
}

func (h *handlers) listPlans(ctx context.Context, req *mcp.CallToolRequest, in userInput) (*mcp.CallToolResult, any, error) {
	s, err := h.session(in.UserID)
	if err != nil {
		return errorResult("list_plans", err), nil, nil
	}
	plans, err := s.Plans(ctx)
	if err != nil {
		return errorResult("list_plans", err), nil, nil
	}
	return jsonResult(map[string]any{"plans": plans, "count": len(plans)})
}

func (h *handlers) addMealsToDay(ctx context.Context, req *mcp.CallToolRequest, in dayInput) (*mcp.CallToolResult, any, error) {
	s, err := h.session(in.UserID)
	if err != nil {
		return errorResult("add_meals_to_day", err), nil, nil
	}
	p, err := s.AddAccepted(ctx, in.PlanID, weekly.DayOfWeek(in.Day))
	if err != nil {
		return errorResult("add_meals_to_day", err), nil, nil
	}
	return jsonResult(session.NewPlanView(p))
}

func (h *handlers) planProgress(ctx context.Context, req *mcp.CallToolRequest, in dayInput) (*mcp.CallToolResult, any, error) {
	s, err := h.session(in.UserID)
	if err != nil {
		return errorResult("plan_progress", err), nil, nil
	}
	prog, err := s.Progress(ctx, in.PlanID, weekly.DayOfWeek(in.Day))
	if err != nil {
		return errorResult("plan_progress", err), nil, nil
	}
	return jsonResult(prog)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal tool output: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

// errorResult reports a failed call to the agent instead of failing the protocol exchange.
func errorResult(tool string, err error) *mcp.CallToolResult {
	slog.Warn("MCP: Tool call failed", "tool", tool, "error", err)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
