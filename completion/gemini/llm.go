// Package gemini implements the completion service on Google Gemini with JSON
// response schemas.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mealchat/completion"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultModelID     = "gemini-1.5-flash"
	defaultMaxTokens   = 2048
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// call carries everything one generate request needs.
type call struct {
	opts    LLMOptions
	system  string
	schema  *genai.Schema
	history []*genai.Content
	prompt  string
}

type generator interface {
	Generate(ctx context.Context, c call) (*genai.GenerateContentResponse, error)
}

// clientGenerator sends a call through a genai chat session.
type clientGenerator struct {
	client *genai.Client
}

func (g clientGenerator) Generate(ctx context.Context, c call) (*genai.GenerateContentResponse, error) {
	model := g.client.GenerativeModel(c.opts.ModelID)
	model.SetMaxOutputTokens(c.opts.MaxTokens)
	model.SetTemperature(c.opts.Temperature)
	model.SetTopP(c.opts.TopP)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = c.schema
	if c.system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(c.system))
	}

	cs := model.StartChat()
	cs.History = c.history
	return cs.SendMessage(ctx, genai.Text(c.prompt))
}

type LLMClient struct {
	gen  generator
	opts LLMOptions
}

// NewClient opens a Gemini client authenticated with apiKey. Close it when done.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is not set")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

func NewLLMClient(client *genai.Client, opts LLMOptions) *LLMClient {
	return newLLMClient(clientGenerator{client: client}, opts)
}

func newLLMClient(gen generator, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &LLMClient{gen: gen, opts: opts}
}

func (c *LLMClient) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", "gemini", "operation", req.Name, "messages_len", len(req.Messages))

	turns := req.Turns()
	if len(turns) == 0 || turns[len(turns)-1].Role != completion.RoleUser {
		return completion.Response{}, fmt.Errorf("request %q must end with a user message", req.Name)
	}

	var history []*genai.Content
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == completion.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	system := req.System
	if req.Description != "" {
		system = strings.TrimSpace(system + "\n\n" + req.Description)
	}

	start := time.Now()
	res, err := c.gen.Generate(ctx, call{
		opts:    c.opts,
		system:  system,
		schema:  convertSchema(req.Schema),
		history: history,
		prompt:  turns[len(turns)-1].Content,
	})
	if err != nil {
		return completion.Response{}, classify(err)
	}

	resp := completion.Response{Latency: time.Since(start)}
	if res.UsageMetadata != nil {
		resp.InputTokens = int(res.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(res.UsageMetadata.CandidatesTokenCount)
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return completion.Response{}, fmt.Errorf("%w: no candidates", completion.ErrMalformedResponse)
	}
	cand := res.Candidates[0]
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; the structured answer is truncated")
		return completion.Response{}, fmt.Errorf("%w: model hit MaxTokens limit", completion.ErrMalformedResponse)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	resp.Content = strings.TrimSpace(b.String())
	if resp.Content == "" {
		return completion.Response{}, fmt.Errorf("%w: empty response", completion.ErrMalformedResponse)
	}

	slog.Info("LLM_CLIENT: Gemini invoke succeeded",
		"finish_reason", cand.FinishReason.String(),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		slog.Warn("LLM_CLIENT: Gemini response blocked", "error", err)
		return fmt.Errorf("%w: %v", completion.ErrMalformedResponse, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		slog.Error("LLM_CLIENT: Gemini invoke failed", "code", apiErr.Code, "error", err)
		if apiErr.Code == 400 {
			return fmt.Errorf("gemini rejected the request: %w", err)
		}
	} else {
		slog.Error("LLM_CLIENT: Gemini invoke failed", "error", err)
	}

	return fmt.Errorf("%w: %v", completion.ErrServiceUnavailable, err)
}

// convertSchema maps a JSON schema onto Gemini's OpenAPI subset. Keywords Gemini
// does not support (additionalProperties, minimum, minLength) are dropped; the
// response is validated against the full schema afterwards.
func convertSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
		out.Items = convertSchema(s.Items)
	case "object":
		out.Type = genai.TypeObject
	}

	for _, e := range s.Enum {
		if str, ok := e.(string); ok {
			out.Enum = append(out.Enum, str)
		}
	}
	if len(out.Enum) > 0 {
		out.Format = "enum"
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = convertSchema(prop)
		}
		out.Required = append([]string(nil), s.Required...)
	}

	return out
}
