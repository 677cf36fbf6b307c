// Package bedrock implements the completion service on the Amazon Bedrock Converse API.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mealchat/completion"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	smithydocument "github.com/aws/smithy-go/document"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// A batch of meals with recipes needs more room than a single chat reply.
	defaultMaxTokens = 2048

	// Low temperature and top_p keep structured output consistent.
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMClient forces a single tool whose input schema is the requested output
// schema, so the tool input is the structured answer.
type LLMClient struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
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
	return &LLMClient{
		brc:  brc,
		opts: opts,
	}
}

func (c *LLMClient) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "operation", req.Name, "messages_len", len(req.Messages))

	var sys []types.SystemContentBlock
	if req.System != "" {
		sys = append(sys, &types.SystemContentBlockMemberText{Value: req.System})
	}

	var msgs []types.Message
	for _, m := range req.Turns() {
		role := types.ConversationRoleUser
		if m.Role == completion.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		msgs = append(msgs, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	if len(msgs) == 0 {
		return completion.Response{}, fmt.Errorf("request %q has no user message", req.Name)
	}

	spec, err := buildToolSpec(req)
	if err != nil {
		return completion.Response{}, err
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.opts.ModelID),
		System:   sys,
		Messages: msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{&types.ToolMemberToolSpec{Value: spec}},
			ToolChoice: &types.ToolChoiceMemberTool{
				Value: types.SpecificToolChoice{Name: aws.String(req.Name)},
			},
		},
	}

	start := time.Now()
	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		return completion.Response{}, classify(err)
	}

	resp := completion.Response{Latency: time.Since(start)}
	if out.Usage != nil {
		resp.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	if out.Metrics != nil {
		resp.Latency = time.Duration(aws.ToInt64(out.Metrics.LatencyMs)) * time.Millisecond
	}

	slog.Info("LLM_CLIENT: Bedrock invoke succeeded",
		"stop_reason", out.StopReason,
		"latency_ms", resp.Latency.Milliseconds(),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)

	switch out.StopReason {
	case "max_tokens":
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; the structured answer is truncated")
		return completion.Response{}, fmt.Errorf("%w: model hit MaxTokens limit", completion.ErrMalformedResponse)

	case "guardrail_intervened", "content_filtered":
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return completion.Response{}, fmt.Errorf("%w: response blocked by safety filters", completion.ErrMalformedResponse)
	}

	content, err := toolInputFromOutput(out, req.Name)
	if err != nil {
		return completion.Response{}, err
	}
	if content == "" {
		// Some models answer in text despite the forced tool.
		content = textFromOutput(out)
	}
	if content == "" {
		return completion.Response{}, fmt.Errorf("%w: empty response", completion.ErrMalformedResponse)
	}

	resp.Content = content
	return resp, nil
}

// classify maps transport and API failures onto the completion error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		slog.Error("LLM_CLIENT: Bedrock invoke failed", "code", apiErr.ErrorCode(), "fault", apiErr.ErrorFault().String(), "error", err)
		if apiErr.ErrorCode() == "ValidationException" {
			return fmt.Errorf("bedrock rejected the request: %w", err)
		}
	} else {
		slog.Error("LLM_CLIENT: Bedrock invoke failed", "error", err)
	}

	return fmt.Errorf("%w: %v", completion.ErrServiceUnavailable, err)
}

// buildToolSpec turns the output schema into the input schema of the forced tool.
func buildToolSpec(req completion.Request) (types.ToolSpecification, error) {
	if req.Schema == nil {
		return types.ToolSpecification{}, fmt.Errorf("request %q has no output schema", req.Name)
	}

	// Round-trip through JSON so the schema's own MarshalJSON decides the wire shape
	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to marshal output schema for %s: %w", req.Name, err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to unmarshal output schema for %s: %w", req.Name, err)
	}

	description := req.Description
	if description == "" {
		description = "Return the answer as structured data."
	}

	return types.ToolSpecification{
		Name:        aws.String(req.Name),
		Description: aws.String(description),
		InputSchema: &types.ToolInputSchemaMemberJson{
			Value: document.NewLazyDocument(schemaMap),
		},
	}, nil
}

// toolInputFromOutput returns the JSON input of the named tool call, or "" when the model made none.
func toolInputFromOutput(out *bedrockruntime.ConverseOutput, name string) (string, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return "", nil
	}

	for _, cb := range msg.Value.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok || tu == nil || aws.ToString(tu.Value.Name) != name || tu.Value.Input == nil {
			continue
		}

		var input map[string]any
		if err := tu.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
			return "", fmt.Errorf("%w: tool input is not an object: %v", completion.ErrMalformedResponse, err)
		}

		b, err := json.Marshal(normalizeInput(input))
		if err != nil {
			return "", fmt.Errorf("%w: %v", completion.ErrMalformedResponse, err)
		}
		return string(b), nil
	}

	return "", nil
}

// textFromOutput returns the last text block that looks like a JSON object.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	for i := len(msg.Value.Content) - 1; i >= 0; i-- {
		t, ok := msg.Value.Content[i].(*types.ContentBlockMemberText)
		if !ok || t == nil {
			continue
		}
		s := strings.TrimSpace(t.Value)
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return ""
}

// normalizeInput turns smithy document numbers into float64 and decodes
// arrays or objects the model sent as JSON strings.
func normalizeInput(val any) any {
	switch v := val.(type) {
	case smithydocument.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return string(v)

	case string:
		s := strings.TrimSpace(v)
		if len(s) > 1 && (s[0] == '[' || s[0] == '{') {
			var decoded any
			if json.Unmarshal([]byte(s), &decoded) == nil {
				return normalizeInput(decoded)
			}
		}
		return v

	case []any:
		for i := range v {
			v[i] = normalizeInput(v[i])
		}
		return v

	case map[string]any:
		for key, val := range v {
			v[key] = normalizeInput(val)
		}
		return v

	default:
		return v
	}
}
