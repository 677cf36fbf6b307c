// Package completion is the contract with the external completion service: a
// prompt plus a strict output schema in, a conforming JSON object out.
package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	// ErrServiceUnavailable is transient; the caller may retry.
	ErrServiceUnavailable = errors.New("completion service unavailable")

	// ErrMalformedResponse means the service answered but not with a conforming object. Never retried automatically.
	ErrMalformedResponse = errors.New("malformed completion response")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call. Name identifies the output contract and is
// used as the tool name by backends that force structured output through a tool.
type Request struct {
	Name        string
	Description string
	System      string
	Messages    []Message
	Schema      *jsonschema.Schema
}

type Response struct {
	// Content is the raw JSON object produced by the model.
	Content      string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

type Service interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (Response, error)

func (f ServiceFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Turns returns the messages in the shape chat backends accept: empty messages
// dropped, leading assistant messages dropped, and consecutive messages from the
// same role joined.
func (r Request) Turns() []Message {
	var out []Message
	for _, m := range r.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if len(out) == 0 && m.Role != RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, Message{Role: m.Role, Content: content})
	}
	return out
}
