package mock

import (
	"context"
	"fmt"
	"sync"

	"mealchat/completion"
)

// Step is one canned answer. A non-nil Err is returned instead of Content.
type Step struct {
	Content string
	Err     error
}

// Scripted replays steps in order and records every request it receives.
// Once the script runs out every call fails as unavailable.
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	calls []completion.Request
}

func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Complete(ctx context.Context, req completion.Request) (completion.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return completion.Response{}, fmt.Errorf("%w: script exhausted", completion.ErrServiceUnavailable)
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return completion.Response{}, err
	}
	if step.Err != nil {
		return completion.Response{}, step.Err
	}
	return completion.Response{Content: step.Content}, nil
}

// Push queues more steps.
func (s *Scripted) Push(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

func (s *Scripted) Calls() []completion.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completion.Request(nil), s.calls...)
}
