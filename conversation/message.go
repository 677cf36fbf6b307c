// Package conversation turns user utterances into accumulated preferences and
// assistant replies.
package conversation

import (
	"mealchat/completion"
	"mealchat/meal"

	"github.com/google/uuid"
)

type Kind string

const (
	KindText           Kind = "text"
	KindCandidateBatch Kind = "candidateBatch"
	KindActionPrompt   Kind = "actionPrompt"
)

type Message struct {
	ID      string          `json:"id"`
	Role    completion.Role `json:"role"`
	Content string          `json:"content"`
	Kind    Kind            `json:"kind"`
	// Meals is set on candidate batch messages.
	Meals []meal.Meal `json:"meals,omitempty"`
}

func NewMessage(role completion.Role, kind Kind, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		Kind:    kind,
	}
}

// Transcript is append-only. Append never modifies the receiver's backing array.
type Transcript []Message

func (t Transcript) Append(msgs ...Message) Transcript {
	out := make(Transcript, 0, len(t)+len(msgs))
	out = append(out, t...)
	return append(out, msgs...)
}

// HasCandidateBatch reports whether a batch of candidates was shown.
func (t Transcript) HasCandidateBatch() bool {
	for _, m := range t {
		if m.Kind == KindCandidateBatch {
			return true
		}
	}
	return false
}

func (t Transcript) UserTurns() int {
	n := 0
	for _, m := range t {
		if m.Role == completion.RoleUser {
			n++
		}
	}
	return n
}

// Last returns the final message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

func (t Transcript) completionMessages() []completion.Message {
	msgs := make([]completion.Message, 0, len(t))
	for _, m := range t {
		msgs = append(msgs, completion.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
