package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mealchat"
	"mealchat/completion"
	"mealchat/preference"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrEmptyUtterance = errors.New("empty utterance")

// Result is the outcome of one conversational turn. On failure it still carries
// the transcript with the retry message appended and the untouched preferences.
type Result struct {
	Transcript  Transcript       `json:"transcript"`
	Preferences preference.Store `json:"preferences"`
	Reply       Message          `json:"reply"`
	Ready       bool             `json:"readyForGeneration"`
}

type Engine struct {
	svc    completion.Service
	ready  preference.Policy
	tracer trace.Tracer
}

// NewEngine returns an engine using policy to decide readiness; nil means preference.AnyKnown.
func NewEngine(svc completion.Service, policy preference.Policy) *Engine {
	if policy == nil {
		policy = preference.AnyKnown
	}
	return &Engine{
		svc:    svc,
		ready:  policy,
		tracer: otel.Tracer(mealchat.TracerNameConversation),
	}
}

// Ready reports whether candidates may be generated: the policy holds and no
// batch has been shown in this conversation yet.
func (e *Engine) Ready(s preference.Store, t Transcript) bool {
	return e.ready(s, t.UserTurns()) && !t.HasCandidateBatch()
}

// Policy exposes the readiness predicate on its own, without the batch rule.
func (e *Engine) Policy() preference.Policy {
	return e.ready
}

// Advance appends utterance, asks the completion service to extract preferences
// and merges them into current.
func (e *Engine) Advance(ctx context.Context, transcript Transcript, current preference.Store, utterance string) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.Advance", trace.WithAttributes(
		attribute.Int("conversation.messages", len(transcript)),
		attribute.Int("preferences.known", current.KnownCount()),
	))
	defer span.End()

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Result{Transcript: transcript, Preferences: current, Ready: e.Ready(current, transcript)}, ErrEmptyUtterance
	}

	working := transcript.Append(NewMessage(completion.RoleUser, KindText, utterance))

	schema := ExtractionSchema()
	resp, err := e.svc.Complete(ctx, completion.Request{
		Name:        ExtractOperation,
		Description: "Record the user's meal preferences and your next message to them.",
		System:      buildSystemPrompt(current),
		Messages:    working.completionMessages(),
		Schema:      schema,
	})

	var ext extraction
	if err == nil {
		ext, err = completion.Decode[extraction](resp.Content, schema)
	}
	if err == nil && strings.TrimSpace(ext.FollowUpPrompt) == "" {
		err = fmt.Errorf("%w: blank followUpPrompt", completion.ErrMalformedResponse)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("CONVERSATION: Preference extraction failed", "kind", completion.Kind(err), "error", err)

		reply := NewMessage(completion.RoleAssistant, KindText, RetryMessage)
		out := working.Append(reply)
		return Result{
			Transcript:  out,
			Preferences: current,
			Reply:       reply,
			Ready:       e.Ready(current, out),
		}, fmt.Errorf("extract preferences: %w", err)
	}

	merged := preference.Merge(current, ext.store())
	reply := NewMessage(completion.RoleAssistant, KindText, strings.TrimSpace(ext.FollowUpPrompt))
	out := working.Append(reply)
	ready := e.Ready(merged, out)

	span.SetAttributes(
		attribute.Int("preferences.known_after", merged.KnownCount()),
		attribute.Bool("conversation.ready", ready),
	)
	slog.Info("CONVERSATION: Turn complete", "known", merged.KnownCount(), "ready", ready)

	return Result{
		Transcript:  out,
		Preferences: merged,
		Reply:       reply,
		Ready:       ready,
	}, nil
}
