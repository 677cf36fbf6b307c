// Package session holds one user's conversation and drives it from preference
// gathering through candidate triage to a scheduled week.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mealchat"
	"mealchat/candidate"
	"mealchat/completion"
	"mealchat/conversation"
	"mealchat/meal"
	"mealchat/notify"
	"mealchat/preference"
	"mealchat/store"
	"mealchat/triage"
	"mealchat/weekly"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrBusy rejects a request while a completion call is in flight for the same conversation.
	ErrBusy     = errors.New("a request is already in progress for this conversation")
	ErrNotReady = errors.New("not enough preferences to generate meals yet")
	ErrNoTriage = errors.New("no candidates to triage")
)

const (
	BatchMessage          = "I've generated some meal suggestions based on your preferences. Let's go through them!"
	GenerateFailedMessage = "I apologize, but I encountered an error while generating your meal plan. Would you like to try again?"
	ScheduleMessage       = "Great! I've added your favorite dishes to your meal plan. Would you like me to create a weekly schedule with these meals?"
	NoneAcceptedMessage   = "None of those caught your eye. Ask me to generate more whenever you like."
)

type Config struct {
	Conversation *conversation.Engine
	Generator    *candidate.Generator
	Store        store.Store
	// Notifier receives failure notices. Deliveries never block a session.
	Notifier     mealchat.Notifier
	Target       weekly.Target
	WriteTimeout time.Duration
	Meter        metric.Meter
	Now          func() time.Time
}

// Manager hands out one session per user.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg Config) *Manager {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	cfg.Notifier = notify.Async(cfg.Notifier)
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Target == (weekly.Target{}) {
		cfg.Target = weekly.DefaultTarget()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

// Get returns the user's session, starting one with the greeting if needed.
func (m *Manager) Get(userID string) (*Session, error) {
	if userID == "" {
		return nil, mealchat.ErrAuthenticationMissing
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		s = newSession(userID, &m.cfg)
		m.sessions[userID] = s
		slog.Info("SESSION: Started", "user_id", userID)
	}
	return s, nil
}

// Wait blocks until every session's background writes are done.
func (m *Manager) Wait() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Wait()
	}
}

type Session struct {
	userID   string
	cfg      *Config
	tracer   trace.Tracer
	inFlight atomic.Bool

	mu         sync.Mutex
	transcript conversation.Transcript
	prefs      preference.Store
	triage     *triage.Engine
	retired    []*triage.Engine // earlier batches with writes still running
	plans      map[string]weekly.Plan

	planMu sync.Mutex // serializes plan changes
}

func newSession(userID string, cfg *Config) *Session {
	return &Session{
		userID:     userID,
		cfg:        cfg,
		tracer:     otel.Tracer(mealchat.TracerNameSession),
		transcript: conversation.Transcript{}.Append(conversation.NewMessage(completion.RoleAssistant, conversation.KindText, conversation.Greeting)),
		prefs:      preference.New(),
		plans:      make(map[string]weekly.Plan),
	}
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) acquire() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (s *Session) release() {
	s.inFlight.Store(false)
}

func (s *Session) notify(ctx context.Context, message string) {
	if err := s.cfg.Notifier.Notify(ctx, message); err != nil {
		slog.Warn("SESSION: Notification failed", "user_id", s.userID, "error", err)
	}
}

// Send advances the conversation by one user utterance. A failed extraction
// still returns a result carrying the retry message.
func (s *Session) Send(ctx context.Context, utterance string) (conversation.Result, error) {
	if err := s.acquire(); err != nil {
		return conversation.Result{}, err
	}
	defer s.release()

	s.mu.Lock()
	transcript, prefs := s.transcript, s.prefs
	s.mu.Unlock()

	res, err := s.cfg.Conversation.Advance(ctx, transcript, prefs, utterance)
	if errors.Is(err, conversation.ErrEmptyUtterance) {
		return res, err
	}

	s.mu.Lock()
	s.transcript = res.Transcript
	s.prefs = res.Preferences
	s.mu.Unlock()

	if err != nil {
		s.notify(ctx, "We couldn't read your last message. Please try again.")
	}
	return res, err
}

// Generate asks for a fresh candidate batch and starts triaging it. Only the
// readiness policy gates it, so a user may ask for another batch.
func (s *Session) Generate(ctx context.Context) ([]meal.Meal, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	s.mu.Lock()
	prefs, turns := s.prefs, s.transcript.UserTurns()
	s.mu.Unlock()

	if !s.cfg.Conversation.Policy()(prefs, turns) {
		return nil, ErrNotReady
	}

	meals, err := s.cfg.Generator.Generate(ctx, prefs)
	if err != nil {
		s.mu.Lock()
		s.transcript = s.transcript.Append(conversation.NewMessage(completion.RoleAssistant, conversation.KindText, GenerateFailedMessage))
		s.mu.Unlock()
		s.notify(ctx, "Meal generation failed. Please try again.")
		return nil, err
	}

	msg := conversation.NewMessage(completion.RoleAssistant, conversation.KindCandidateBatch, BatchMessage)
	msg.Meals = meals

	engine := triage.NewEngine(meals, triage.RecorderFunc(func(ctx context.Context, m meal.Meal, accepted bool) error {
		return s.cfg.Store.RecordDecision(ctx, s.userID, m, accepted)
	}), triage.Options{
		Notifier:     s.cfg.Notifier,
		WriteTimeout: s.cfg.WriteTimeout,
		Meter:        s.cfg.Meter,
	})

	s.mu.Lock()
	s.transcript = s.transcript.Append(msg)
	if s.triage != nil {
		s.retired = append(s.retired, s.triage)
	}
	s.retired = pending(s.retired)
	s.triage = engine
	s.mu.Unlock()

	return meals, nil
}

// Triage returns the current triage view.
func (s *Session) Triage() (triage.View, error) {
	s.mu.Lock()
	engine := s.triage
	s.mu.Unlock()
	if engine == nil {
		return triage.View{}, ErrNoTriage
	}
	return engine.View(), nil
}

// Decide accepts or rejects the presented candidate. When the batch is
// exhausted an action prompt is appended to the transcript.
func (s *Session) Decide(ctx context.Context, accept bool) (triage.View, error) {
	ctx, span := s.tracer.Start(ctx, "session.Decide", trace.WithAttributes(attribute.Bool("triage.accept", accept)))
	defer span.End()

	s.mu.Lock()
	engine := s.triage
	s.mu.Unlock()
	if engine == nil {
		return triage.View{}, ErrNoTriage
	}

	var v triage.View
	var err error
	if accept {
		v, err = engine.Accept(ctx)
	} else {
		v, err = engine.Reject(ctx)
	}
	if err != nil {
		return v, err
	}

	if v.State == triage.StateComplete {
		text := ScheduleMessage
		if len(v.Accepted) == 0 {
			text = NoneAcceptedMessage
		}
		s.mu.Lock()
		s.transcript = s.transcript.Append(conversation.NewMessage(completion.RoleAssistant, conversation.KindActionPrompt, text))
		s.mu.Unlock()
	}
	span.SetAttributes(attribute.String("triage.state", string(v.State)), attribute.Int("triage.accepted", len(v.Accepted)))
	return v, nil
}

// Accepted returns the meals accepted in the latest batch.
func (s *Session) Accepted() []meal.Meal {
	s.mu.Lock()
	engine := s.triage
	s.mu.Unlock()
	if engine == nil {
		return nil
	}
	return engine.Accepted()
}

func (s *Session) Transcript() conversation.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Append()
}

func (s *Session) Preferences() preference.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Ready reports the readiness signal for the current state.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Conversation.Ready(s.prefs, s.transcript)
}

func (s *Session) QuickResponses() []string {
	return append([]string(nil), conversation.QuickResponses...)
}

// Wait blocks until background decision writes finish.
func (s *Session) Wait() {
	s.mu.Lock()
	engines := append([]*triage.Engine(nil), s.retired...)
	if s.triage != nil {
		engines = append(engines, s.triage)
	}
	s.mu.Unlock()
	for _, e := range engines {
		e.Wait()
	}
}

// pending drops engines whose decision writes have all finished.
func pending(engines []*triage.Engine) []*triage.Engine {
	kept := engines[:0]
	for _, e := range engines {
		if e.Pending() > 0 {
			kept = append(kept, e)
		}
	}
	clear(engines[len(kept):])
	return kept
}

func (s *Session) writeFailed(ctx context.Context, op string, err error) error {
	err = fmt.Errorf("%w: %s: %v", mealchat.ErrPersistenceWriteFailed, op, err)
	slog.Error("SESSION: Persistence failed", "user_id", s.userID, "op", op, "error", err)
	s.notify(ctx, "We couldn't save your meal plan change. Please try again.")
	return err
}
