// Package triage walks a candidate batch one meal at a time. Each decision is
// persisted in the background and never holds up the next presentation.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mealchat"
	"mealchat/meal"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrComplete is returned for decisions made after the last candidate.
var ErrComplete = errors.New("triage complete")

const defaultWriteTimeout = 10 * time.Second

// Recorder persists a single decision.
type Recorder interface {
	Record(ctx context.Context, m meal.Meal, accepted bool) error
}

type RecorderFunc func(ctx context.Context, m meal.Meal, accepted bool) error

func (f RecorderFunc) Record(ctx context.Context, m meal.Meal, accepted bool) error {
	return f(ctx, m, accepted)
}

type State string

const (
	StatePresenting State = "presenting"
	StateComplete   State = "complete"
)

// View is a snapshot suitable for rendering.
type View struct {
	State    State       `json:"state"`
	Index    int         `json:"index"`
	Total    int         `json:"total"`
	Current  *meal.Meal  `json:"current,omitempty"`
	Accepted []meal.Meal `json:"accepted"`
}

type Options struct {
	// Notifier receives write failures. Nil means failures are only logged.
	Notifier     mealchat.Notifier
	WriteTimeout time.Duration
	Meter        metric.Meter
	// OnWriteFailure is called with every failed write, wrapped in mealchat.ErrPersistenceWriteFailed.
	OnWriteFailure func(m meal.Meal, err error)
}

type instruments struct {
	decisions     metric.Int64Counter
	writeFailures metric.Int64Counter
}

type Engine struct {
	mu       sync.Mutex
	batch    []meal.Meal
	index    int
	accepted []meal.Meal

	recorder Recorder
	notifier mealchat.Notifier
	onFail   func(meal.Meal, error)
	timeout  time.Duration
	inst     instruments
	writes   sync.WaitGroup
	pending  atomic.Int64
}

// NewEngine starts presenting batch[0]. An empty batch is complete immediately.
func NewEngine(batch []meal.Meal, recorder Recorder, opts Options) *Engine {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(mealchat.MeterName)
	}

	var inst instruments
	var err error
	if inst.decisions, err = meter.Int64Counter("triage_decisions_total",
		metric.WithDescription("Triage decisions by outcome")); err != nil {
		slog.Warn("TRIAGE: Failed to create decisions counter", "error", err)
	}
	if inst.writeFailures, err = meter.Int64Counter("triage_write_failures_total",
		metric.WithDescription("Failed background decision writes")); err != nil {
		slog.Warn("TRIAGE: Failed to create write failure counter", "error", err)
	}

	return &Engine{
		batch:    append([]meal.Meal(nil), batch...),
		accepted: make([]meal.Meal, 0, len(batch)),
		recorder: recorder,
		notifier: opts.Notifier,
		onFail:   opts.OnWriteFailure,
		timeout:  opts.WriteTimeout,
		inst:     inst,
	}
}

func (e *Engine) state() State {
	if e.index >= len(e.batch) {
		return StateComplete
	}
	return StatePresenting
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state()
}

// Current returns the meal being presented.
func (e *Engine) Current() (meal.Meal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state() == StateComplete {
		return meal.Meal{}, false
	}
	return e.batch[e.index], true
}

func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view()
}

func (e *Engine) view() View {
	v := View{
		State:    e.state(),
		Index:    e.index,
		Total:    len(e.batch),
		Accepted: append([]meal.Meal{}, e.accepted...),
	}
	if v.State == StatePresenting {
		m := e.batch[e.index]
		v.Current = &m
	}
	return v
}

// Accepted returns the accepted meals in decision order.
func (e *Engine) Accepted() []meal.Meal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]meal.Meal{}, e.accepted...)
}

func (e *Engine) Accept(ctx context.Context) (View, error) {
	return e.decide(ctx, true)
}

func (e *Engine) Reject(ctx context.Context) (View, error) {
	return e.decide(ctx, false)
}

func (e *Engine) decide(ctx context.Context, accepted bool) (View, error) {
	e.mu.Lock()
	if e.state() == StateComplete {
		v := e.view()
		e.mu.Unlock()
		return v, ErrComplete
	}
	m := e.batch[e.index]
	if accepted {
		e.accepted = append(e.accepted, m)
	}
	e.index++
	v := e.view()
	e.mu.Unlock()

	if e.inst.decisions != nil {
		e.inst.decisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", accepted)))
	}
	slog.Info("TRIAGE: Decision", "meal_id", m.ID, "accepted", accepted, "index", v.Index, "state", v.State)

	e.record(ctx, m, accepted)
	return v, nil
}

// record writes the decision in the background. The write outlives ctx
// cancellation but is bounded by the write timeout.
func (e *Engine) record(ctx context.Context, m meal.Meal, accepted bool) {
	if e.recorder == nil {
		return
	}
	e.writes.Add(1)
	e.pending.Add(1)
	go func() {
		defer e.writes.Done()
		defer e.pending.Add(-1)

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		err := e.recorder.Record(wctx, m, accepted)
		if err == nil {
			return
		}
		err = fmt.Errorf("%w: record decision for %s: %v", mealchat.ErrPersistenceWriteFailed, m.ID, err)
		slog.Error("TRIAGE: Decision write failed", "meal_id", m.ID, "error", err)
		if e.inst.writeFailures != nil {
			e.inst.writeFailures.Add(wctx, 1)
		}
		if e.onFail != nil {
			e.onFail(m, err)
		}
		if e.notifier != nil {
			if nerr := e.notifier.Notify(wctx, fmt.Sprintf("Couldn't save your choice for %s. It still counts for this session.", m.Name)); nerr != nil {
				slog.Warn("TRIAGE: Notification failed", "error", nerr)
			}
		}
	}()
}

// Pending reports how many decision writes are still running.
func (e *Engine) Pending() int {
	return int(e.pending.Load())
}

// Wait blocks until every background write has finished. Used at shutdown and in tests.
func (e *Engine) Wait() {
	e.writes.Wait()
}
