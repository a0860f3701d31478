// Package orchestrator sequences one query through retrieval, grading and
// generation, and emits the resulting stream events.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/model"
)

// State is one node of the closed per-query state machine.
type State string

const (
	StateRetrieving         State = "RETRIEVING"
	StateGrading            State = "GRADING"
	StateGeneratingGrounded State = "GENERATING_GROUNDED"
	StateGeneratingFallback State = "GENERATING_FALLBACK"
	StateDone               State = "DONE"
	StateError              State = "ERROR"
	StateCancelled          State = "CANCELLED"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]model.ScoredChunk, error)
}

type Grader interface {
	GradeAll(ctx context.Context, query string, hits []model.ScoredChunk) []model.GradedChunk
}

type Generator interface {
	Stream(ctx context.Context, req model.GenerationRequest) (<-chan model.Token, error)
}

type Orchestrator struct {
	retriever Retriever
	grader    Grader
	generator Generator
	log       *logger.Logger
}

func New(retriever Retriever, grader Grader, generator Generator, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		grader:    grader,
		generator: generator,
		log:       log.With("component", "orchestrator"),
	}
}

// Run is the working record of one in-flight query. It is created per query
// and discarded when the stream ends or is cancelled.
type Run struct {
	events chan model.StreamEvent

	mu       sync.Mutex
	state    State
	trace    []State
	grounded bool
	answer   strings.Builder
}

// Events yields the run's stream in strict generation order. The channel is
// closed after the terminal event, or without one if the run was cancelled.
func (r *Run) Events() <-chan model.StreamEvent { return r.events }

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Trace returns every state the run has passed through, in order.
func (r *Run) Trace() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.trace))
	copy(out, r.trace)
	return out
}

// Grounded reports whether the answer was generated from retrieved context.
func (r *Run) Grounded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grounded
}

// Answer returns the text accumulated so far.
func (r *Run) Answer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answer.String()
}

func (r *Run) to(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.trace = append(r.trace, s)
}

func (r *Run) setGrounded(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grounded = v
}

func (r *Run) append(delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answer.WriteString(delta)
}

// Start launches one query. Cancelling ctx aborts in-flight model calls and
// stops the event stream without a terminal event.
func (o *Orchestrator) Start(ctx context.Context, query string, history []model.Turn) *Run {
	r := &Run{events: make(chan model.StreamEvent)}
	go o.drive(ctx, r, query, history)
	return r
}

func (o *Orchestrator) drive(ctx context.Context, r *Run, query string, history []model.Turn) {
	defer close(r.events)

	emit := func(ev model.StreamEvent) bool {
		if ctx.Err() != nil {
			r.to(StateCancelled)
			return false
		}
		select {
		case r.events <- ev:
			return true
		case <-ctx.Done():
			r.to(StateCancelled)
			return false
		}
	}

	r.to(StateRetrieving)
	if !emit(model.StreamEvent{Type: model.EventStatus, Content: "Thinking..."}) {
		return
	}

	hits, err := o.retriever.Retrieve(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			r.to(StateCancelled)
			return
		}
		o.log.Error("retrieval failed", "err", err)
		r.to(StateError)
		emit(model.StreamEvent{Type: model.EventError, Reason: model.ReasonRetrievalUnavailable})
		return
	}

	r.to(StateGrading)
	graded := o.grader.GradeAll(ctx, query, hits)
	if ctx.Err() != nil {
		r.to(StateCancelled)
		return
	}

	var relevant []model.Chunk
	for _, g := range graded {
		if g.Relevant {
			relevant = append(relevant, g.Chunk)
		}
	}

	req := model.GenerationRequest{Query: query, History: history}
	if len(relevant) > 0 {
		r.to(StateGeneratingGrounded)
		r.setGrounded(true)
		req.Grounded = true
		req.Context = relevant
	} else {
		r.to(StateGeneratingFallback)
	}
	o.log.Debug("generating answer",
		"grounded", req.Grounded, "candidates", len(graded), "relevant", len(relevant))

	tokens, err := o.generator.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			r.to(StateCancelled)
			return
		}
		o.log.Error("generation failed to start", "err", err)
		r.to(StateError)
		emit(model.StreamEvent{Type: model.EventError, Reason: model.ReasonGenerationFailed})
		return
	}

	for tok := range tokens {
		if tok.Err != nil {
			o.log.Error("generation failed mid-stream", "err", tok.Err)
			r.to(StateError)
			emit(model.StreamEvent{Type: model.EventError, Reason: model.ReasonGenerationFailed})
			return
		}
		r.append(tok.Content)
		if !emit(model.StreamEvent{Type: model.EventChunk, Content: tok.Content}) {
			return
		}
	}
	if ctx.Err() != nil {
		r.to(StateCancelled)
		return
	}

	r.to(StateDone)
	emit(model.StreamEvent{Type: model.EventEnd})
}
