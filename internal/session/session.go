// Package session owns one client connection's query lifecycle: at most one
// orchestrator run at a time, relayed in order, cancelled on supersede or
// connection loss.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/model"
	"github.com/avezek/docuchat/internal/orchestrator"
)

// HistoryStore supplies prior turns and persists new ones. The session treats
// history as read-only context; persistence failures never fail a query.
type HistoryStore interface {
	Turns(ctx context.Context, conversationID string) ([]model.Turn, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) error
}

// Session is created on connect and destroyed on disconnect. It holds no
// state that must survive a reconnect beyond the conversation id it is bound
// to.
type Session struct {
	id     uuid.UUID
	convID string
	orch   *orchestrator.Orchestrator
	// history may be nil when the service runs without persistence.
	history HistoryStore
	send    func(model.StreamEvent) error
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(conversationID string, orch *orchestrator.Orchestrator, history HistoryStore, send func(model.StreamEvent) error, log *logger.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		convID:  conversationID,
		orch:    orch,
		history: history,
		send:    send,
		log:     log.With("component", "session", "session_id", id.String()),
	}
}

// HandleQuery supersedes any in-flight run: the old run is cancelled and its
// relay drained to silence before the new run's first event can reach the
// client. Returns once the new run is launched; relaying happens in the
// background.
func (s *Session) HandleQuery(ctx context.Context, query string) {
	s.interrupt()

	turns := s.loadTurns(ctx)
	s.persist(ctx, "user", query)

	runCtx, cancel := context.WithCancel(ctx)
	run := s.orch.Start(runCtx, query, turns)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.relay(runCtx, cancel, run, done)
}

// Close tears down the in-flight run, if any, and waits until it is silent.
// Called on client cancel or connection loss.
func (s *Session) Close() {
	s.interrupt()
}

// interrupt cancels the active run and blocks until its relay has exited, so
// a superseded run can never interleave events with its successor.
func (s *Session) interrupt() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Session) relay(ctx context.Context, cancel context.CancelFunc, run *orchestrator.Run, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-run.Events():
			if !ok {
				if run.State() == orchestrator.StateDone {
					s.persist(ctx, "assistant", run.Answer())
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			if err := s.send(ev); err != nil {
				s.log.Warn("send failed, tearing down run", "err", err)
				cancel()
				return
			}
		}
	}
}

func (s *Session) loadTurns(ctx context.Context) []model.Turn {
	if s.history == nil {
		return nil
	}
	turns, err := s.history.Turns(ctx, s.convID)
	if err != nil {
		s.log.Warn("loading history failed", "conversation_id", s.convID, "err", err)
		return nil
	}
	return turns
}

func (s *Session) persist(ctx context.Context, role, content string) {
	if s.history == nil || content == "" {
		return
	}
	if err := s.history.AppendMessage(ctx, s.convID, role, content); err != nil {
		s.log.Warn("persisting message failed",
			"conversation_id", s.convID, "role", role, "err", err)
	}
}
