package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/makeasinger/ttsstream/internal/metrics"
)

// Hub maintains active WebSocket sessions
type Hub struct {
	sessions map[string]*Session

	// Register requests
	register chan *Session

	// Unregister requests
	unregister chan *Session

	quit     chan struct{}
	quitOnce sync.Once

	runner   JobRunner
	validate *validator.Validate
	opts     SessionOptions
	metrics  *metrics.Metrics

	// parent of every job context; canceled when the hub shuts down
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(runner JobRunner, validate *validator.Validate, opts SessionOptions, m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		quit:       make(chan struct{}),
		runner:     runner,
		validate:   validate,
		opts:       opts,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop. It returns after Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s.ID()] = s
			h.mu.Unlock()
			h.metrics.SessionOpened(context.Background())
			log.Printf("Session %s registered", s.ID())

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s.ID()]; ok {
				delete(h.sessions, s.ID())
				h.metrics.SessionClosed(context.Background())
			}
			h.mu.Unlock()
			log.Printf("Session %s unregistered", s.ID())

		case <-h.quit:
			return
		}
	}
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleConnection serves one WebSocket connection until it closes.
func (h *Hub) HandleConnection(conn Conn) {
	s := NewSession(h.ctx, uuid.New().String(), conn, h.runner, h.validate, h.opts)

	select {
	case h.register <- s:
	case <-h.quit:
		_ = conn.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- s:
		case <-h.quit:
		}
	}()

	s.Serve()
}

// Shutdown closes every session and waits for their jobs until ctx expires,
// then cancels whatever is still running.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.quitOnce.Do(func() { close(h.quit) })

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.Wait()
		}
		close(done)
	}()

	defer h.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		log.Printf("Hub shutdown: canceling jobs still running")
		return ctx.Err()
	}
}
