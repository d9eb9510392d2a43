package websocket

import (
	"sync"

	"github.com/makeasinger/ttsstream/internal/job"
	"github.com/makeasinger/ttsstream/internal/model"
)

// Router funnels every outbound message for one session into a single
// ordered queue. Any goroutine may send; only the session's writer drains it.
// Messages from one sender keep their order.
type Router struct {
	out  chan any
	done chan struct{}
	once sync.Once
}

func NewRouter(buffer int) *Router {
	if buffer < 0 {
		buffer = 0
	}
	return &Router{
		out:  make(chan any, buffer),
		done: make(chan struct{}),
	}
}

// Send queues msg, blocking while the queue is full. It returns false, and
// drops msg, once the router is closed.
func (r *Router) Send(msg any) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.out <- msg:
		return true
	case <-r.done:
		return false
	}
}

// Messages is the drain side. It is never closed; watch Done instead.
func (r *Router) Messages() <-chan any { return r.out }

func (r *Router) Done() <-chan struct{} { return r.done }

// Close stops accepting messages. Safe to call more than once.
func (r *Router) Close() {
	r.once.Do(func() { close(r.done) })
}

// Emit converts a job event to its wire message and queues it.
func (r *Router) Emit(e job.Event) bool {
	switch e.Kind {
	case job.EventProgress:
		return r.Send(model.WSProgressMessage{
			Type:     model.WSMessageTypeProgress,
			JobID:    e.JobID,
			Fraction: e.Fraction,
			Message:  e.Message,
		})
	case job.EventComplete:
		return r.Send(model.WSCompleteMessage{
			Type:               model.WSMessageTypeComplete,
			JobID:              e.JobID,
			ArtifactName:       e.ArtifactName,
			RetrievalReference: e.Reference,
		})
	case job.EventError:
		return r.Send(model.WSErrorMessage{
			Type:    model.WSMessageTypeError,
			JobID:   e.JobID,
			Code:    e.Code,
			Message: e.Message,
		})
	}
	return false
}
