package engine

import (
	"sync"

	"github.com/chaz8081/saycheese/internal/transcribe"
)

type eventKind int

const (
	evStatus eventKind = iota
	evHypothesis
)

type event struct {
	kind    eventKind
	session uint64
	status  Status
	hyp     transcribe.Hypothesis
}

// queue is an unbounded FIFO so producers never block on the dispatcher.
type queue struct {
	mu     sync.Mutex
	items  []event
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(e event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
