package fiber

import (
	"sync"

	"github.com/danmuck/mantra/internal/term"
)

// mailbox is a multi-producer FIFO of whole messages.
type mailbox struct {
	mu    sync.Mutex
	queue [][]term.Term
}

func (m *mailbox) push(msg []term.Term) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
}

func (m *mailbox) drain() [][]term.Term {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queue
	m.queue = nil
	return out
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
