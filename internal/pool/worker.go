package pool

import (
	"sync"

	"github.com/danmuck/mantra/internal/fiber"
)

type worker struct {
	id int
	// dirty flag; a full buffer means a pass is already pending
	wake chan struct{}

	mu     sync.Mutex
	fibers []*fiber.Fiber
}

func newWorker(id int) *worker {
	return &worker{id: id, wake: make(chan struct{}, 1)}
}

func (w *worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) add(f *fiber.Fiber) {
	w.mu.Lock()
	w.fibers = append(w.fibers, f)
	w.mu.Unlock()
}

func (w *worker) owned() []*fiber.Fiber {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*fiber.Fiber(nil), w.fibers...)
}
