package crawler

import (
	"sync"

	"github.com/alvmarrod/domain-crawler/internal/storage"
)

// Frontier implements a thread-safe FIFO of crawl tasks.
// A task handed out by Pop stays in flight until Done is called; while any
// task is in flight an empty frontier is not yet drained, since the worker
// holding it may still push children.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []storage.CrawlTask
	capacity int
	inFlight int
	stopped  bool
}

// NewFrontier creates a new frontier. A capacity of 0 means unbounded.
func NewFrontier(capacity int) *Frontier {
	f := &Frontier{
		items:    make([]storage.CrawlTask, 0),
		capacity: capacity,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push appends a task to the tail of the frontier.
// Returns false if the frontier is stopped or full; the task is not queued.
func (f *Frontier) Push(task storage.CrawlTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return false
	}
	if f.capacity > 0 && len(f.items) >= f.capacity {
		return false
	}

	f.items = append(f.items, task)

	// Signal one waiting worker
	f.cond.Signal()
	return true
}

// Pop removes and returns the head of the frontier, blocking while the
// frontier is empty and other tasks are still in flight.
// Returns (task, true) on success, (empty, false) once drained or stopped.
func (f *Frontier) Pop() (storage.CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.stopped {
			return storage.CrawlTask{}, false
		}

		if len(f.items) > 0 {
			task := f.items[0]
			f.items[0] = storage.CrawlTask{}
			f.items = f.items[1:]
			f.inFlight++
			return task, true
		}

		// Empty with nothing in flight: no one can push again
		if f.inFlight == 0 {
			f.cond.Broadcast()
			return storage.CrawlTask{}, false
		}

		f.cond.Wait()
	}
}

// Done marks a task returned by Pop as finished
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	if f.inFlight == 0 && len(f.items) == 0 {
		// Wake every waiter so they observe the drained state
		f.cond.Broadcast()
	}
}

// Stop stops dispatching. Waiting and future Pop calls return false and
// Push refuses new tasks; queued tasks stay available through Pending.
func (f *Frontier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	f.cond.Broadcast()
}

// Stopped reports whether Stop has been called
func (f *Frontier) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Len returns the number of queued tasks
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// InFlight returns the number of popped tasks not yet marked done
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Pending returns a snapshot of the tasks that were never dispatched
func (f *Frontier) Pending() []storage.CrawlTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	tasks := make([]storage.CrawlTask, len(f.items))
	copy(tasks, f.items)
	return tasks
}
