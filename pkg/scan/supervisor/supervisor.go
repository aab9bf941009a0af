// Package supervisor runs a batch of independent scan tasks concurrently and lets the operator
// abandon a single task without touching the rest of the batch.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrTaskCancelled = errors.New("task cancelled")
	ErrTaskPanicked  = errors.New("task panicked")
)

type State int

const (
	Pending State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Finished reports whether s is a terminal state.
func (s State) Finished() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Task is one unit of work, usually the scan of one repository. Run must return promptly once ctx is done.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// TaskStatus is a snapshot of one handle.
type TaskStatus struct {
	ID    int
	Name  string
	State State
	Err   error
}

// Batch is the outcome of Run. Results holds completed tasks in completion order,
// Tasks every handle in submission order.
type Batch[T any] struct {
	Results     []T
	Tasks       []TaskStatus
	Interrupted bool
}

type handle[T any] struct {
	id     int
	name   string
	state  State
	err    error
	result T
	cancel context.CancelFunc
	done   chan struct{}
	// requested is set once the supervisor signalled the handle's token.
	requested bool
}

type ResultHook[T any] func(status TaskStatus, result T)

type Option[T any] func(*Supervisor[T])

// WithResultHook is called from the Run goroutine for every completed task, in completion order.
func WithResultHook[T any](hook ResultHook[T]) Option[T] {
	return func(s *Supervisor[T]) {
		s.onResult = hook
	}
}

// Supervisor owns the handle table of one batch. Run must not be called concurrently.
type Supervisor[T any] struct {
	pollInterval time.Duration
	onResult     ResultHook[T]

	mu       sync.Mutex
	handles  []*handle[T]
	finished []*handle[T]
}

func New[T any](pollInterval time.Duration, opts ...Option[T]) *Supervisor[T] {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	s := &Supervisor[T]{pollInterval: pollInterval}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run starts every task at once and blocks until all of them reached a terminal state.
// Each value received from skip cancels the first unfinished task in submission order and waits
// for it to unwind. Cancelling ctx cancels the whole batch; whatever completed before is still returned.
func (s *Supervisor[T]) Run(ctx context.Context, tasks []Task[T], skip <-chan struct{}) Batch[T] {
	s.mu.Lock()
	s.handles = make([]*handle[T], 0, len(tasks))
	s.finished = nil
	for i, task := range tasks {
		taskCtx, cancel := context.WithCancel(ctx)
		h := &handle[T]{id: i, name: task.Name, state: Pending, cancel: cancel, done: make(chan struct{})}
		s.handles = append(s.handles, h)
		go s.execute(taskCtx, h, task)
	}
	s.mu.Unlock()

	batch := Batch[T]{Results: []T{}}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.drain(&batch)
		if s.allFinished() {
			break
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Scan interrupted, cancelling all running tasks")
			s.cancelAll()
			s.waitAll()
			s.drain(&batch)
			batch.Interrupted = true
			batch.Tasks = s.Statuses()
			return batch
		case <-skip:
			s.skipOne()
		case <-ticker.C:
		}
	}

	batch.Interrupted = ctx.Err() != nil
	batch.Tasks = s.Statuses()
	return batch
}

func (s *Supervisor[T]) execute(ctx context.Context, h *handle[T], task Task[T]) {
	var result T
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
		s.finish(ctx, h, result, err)
	}()

	s.mu.Lock()
	h.state = Running
	s.mu.Unlock()

	result, err = task.Run(ctx)
}

func (s *Supervisor[T]) finish(ctx context.Context, h *handle[T], result T, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(h.done)
	defer h.cancel()

	switch {
	case err == nil:
		h.state = Completed
		h.result = result
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTaskCancelled)):
		h.state = Cancelled
		h.err = ErrTaskCancelled
	default:
		h.state = Failed
		h.err = err
	}
	s.finished = append(s.finished, h)
}

// drain moves finished handles into the batch in completion order.
func (s *Supervisor[T]) drain(batch *Batch[T]) {
	s.mu.Lock()
	finished := s.finished
	s.finished = nil
	total := len(s.handles)
	s.mu.Unlock()

	for _, h := range finished {
		status := TaskStatus{ID: h.id, Name: h.name, State: h.state, Err: h.err}
		switch h.state {
		case Completed:
			batch.Results = append(batch.Results, h.result)
			if s.onResult != nil {
				s.onResult(status, h.result)
			}
			log.Debug().Str("task", h.name).Int("done", s.doneCount()).Int("total", total).Msg("Task completed")
		case Cancelled:
			log.Info().Str("task", h.name).Msg("Task skipped")
		case Failed:
			log.Error().Err(h.err).Str("task", h.name).Msg("Task failed")
		}
	}
}

// skipOne cancels the first unfinished handle and waits until it unwound.
func (s *Supervisor[T]) skipOne() {
	s.mu.Lock()
	var target *handle[T]
	for _, h := range s.handles {
		if !h.state.Finished() && !h.requested {
			target = h
			break
		}
	}
	if target != nil {
		target.requested = true
		target.cancel()
	}
	s.mu.Unlock()

	if target == nil {
		log.Debug().Msg("Nothing left to skip")
		return
	}

	log.Info().Str("task", target.name).Msg("Skipping task")
	<-target.done
}

func (s *Supervisor[T]) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		h.requested = true
		h.cancel()
	}
}

func (s *Supervisor[T]) waitAll() {
	s.mu.Lock()
	handles := append([]*handle[T]{}, s.handles...)
	s.mu.Unlock()

	for _, h := range handles {
		<-h.done
	}
}

func (s *Supervisor[T]) allFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		if !h.state.Finished() {
			return false
		}
	}
	return len(s.finished) == 0
}

func (s *Supervisor[T]) doneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := 0
	for _, h := range s.handles {
		if h.state.Finished() {
			done++
		}
	}
	return done
}

// Progress returns how many tasks reached a terminal state. Safe to call from other goroutines.
func (s *Supervisor[T]) Progress() (done int, total int) {
	s.mu.Lock()
	total = len(s.handles)
	s.mu.Unlock()
	return s.doneCount(), total
}

// Statuses returns a snapshot of the handle table in submission order.
func (s *Supervisor[T]) Statuses() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]TaskStatus, 0, len(s.handles))
	for _, h := range s.handles {
		statuses = append(statuses, TaskStatus{ID: h.id, Name: h.name, State: h.state, Err: h.err})
	}
	return statuses
}
