// Package jobs tracks background work (builds and artifact extractions)
// through the idle -> running -> succeeded | failed state machine.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

var (
	ErrNotFound          = errors.New("jobs: job not found")
	ErrInvalidTransition = errors.New("jobs: invalid state transition")
)

// DefaultCapacity bounds how many jobs a Store retains.
const DefaultCapacity = 256

// Job is a snapshot of one unit of background work.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target,omitempty"`
	State      State     `json:"state"`
	Stage      string    `json:"stage,omitempty"`
	Text       string    `json:"text,omitempty"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	Created    time.Time `json:"created"`
	Started    time.Time `json:"started,omitempty"`
	Finished   time.Time `json:"finished,omitempty"`
}

// Filter selects jobs in List. Zero fields match everything.
type Filter struct {
	Kind      string
	State     State
	PageSize  int
	PageToken string // ID of the last job of the previous page
}

// Page is one page of List results.
type Page struct {
	Jobs          []Job
	TotalSize     int
	NextPageToken string
}

type entry struct {
	job  Job
	done chan struct{}
}

// Store is a concurrency-safe in-memory job store. Jobs are kept in a map
// keyed by ID with a separate slice maintaining creation order. When the
// store grows past its capacity the oldest finished jobs are dropped.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*entry
	orderIDs []string
	capacity int
	now      func() time.Time
}

// NewStore returns an empty Store retaining up to capacity jobs
// (DefaultCapacity when capacity <= 0).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		jobs:     make(map[string]*entry),
		capacity: capacity,
		now:      time.Now,
	}
}

// Create records a new idle job.
func (s *Store) Create(kind, target string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := Job{
		ID:      uuid.NewString(),
		Kind:    kind,
		Target:  target,
		State:   StateIdle,
		Created: s.now(),
	}
	s.jobs[j.ID] = &entry{job: j, done: make(chan struct{})}
	s.orderIDs = append(s.orderIDs, j.ID)
	s.prune()
	return j
}

// Get returns a snapshot of the job with the given ID.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return e.job, nil
}

// Start moves an idle job to running.
func (s *Store) Start(id string) error {
	return s.transition(id, func(j *Job) error {
		if j.State != StateIdle {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, StateRunning)
		}
		j.State = StateRunning
		j.Started = s.now()
		return nil
	})
}

// SetStage records progress text on a running job.
func (s *Store) SetStage(id, stage string) error {
	return s.transition(id, func(j *Job) error {
		if j.State != StateRunning {
			return fmt.Errorf("%w: stage update on %s job", ErrInvalidTransition, j.State)
		}
		j.Stage = stage
		return nil
	})
}

// Succeed finishes a running job with its output text.
func (s *Store) Succeed(id, text string) error {
	return s.transition(id, func(j *Job) error {
		if j.State != StateRunning {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, StateSucceeded)
		}
		j.State = StateSucceeded
		j.Text = text
		j.Finished = s.now()
		return nil
	})
}

// Fail finishes an idle or running job. The diagnostic is never left empty.
func (s *Store) Fail(id, diagnostic string) error {
	return s.transition(id, func(j *Job) error {
		if j.State.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, StateFailed)
		}
		if diagnostic == "" {
			diagnostic = "job failed without a diagnostic"
		}
		j.State = StateFailed
		j.Diagnostic = diagnostic
		j.Finished = s.now()
		return nil
	})
}

func (s *Store) transition(id string, fn func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err := fn(&e.job); err != nil {
		return err
	}
	if e.job.State.Terminal() {
		close(e.done)
	}
	return nil
}

// Wait blocks until the job reaches a terminal state or ctx is done.
func (s *Store) Wait(ctx context.Context, id string) (Job, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return e.job, nil
}

// List returns jobs matching filter in creation order. PageToken is the ID
// of the last job already seen; PageSize <= 0 returns everything.
func (s *Store) List(filter Filter) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startIdx := 0
	if filter.PageToken != "" {
		found := false
		for i, id := range s.orderIDs {
			if id == filter.PageToken {
				startIdx = i + 1
				found = true
				break
			}
		}
		if !found {
			return Page{}, fmt.Errorf("jobs: invalid page token %q", filter.PageToken)
		}
	}

	total := 0
	matched := []Job{}
	for i, id := range s.orderIDs {
		j := s.jobs[id].job
		if !matches(j, filter) {
			continue
		}
		total++
		if i >= startIdx {
			matched = append(matched, j)
		}
	}

	var next string
	if filter.PageSize > 0 && len(matched) > filter.PageSize {
		next = matched[filter.PageSize-1].ID
		matched = matched[:filter.PageSize]
	}
	return Page{Jobs: matched, TotalSize: total, NextPageToken: next}, nil
}

func matches(j Job, f Filter) bool {
	if f.Kind != "" && j.Kind != f.Kind {
		return false
	}
	if f.State != "" && j.State != f.State {
		return false
	}
	return true
}

// prune drops the oldest finished jobs until the store fits its capacity.
// Running jobs are never dropped. Callers hold s.mu.
func (s *Store) prune() {
	excess := len(s.orderIDs) - s.capacity
	if excess <= 0 {
		return
	}
	kept := s.orderIDs[:0]
	for _, id := range s.orderIDs {
		if excess > 0 && s.jobs[id].job.State.Terminal() {
			delete(s.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.orderIDs = kept
}
