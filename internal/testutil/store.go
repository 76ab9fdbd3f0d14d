package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/stride/internal/activity"
)

// MemoryStore is an in-memory activity.Store with injectable failures.
type MemoryStore struct {
	mu   sync.Mutex
	acts []activity.Activity

	// AppendErr, ListErr and DeleteErr are returned by the matching method
	// when set.
	AppendErr error
	ListErr   error
	DeleteErr error
}

var _ activity.Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding copies of acts.
func NewMemoryStore(acts ...activity.Activity) *MemoryStore {
	s := &MemoryStore{}
	for _, a := range acts {
		s.acts = append(s.acts, a.Clone())
	}
	return s
}

// SetAppendErr changes the append failure while the store is in use.
func (s *MemoryStore) SetAppendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendErr = err
}

func (s *MemoryStore) AppendActivity(_ context.Context, a activity.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	for _, existing := range s.acts {
		if existing.ID == a.ID {
			return &activity.PersistenceError{Op: "append", ID: a.ID, Err: fmt.Errorf("duplicate id")}
		}
	}
	s.acts = append(s.acts, a.Clone())
	return nil
}

func (s *MemoryStore) ListActivities(context.Context) ([]activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]activity.Activity, len(s.acts))
	for i, a := range s.acts {
		out[i] = a.Clone()
	}
	return out, nil
}

func (s *MemoryStore) GetActivity(_ context.Context, id string) (activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.acts {
		if a.ID == id {
			return a.Clone(), nil
		}
	}
	return activity.Activity{}, fmt.Errorf("%w: %s", activity.ErrNotFound, id)
}

func (s *MemoryStore) DeleteActivity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	for i, a := range s.acts {
		if a.ID == id {
			s.acts = append(s.acts[:i], s.acts[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored activities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acts)
}
