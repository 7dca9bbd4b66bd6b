// memory based implementation for testing purposes
package memory

import (
	"cmp"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cyp0633/librecur/server/storage"
)

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu        sync.RWMutex
	schedules map[string]*storage.Schedule // key: userID/scheduleID

	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock Created and Modified are taken from
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		schedules: make(map[string]*storage.Schedule),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) scheduleKey(userID, scheduleID string) string {
	return fmt.Sprintf("%s/%s", userID, scheduleID)
}

// generateETag hashes every field but the ETag itself
func generateETag(sched *storage.Schedule) (string, error) {
	c := *sched
	c.ETag = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", err
	}
	hash := sha1.Sum(data)
	return `"` + hex.EncodeToString(hash[:]) + `"`, nil
}

func sortSchedules(schedules []*storage.Schedule) {
	slices.SortFunc(schedules, func(a, b *storage.Schedule) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (s *Store) GetSchedule(_ context.Context, userID, scheduleID string) (*storage.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[s.scheduleKey(userID, scheduleID)]
	if !ok {
		return nil, &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "schedule not found",
		}
	}

	return sched.Clone(), nil
}

func (s *Store) ListSchedules(_ context.Context, userID string) ([]*storage.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := []*storage.Schedule{}
	for _, sched := range s.schedules {
		if sched.UserID == userID {
			schedules = append(schedules, sched.Clone())
		}
	}
	sortSchedules(schedules)

	return schedules, nil
}

func (s *Store) ListAllSchedules(_ context.Context) ([]*storage.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]*storage.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		schedules = append(schedules, sched.Clone())
	}
	sortSchedules(schedules)

	return schedules, nil
}

func (s *Store) PutSchedule(_ context.Context, sched *storage.Schedule, opts storage.PutOptions) (string, error) {
	if sched == nil || sched.ID == "" || sched.UserID == "" {
		return "", &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "schedule needs an id and a user id",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.scheduleKey(sched.UserID, sched.ID)
	existing, exists := s.schedules[key]
	if exists && opts.IfNoneMatch {
		return "", &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "schedule already exists",
		}
	}
	if opts.IfMatch != "" && (!exists || existing.ETag != opts.IfMatch) {
		return "", &storage.Error{
			Type:    storage.ErrPreconditionFailed,
			Message: "etag mismatch",
		}
	}

	stored := sched.Clone()
	now := s.now()
	stored.Created = now
	if exists {
		stored.Created = existing.Created
	}
	stored.Modified = now

	etag, err := generateETag(stored)
	if err != nil {
		return "", &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "failed to hash schedule",
			Err:     err,
		}
	}
	stored.ETag = etag
	s.schedules[key] = stored

	sched.Created = stored.Created
	sched.Modified = stored.Modified
	sched.ETag = etag
	return etag, nil
}

func (s *Store) DeleteSchedule(_ context.Context, userID, scheduleID, ifMatch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.scheduleKey(userID, scheduleID)
	existing, exists := s.schedules[key]
	if !exists {
		return &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "schedule not found",
		}
	}
	if ifMatch != "" && existing.ETag != ifMatch {
		return &storage.Error{
			Type:    storage.ErrPreconditionFailed,
			Message: "etag mismatch",
		}
	}

	delete(s.schedules, key)
	return nil
}
