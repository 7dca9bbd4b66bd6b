package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/samber/mo"
)

// Storage interface connects your backend storage (e.g. database) with this server. Please use the error types provided.
type Storage interface {
	// GetSchedule finds a schedule by user id and schedule id.
	GetSchedule(ctx context.Context, userID, scheduleID string) (*Schedule, error)
	// ListSchedules retrieves all schedules owned by a user.
	ListSchedules(ctx context.Context, userID string) ([]*Schedule, error)
	// ListAllSchedules retrieves every stored schedule. Used by the sweeper.
	ListAllSchedules(ctx context.Context) ([]*Schedule, error)
	// PutSchedule creates or replaces a schedule and returns its new ETag.
	// Implementations must honor opts atomically and set ETag, Created and Modified.
	PutSchedule(ctx context.Context, sched *Schedule, opts PutOptions) (etag string, err error)
	// DeleteSchedule removes a schedule. A non-empty ifMatch must equal the current ETag.
	DeleteSchedule(ctx context.Context, userID, scheduleID, ifMatch string) error
}

// Schedule is a named recurrence configuration owned by a user
type Schedule struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`

	Config recurrence.Config `json:"config"`

	// ETag changes whenever any other field changes.
	// Generating etag is the backend's responsibility.
	ETag     string    `json:"etag"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	// LastScheduled is the newest occurrence already handed to the job-creation side
	LastScheduled mo.Option[time.Time] `json:"lastScheduled"`
	// PreviousOpen reports that the newest handed-off instance is not complete yet
	PreviousOpen bool `json:"previousOpen"`
}

// Clone returns a deep copy of s
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	c := *s
	c.Config = recurrence.Update(s.Config, recurrence.Patch{})
	return &c
}

// PutOptions carries the preconditions of a PutSchedule call
type PutOptions struct {
	// IfMatch requires the stored ETag to equal this value
	IfMatch string
	// IfNoneMatch requires that no schedule with this ID exists yet
	IfNoneMatch bool
}

// Error types
type ErrorType string

const (
	ErrNotFound           ErrorType = "not_found"
	ErrAlreadyExists      ErrorType = "already_exists"
	ErrInvalidInput       ErrorType = "invalid_input"
	ErrPreconditionFailed ErrorType = "precondition_failed"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err is a storage *Error of type t
func IsType(err error, t ErrorType) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Type == t
}
