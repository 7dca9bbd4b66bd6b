package storage

import (
	"context"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

// GetSchedule implements the Storage interface
func (m *MockStorage) GetSchedule(ctx context.Context, userID, scheduleID string) (*Schedule, error) {
	args := m.Called(userID, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	sched := args.Get(0).(*Schedule)
	if sched == nil {
		return nil, args.Error(1)
	}
	return sched.Clone(), args.Error(1)
}

// ListSchedules implements the Storage interface
func (m *MockStorage) ListSchedules(ctx context.Context, userID string) ([]*Schedule, error) {
	args := m.Called(userID)
	return args.Get(0).([]*Schedule), args.Error(1)
}

// ListAllSchedules implements the Storage interface
func (m *MockStorage) ListAllSchedules(ctx context.Context) ([]*Schedule, error) {
	args := m.Called()
	return args.Get(0).([]*Schedule), args.Error(1)
}

// PutSchedule implements the Storage interface
func (m *MockStorage) PutSchedule(ctx context.Context, sched *Schedule, opts PutOptions) (string, error) {
	args := m.Called(sched, opts)
	return args.String(0), args.Error(1)
}

// DeleteSchedule implements the Storage interface
func (m *MockStorage) DeleteSchedule(ctx context.Context, userID, scheduleID, ifMatch string) error {
	args := m.Called(userID, scheduleID, ifMatch)
	return args.Error(0)
}

// --- Helper methods for creating test data ---

// NewMockSchedule creates a test Schedule holding cfg
func NewMockSchedule(userID, id, name string, cfg recurrence.Config) *Schedule {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Schedule{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Config:   cfg,
		ETag:     `"etag-` + id + `-1"`,
		Created:  created,
		Modified: created,
	}
}

// --- Convenience methods for setting up common test scenarios ---

// SetupSchedules makes the mock serve the given schedules of one user
func (m *MockStorage) SetupSchedules(userID string, schedules ...*Schedule) {
	m.ExpectedCalls = removeMatchingCalls(m.ExpectedCalls, "ListSchedules", userID)
	m.On("ListSchedules", userID).Return(schedules, nil)

	for _, sched := range schedules {
		m.On("GetSchedule", userID, sched.ID).Return(sched, nil)
	}
}

// SetupMissing makes GetSchedule report scheduleID as not found
func (m *MockStorage) SetupMissing(userID, scheduleID string) {
	m.On("GetSchedule", userID, scheduleID).Return(nil, &Error{
		Type:    ErrNotFound,
		Message: "schedule not found",
	})
}

// Helper to remove existing mock calls that match a method and first argument
func removeMatchingCalls(calls []*mock.Call, method string, firstArg interface{}) []*mock.Call {
	result := make([]*mock.Call, 0, len(calls))
	for _, call := range calls {
		if call.Method == method && len(call.Arguments) > 0 && call.Arguments[0] == firstArg {
			continue
		}
		result = append(result, call)
	}
	return result
}
