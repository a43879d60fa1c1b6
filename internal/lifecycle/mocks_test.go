package lifecycle_test

import (
	"opscheck/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateViolation(v *models.Violation) error {
	args := m.Called(v)
	return args.Error(0)
}

func (m *MockStorage) GetViolationByID(id string) (*models.Violation, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Violation), args.Error(1)
}

func (m *MockStorage) CommitStatus(id string, from, to models.Status, fields map[string]interface{}) (bool, error) {
	args := m.Called(id, from, to, fields)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) ForceResolve(id string, fields map[string]interface{}) (bool, error) {
	args := m.Called(id, fields)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) AppendEvent(event *models.ViolationEvent, payload map[string]string) error {
	args := m.Called(event, payload)
	return args.Error(0)
}

func (m *MockStorage) GetEventsForViolation(violationID string) ([]models.ViolationEvent, error) {
	args := m.Called(violationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ViolationEvent), args.Error(1)
}

func (m *MockStorage) GetMemberRoles(orgID, actorID string) ([]string, error) {
	args := m.Called(orgID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockAuthority struct {
	mock.Mock
}

func (m *MockAuthority) HasAnyRole(orgID, actorID string, roles ...string) (bool, error) {
	args := m.Called(orgID, actorID, roles)
	return args.Bool(0), args.Error(1)
}
