package database

import (
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEventStore) GetAccountById(id uuid.UUID) (Account, error) {
	args := m.Called(id)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockEventStore) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockEventStore) GetEventById(id uuid.UUID) (Event, error) {
	args := m.Called(id)
	return args.Get(0).(Event), args.Error(1)
}

func (m *MockEventStore) GetRoundById(id uuid.UUID) (Round, error) {
	args := m.Called(id)
	return args.Get(0).(Round), args.Error(1)
}

func (m *MockEventStore) AttendeeExists(userId, eventId uuid.UUID) bool {
	args := m.Called(userId, eventId)
	return args.Bool(0)
}

func (m *MockEventStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
