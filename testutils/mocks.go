package testutils

import (
	"github.com/stretchr/testify/mock"
)

type MockFailureTracker struct {
	mock.Mock
}

func (m *MockFailureTracker) TrackAuthFailure(identifier, email string) {
	m.Called(identifier, email)
}

func (m *MockFailureTracker) ResetAuthFailures(identifier, email string) {
	m.Called(identifier, email)
}
