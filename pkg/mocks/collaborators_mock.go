package mocks

import (
	"context"

	"github.com/dukex/cadence/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockEntityStore is a mock implementation of protocol.EntityStore interface.
type MockEntityStore struct {
	mock.Mock
}

func (m *MockEntityStore) Create(ctx context.Context, entityType string, fields map[string]any) (*protocol.Entity, error) {
	args := m.Called(ctx, entityType, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.Entity), args.Error(1)
}

func (m *MockEntityStore) Update(ctx context.Context, id string, fields map[string]any) (*protocol.Entity, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.Entity), args.Error(1)
}

func (m *MockEntityStore) Get(ctx context.Context, id string) (*protocol.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.Entity), args.Error(1)
}

func (m *MockEntityStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockEntityStore) List(ctx context.Context, entityType string, filter map[string]any) ([]*protocol.Entity, error) {
	args := m.Called(ctx, entityType, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*protocol.Entity), args.Error(1)
}

// MockNotificationSender is a mock implementation of protocol.NotificationSender interface.
type MockNotificationSender struct {
	mock.Mock
}

func (m *MockNotificationSender) Send(ctx context.Context, notification protocol.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}
