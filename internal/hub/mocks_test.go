package hub_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/protocol"
)

// MockStorage mocks the hub.Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) PersistShape(ctx context.Context, projectID string, userID int64, shape protocol.Shape) error {
	args := m.Called(ctx, projectID, userID, shape)
	return args.Error(0)
}

func (m *MockStorage) DeletePersistedShape(ctx context.Context, projectID, shapeID string) error {
	args := m.Called(ctx, projectID, shapeID)
	return args.Error(0)
}

func (m *MockStorage) LoadShapes(ctx context.Context, projectID string) ([]protocol.Shape, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]protocol.Shape), args.Error(1)
}

func (m *MockStorage) SaveComment(ctx context.Context, comment *model.Comment) error {
	args := m.Called(ctx, comment)
	return args.Error(0)
}

func (m *MockStorage) SaveVersion(ctx context.Context, version *model.Version) error {
	args := m.Called(ctx, version)
	return args.Error(0)
}

// newBenignStorage returns a MockStorage where every call succeeds and
// projects start empty.
func newBenignStorage() *MockStorage {
	st := &MockStorage{}
	st.On("LoadShapes", mock.Anything, mock.Anything).Return([]protocol.Shape{}, nil)
	st.On("PersistShape", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("DeletePersistedShape", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("SaveComment", mock.Anything, mock.Anything).Return(nil)
	st.On("SaveVersion", mock.Anything, mock.Anything).Return(nil)
	return st
}
