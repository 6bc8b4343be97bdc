package sendmessage

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/cadence/pkg/mocks"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func student() *protocol.Entity {
	return &protocol.Entity{
		ID:   "S1",
		Type: "student",
		Fields: map[string]any{
			"first_name": "Ada",
			"email":      "ada@example.com",
		},
	}
}

func TestFactories(t *testing.T) {
	message := NewMessageFactory()
	assert.Equal(t, models.ActionSendMessage, message.ID())
	assert.Equal(t, protocol.ChannelInApp, message.Channel())

	email := NewEmailFactory()
	assert.Equal(t, models.ActionSendEmail, email.ID())
	assert.Equal(t, protocol.ChannelEmail, email.Channel())

	_, err := email.Create(map[string]any{"body": "hi"})
	require.ErrorIs(t, err, ErrSubjectRequired)

	_, err = message.Create(map[string]any{"body": "hi"})
	require.NoError(t, err)

	_, err = message.Create(map[string]any{})
	require.ErrorIs(t, err, ErrBodyRequired)
}

func TestAction_Execute_Email(t *testing.T) {
	store := &mocks.MockEntityStore{}
	store.On("Get", mock.Anything, "S1").Return(student(), nil)

	sender := &mocks.MockNotificationSender{}
	sender.On("Send", mock.Anything, protocol.Notification{
		Channel: protocol.ChannelEmail,
		To:      "ada@example.com",
		Subject: "Welcome Ada",
		Body:    "Hello Ada, your code is {{code}}",
	}).Return(nil)

	action, err := NewAction(protocol.ChannelEmail, map[string]any{
		"subject": "Welcome {{first_name}}",
		"body":    "Hello {{first_name}}, your code is {{code}}",
	})
	require.NoError(t, err)

	output, err := action.Execute(context.Background(), protocol.StepContext{
		EntityID: "S1",
		Entities: store,
		Notifier: sender,
		Logger:   slog.Default(),
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", output["to"])
	sender.AssertExpectations(t)
}

func TestAction_Execute_InAppDefaultsToEntityID(t *testing.T) {
	store := &mocks.MockEntityStore{}
	store.On("Get", mock.Anything, "S1").Return(student(), nil)

	sender := &mocks.MockNotificationSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(n protocol.Notification) bool {
		return n.To == "S1" && n.Channel == protocol.ChannelInApp && n.Body == "Upload your transcript, Ada"
	})).Return(nil)

	action, err := NewAction(protocol.ChannelInApp, map[string]any{"body": "Upload your transcript, {{first_name}}"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), protocol.StepContext{
		EntityID: "S1",
		Entities: store,
		Notifier: sender,
		Logger:   slog.Default(),
	})
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestAction_Execute_MissingRecipient(t *testing.T) {
	entity := student()
	delete(entity.Fields, "email")

	store := &mocks.MockEntityStore{}
	store.On("Get", mock.Anything, "S1").Return(entity, nil)

	sender := &mocks.MockNotificationSender{}

	action, err := NewAction(protocol.ChannelEmail, map[string]any{"subject": "s", "body": "b"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), protocol.StepContext{
		EntityID: "S1",
		Entities: store,
		Notifier: sender,
		Logger:   slog.Default(),
	})
	require.ErrorIs(t, err, protocol.ErrInvalidStepInput)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestAction_Execute_SenderFailure(t *testing.T) {
	store := &mocks.MockEntityStore{}
	store.On("Get", mock.Anything, "S1").Return(student(), nil)

	sender := &mocks.MockNotificationSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(protocol.ErrUnavailable)

	action, err := NewAction(protocol.ChannelInApp, map[string]any{"body": "b", "to": "inbox-{{entity.id}}"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), protocol.StepContext{
		EntityID: "S1",
		Entities: store,
		Notifier: sender,
		Logger:   slog.Default(),
	})
	require.ErrorIs(t, err, protocol.ErrUnavailable)
}

func TestAction_Execute_EntityMissing(t *testing.T) {
	store := &mocks.MockEntityStore{}
	store.On("Get", mock.Anything, "S404").Return(nil, protocol.ErrEntityNotFound)

	action, err := NewAction(protocol.ChannelInApp, map[string]any{"body": "b"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), protocol.StepContext{
		EntityID: "S404",
		Entities: store,
		Notifier: &mocks.MockNotificationSender{},
		Logger:   slog.Default(),
	})
	require.ErrorIs(t, err, protocol.ErrEntityNotFound)
}
