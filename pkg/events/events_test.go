package events

import (
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   *DomainEvent
		wantErr bool
	}{
		{name: "valid", event: NewDomainEvent("E1", "profile_created", "S1", "student", nil)},
		{name: "nil", event: nil, wantErr: true},
		{name: "missing event id", event: NewDomainEvent("", "profile_created", "S1", "student", nil), wantErr: true},
		{name: "missing type", event: NewDomainEvent("E1", "", "S1", "student", nil), wantErr: true},
		{name: "missing entity id", event: NewDomainEvent("E1", "profile_created", "", "student", nil), wantErr: true},
		{name: "missing entity type", event: NewDomainEvent("E1", "profile_created", "S1", "", nil), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEventData)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDomainEvent_Payload(t *testing.T) {
	event := NewDomainEvent("E1", "completeness_threshold", "S1", "student", map[string]any{
		"old_value":  float64(40),
		"new_value":  "60",
		"new_status": "enrolled",
		"flag":       true,
	})

	v, ok := event.PayloadNumber(PayloadOldValue)
	require.True(t, ok)
	assert.InDelta(t, 40.0, v, 0)

	v, ok = event.PayloadNumber(PayloadNewValue)
	require.True(t, ok)
	assert.InDelta(t, 60.0, v, 0)

	_, ok = event.PayloadNumber("flag")
	assert.False(t, ok)

	_, ok = event.PayloadNumber("missing")
	assert.False(t, ok)

	s, ok := event.PayloadString(PayloadNewStatus)
	require.True(t, ok)
	assert.Equal(t, "enrolled", s)

	_, ok = event.PayloadString("flag")
	assert.False(t, ok)
}

func TestAsNumber(t *testing.T) {
	for _, value := range []any{int(5), int32(5), int64(5), float32(5), float64(5), "5"} {
		n, ok := AsNumber(value)
		require.True(t, ok, "%T", value)
		assert.InDelta(t, 5.0, n, 0)
	}

	_, ok := AsNumber("five")
	assert.False(t, ok)

	_, ok = AsNumber(nil)
	assert.False(t, ok)
}

func TestNewRunEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	wake := at.Add(time.Hour)
	run := &models.WorkflowRun{
		ID:                   "run-1",
		WorkflowDefinitionID: "wf-1",
		TargetEntityID:       "S1",
		TargetEntityType:     "student",
		Status:               models.RunStatusWaiting,
		NextWakeAt:           &wake,
	}

	event := NewRunEvent(RunWaitingEvent, run, at).WithStep(1, "")

	assert.Equal(t, RunWaitingEvent, event.GetType())
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, models.RunStatusWaiting, event.Status)
	require.NotNil(t, event.StepIndex)
	assert.Equal(t, 1, *event.StepIndex)
	assert.Equal(t, &wake, event.NextWakeAt)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, DomainEventTopic, TopicFor(DomainEventReceived))
	assert.Equal(t, NotificationTopic, TopicFor(NotificationRequestedEvent))
	assert.Equal(t, RunEventTopic, TopicFor(RunCompletedEvent))
}
