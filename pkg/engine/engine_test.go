package engine_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWelcomeSequence(t *testing.T) {
	h := newHarness(t)
	h.save(t, welcomeSequence())

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	run := result.Scheduled[0]
	assert.Equal(t, models.RunStatusWaiting, run.Status)
	assert.Equal(t, 1, run.CurrentStepIndex)
	require.NotNil(t, run.NextWakeAt)
	assert.True(t, baseTime.Add(2*day).Equal(*run.NextWakeAt), "next_wake_at = %s", run.NextWakeAt)
	require.Len(t, run.StepResults, 1)
	assert.Equal(t, models.ActionCreateTask, run.StepResults[0].ActionType)
	assert.Equal(t, models.StepStatusSucceeded, run.StepResults[0].Status)

	tasks := h.tasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Call student", tasks[0].Fields["title"])
	assert.Equal(t, "S1", tasks[0].Fields["target_entity_id"])
	assert.Equal(t, "student", tasks[0].Fields["target_entity_type"])
	assert.Equal(t, run.ID, tasks[0].Fields["workflow_run_id"])
	assert.Empty(t, h.sender.notifications())

	h.clock.Advance(2*day - time.Second)
	assert.Equal(t, 0, h.sweep(t).Advanced)
	assert.Empty(t, h.sender.notifications())
	assert.Equal(t, models.RunStatusWaiting, h.run(t, run.ID).Status)

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.sweep(t).Advanced)

	done := h.run(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Nil(t, done.NextWakeAt)
	require.Len(t, done.StepResults, 2)
	assert.Equal(t, 0, done.StepResults[0].Index)
	assert.Equal(t, 2, done.StepResults[1].Index)
	assert.Equal(t, models.ActionSendEmail, done.StepResults[1].ActionType)
	assert.Equal(t, models.StepStatusSucceeded, done.StepResults[1].Status)

	sent := h.sender.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.ChannelEmail, sent[0].Channel)
	assert.Equal(t, "ana@example.com", sent[0].To)
	assert.Equal(t, "Next steps", sent[0].Subject)
	assert.Equal(t, "Hi Ana, your {{unknown}} is ready.", sent[0].Body)
	assert.Len(t, h.tasks(t), 1)

	assert.Equal(t, []events.EventType{
		events.RunScheduledEvent,
		events.RunStepSucceededEvent,
		events.RunWaitingEvent,
		events.RunStepSucceededEvent,
		events.RunCompletedEvent,
	}, h.publisher.types())
}

func TestSubmitEvent_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.save(t, emailThenTask())

	first := h.submit(t, profileCreated("E1", "S1"))
	assert.Len(t, first.Scheduled, 1)

	again := h.submit(t, profileCreated("E1", "S1"))
	assert.Empty(t, again.Scheduled)
	assert.Equal(t, 1, again.Duplicates)

	other := h.submit(t, profileCreated("E2", "S1"))
	assert.Len(t, other.Scheduled, 1)

	assert.Len(t, h.runs(t), 2)
	assert.Len(t, h.sender.notifications(), 2)
}

func TestSubmitEvent_DedupRetention(t *testing.T) {
	h := newHarness(t, func(cfg *engine.Config) { cfg.DedupRetention = time.Hour })
	h.save(t, &models.WorkflowDefinition{
		ID:          "mark",
		Name:        "Mark contacted",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionUpdateStatus, Config: map[string]any{"value": "contacted"}},
		},
	})

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)
	assert.Equal(t, models.RunStatusCompleted, result.Scheduled[0].Status)

	assert.Equal(t, 1, h.submit(t, profileCreated("E1", "S1")).Duplicates, "late redelivery is still rejected")

	h.clock.Advance(time.Hour)

	assert.Len(t, h.submit(t, profileCreated("E1", "S1")).Scheduled, 1)
	assert.Len(t, h.runs(t), 2)
}

func TestSubmitEvent_DedupSurvivesRestart(t *testing.T) {
	delayedFollowUp := &models.WorkflowDefinition{
		ID:          "later",
		Name:        "Later task",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Follow up"}, DelayBeforeDays: 2},
		},
	}

	tests := []struct {
		name  string
		guard func(h *harness) idempotency.Guard
	}{
		{
			name: "file guard",
			guard: func(h *harness) idempotency.Guard {
				return file.NewGuard(h.store.Root(), h.clock, h.cfg.DedupRetention)
			},
		},
		{
			name: "memory guard",
			guard: func(h *harness) idempotency.Guard {
				return idempotency.NewMemoryGuard(h.clock, h.cfg.DedupRetention)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.restart(t, tt.guard(h))
			h.save(t, delayedFollowUp)

			first := h.submit(t, profileCreated("E1", "S1"))
			require.Len(t, first.Scheduled, 1)
			assert.Equal(t, models.RunStatusWaiting, first.Scheduled[0].Status)

			h.restart(t, tt.guard(h))

			again := h.submit(t, profileCreated("E1", "S1"))
			assert.Empty(t, again.Scheduled)
			assert.Equal(t, 1, again.Duplicates)

			runs := h.runs(t)
			require.Len(t, runs, 1)
			assert.Equal(t, first.Scheduled[0].ID, runs[0].ID)
			assert.False(t, runs[0].Status.IsTerminal())
		})
	}
}

func TestSubmitEvent_ThresholdIsEdgeTriggered(t *testing.T) {
	h := newHarness(t)
	h.save(t, &models.WorkflowDefinition{
		ID:            "nudge",
		Name:          "Completeness nudge",
		TriggerType:   models.TriggerCompletenessThreshold,
		TriggerConfig: map[string]any{"threshold": 50},
		IsActive:      true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionSendMessage, Config: map[string]any{"body": "You are at {{event.new_value}}%"}},
		},
	})

	cases := []struct {
		old, new float64
		fires    bool
	}{
		{40, 60, true},
		{60, 70, false},
		{60, 40, false},
		{40, 55, true},
		{40, 50, true},
		{50, 50, false},
	}

	for i, tc := range cases {
		t.Run(fmt.Sprintf("%v->%v", tc.old, tc.new), func(t *testing.T) {
			event := events.NewDomainEvent(fmt.Sprintf("E%d", i), string(models.TriggerCompletenessThreshold), "S1", "student",
				map[string]any{events.PayloadOldValue: tc.old, events.PayloadNewValue: tc.new})

			result := h.submit(t, event)

			if tc.fires {
				assert.Len(t, result.Scheduled, 1)
			} else {
				assert.Empty(t, result.Scheduled)
			}
		})
	}

	sent := h.sender.notifications()
	require.Len(t, sent, 3)
	assert.Equal(t, "You are at 60%", sent[0].Body)
	assert.Equal(t, protocol.ChannelInApp, sent[0].Channel)
	assert.Equal(t, "S1", sent[0].To)
}

func TestSubmitEvent_IgnoresUnknownAndRejectsInvalidEvents(t *testing.T) {
	h := newHarness(t)
	h.save(t, emailThenTask())

	result, err := h.engine.SubmitEvent(context.Background(),
		events.NewDomainEvent("E1", "planet_discovered", "S1", "student", nil))
	require.NoError(t, err)
	assert.Empty(t, result.Scheduled)

	_, err = h.engine.SubmitEvent(context.Background(), &events.DomainEvent{Type: string(models.TriggerProfileCreated)})
	require.ErrorIs(t, err, events.ErrInvalidEventData)

	assert.Empty(t, h.runs(t))
}

func TestAdvance_ExecutesStepsInOrder(t *testing.T) {
	h := newHarness(t)
	h.save(t, &models.WorkflowDefinition{
		ID:          "onboarding",
		Name:        "Onboarding",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Review profile"}},
			{ActionType: models.ActionUpdateStatus, Config: map[string]any{"value": "onboarding"}},
			{ActionType: models.ActionSendMessage, Config: map[string]any{"body": "Welcome aboard"}},
		},
	})

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	run := result.Scheduled[0]
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.StepResults, 3)

	for i, want := range []models.ActionType{models.ActionCreateTask, models.ActionUpdateStatus, models.ActionSendMessage} {
		assert.Equal(t, i, run.StepResults[i].Index)
		assert.Equal(t, want, run.StepResults[i].ActionType)
		assert.Equal(t, models.StepStatusSucceeded, run.StepResults[i].Status)
		assert.Equal(t, 1, run.StepResults[i].Attempts)
	}

	student, err := h.entities.Get(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "onboarding", student.Fields["status"])
	assert.Len(t, h.tasks(t), 1)
	assert.Len(t, h.sender.notifications(), 1)
}

func TestAdvance_FailsFast(t *testing.T) {
	h := newHarness(t)
	h.entities.Put(&protocol.Entity{ID: "S2", Type: "student", Fields: map[string]any{"first_name": "Bo"}})
	h.save(t, &models.WorkflowDefinition{
		ID:          "chase",
		Name:        "Chase documents",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Review"}},
			{ActionType: models.ActionSendEmail, Config: map[string]any{"subject": "Hi", "body": "Hello"}},
			{ActionType: models.ActionUpdateStatus, Config: map[string]any{"value": "emailed"}},
		},
	})

	result := h.submit(t, profileCreated("E1", "S2"))
	require.Len(t, result.Scheduled, 1)

	run := result.Scheduled[0]
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.StepResults, 2)
	assert.Equal(t, models.StepStatusSucceeded, run.StepResults[0].Status)
	assert.Equal(t, models.StepStatusFailed, run.StepResults[1].Status)
	assert.Equal(t, 1, run.StepResults[1].Attempts, "permanent failures are not retried")
	assert.Contains(t, run.StepResults[1].Error, protocol.ErrInvalidStepInput.Error())

	student, err := h.entities.Get(context.Background(), "S2")
	require.NoError(t, err)
	assert.NotContains(t, student.Fields, "status")
	assert.Empty(t, h.sender.notifications())

	types := h.publisher.types()
	assert.Equal(t, events.RunFailedEvent, types[len(types)-1])
	assert.Contains(t, types, events.RunStepFailedEvent)
}

func TestAdvance_RetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.save(t, emailThenTask())
	h.sender.failNext(2)

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	run := result.Scheduled[0]
	assert.Equal(t, models.RunStatusWaiting, run.Status)
	require.Len(t, run.StepResults, 1)
	assert.Equal(t, models.StepStatusSucceeded, run.StepResults[0].Status)
	assert.Equal(t, 3, run.StepResults[0].Attempts)
	assert.Len(t, h.sender.notifications(), 1)
}

func TestAdvance_TransientFailuresExhaustRetries(t *testing.T) {
	h := newHarness(t)
	h.save(t, emailThenTask())
	h.sender.failNext(5)

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	run := result.Scheduled[0]
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.StepResults, 1)
	assert.Equal(t, 3, run.StepResults[0].Attempts)
	assert.Contains(t, run.StepResults[0].Error, "transient")
	assert.Empty(t, h.sender.notifications())
	assert.Empty(t, h.tasks(t))
}

func TestAdvance_StepTimeoutIsTransient(t *testing.T) {
	h := newHarness(t, func(cfg *engine.Config) {
		cfg.StepTimeout = 20 * time.Millisecond
		cfg.MaxAttempts = 2
	})

	stall := &stallFactory{}
	h.registry.RegisterAction(stall)
	h.save(t, &models.WorkflowDefinition{
		ID:          "slow",
		Name:        "Slow collaborator",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions:     []models.ActionStep{{ActionType: stall.ID()}},
	})

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	run := result.Scheduled[0]
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.StepResults, 1)
	assert.Equal(t, 2, run.StepResults[0].Attempts)
	assert.Contains(t, run.StepResults[0].Error, context.DeadlineExceeded.Error())

	stall.mu.Lock()
	defer stall.mu.Unlock()
	assert.Equal(t, 2, stall.calls)
}

func TestAdvance_DelayStepIsNotRecorded(t *testing.T) {
	h := newHarness(t)
	h.save(t, &models.WorkflowDefinition{
		ID:          "pause",
		Name:        "Pause then task",
		TriggerType: models.TriggerDocumentUploaded,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionSendMessage, Config: map[string]any{"body": "Thanks for the upload"}},
			{ActionType: models.ActionDelay, DelayBeforeDays: 1},
			{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Check document"}},
		},
	})

	event := events.NewDomainEvent("E1", string(models.TriggerDocumentUploaded), "S1", "student", nil)
	result := h.submit(t, event)
	require.Len(t, result.Scheduled, 1)
	assert.Equal(t, models.RunStatusWaiting, result.Scheduled[0].Status)

	h.clock.Advance(day)
	h.sweep(t)

	run := h.run(t, result.Scheduled[0].ID)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.StepResults, 2)
	assert.Equal(t, 0, run.StepResults[0].Index)
	assert.Equal(t, 2, run.StepResults[1].Index)
	assert.Len(t, h.tasks(t), 1)
}

func TestSweep_NeverWakesEarly(t *testing.T) {
	h := newHarness(t)
	h.save(t, &models.WorkflowDefinition{
		ID:          "later",
		Name:        "Later task",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Follow up"}, DelayBeforeDays: 2},
		},
	})

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	run := result.Scheduled[0]
	assert.Equal(t, models.RunStatusWaiting, run.Status)
	assert.Empty(t, run.StepResults)
	require.NotNil(t, run.NextWakeAt)
	assert.True(t, baseTime.Add(2*day).Equal(*run.NextWakeAt))

	for hour := 1; hour < 48; hour++ {
		h.clock.Advance(time.Hour)
		require.Equal(t, 0, h.sweep(t).Advanced, "woke after %d hours", hour)
	}

	assert.Empty(t, h.tasks(t))

	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.sweep(t).Advanced)
	assert.Len(t, h.tasks(t), 1)
	assert.Equal(t, models.RunStatusCompleted, h.run(t, run.ID).Status)
}

func TestCancel_WaitingRun(t *testing.T) {
	h := newHarness(t)
	h.save(t, emailThenTask())

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	cancelled, err := h.engine.Cancel(context.Background(), result.Scheduled[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)
	assert.Nil(t, cancelled.NextWakeAt)

	h.clock.Advance(3 * day)
	assert.Equal(t, 0, h.sweep(t).Examined)
	assert.Empty(t, h.tasks(t))

	_, err = h.engine.Cancel(context.Background(), result.Scheduled[0].ID)
	require.ErrorIs(t, err, engine.ErrRunTerminal)

	types := h.publisher.types()
	assert.Equal(t, events.RunCancelledEvent, types[len(types)-1])
}

func TestCancel_RunningRunStopsBetweenSteps(t *testing.T) {
	h := newHarness(t)

	gate := newGateFactory()
	h.registry.RegisterAction(gate)
	h.save(t, &models.WorkflowDefinition{
		ID:          "gated",
		Name:        "Gated",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: gate.ID()},
			{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Never"}},
		},
	})

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _ = h.engine.SubmitEvent(context.Background(), profileCreated("E1", "S1"))
	}()

	select {
	case <-gate.started:
	case <-time.After(5 * time.Second):
		t.Fatal("step never started")
	}

	runs := h.runs(t)
	require.Len(t, runs, 1)

	requested, err := h.engine.Cancel(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, requested.Status)
	assert.True(t, requested.CancelRequested)

	close(gate.release)
	<-done

	run := h.run(t, runs[0].ID)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
	require.Len(t, run.StepResults, 1, "the running step completes")
	assert.Equal(t, models.StepStatusSucceeded, run.StepResults[0].Status)
	assert.Empty(t, h.tasks(t))
}

func TestSnapshotIsolation(t *testing.T) {
	h := newHarness(t)
	h.save(t, emailThenTask())

	result := h.submit(t, profileCreated("E1", "S1"))
	require.Len(t, result.Scheduled, 1)

	edited := emailThenTask()
	edited.Actions[1].Config["title"] = "Edited title"
	h.save(t, edited)

	h.clock.Advance(3 * day)
	h.sweep(t)

	tasks := h.tasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Call the student", tasks[0].Fields["title"])
	assert.Equal(t, "Call the student", h.run(t, result.Scheduled[0].ID).DefinitionSnapshot.Actions[1].Config["title"])
}

func TestAdvance_ConcurrentClaims(t *testing.T) {
	h := newHarness(t)
	definition := h.save(t, &models.WorkflowDefinition{
		ID:          "once",
		Name:        "Exactly once",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions:     []models.ActionStep{{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Once"}}},
	})
	createRun(t, h, definition, "contended", models.RunStatusPending, nil)

	var (
		wg           sync.WaitGroup
		wins         atomic.Int32
		notClaimable atomic.Int32
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := h.engine.Advance(context.Background(), "contended")

			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, engine.ErrRunNotClaimable):
				notClaimable.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), notClaimable.Load())
	assert.Len(t, h.tasks(t), 1)
}

func TestSweep_RecoversStaleClaims(t *testing.T) {
	ctx := context.Background()
	staleClaim := baseTime.Add(-10 * time.Minute)

	pipeline := func() *models.WorkflowDefinition {
		return &models.WorkflowDefinition{
			ID:          "recover",
			Name:        "Recoverable",
			TriggerType: models.TriggerProfileCreated,
			IsActive:    true,
			Actions: []models.ActionStep{
				{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Once"}},
				{ActionType: models.ActionUpdateStatus, Config: map[string]any{"value": "called"}},
			},
		}
	}

	t.Run("step never started", func(t *testing.T) {
		h := newHarness(t)
		definition := h.save(t, pipeline())
		createRun(t, h, definition, "crashed", models.RunStatusRunning, &staleClaim)

		result := h.sweep(t)
		assert.Equal(t, 1, result.Advanced)
		assert.Equal(t, models.RunStatusCompleted, h.run(t, "crashed").Status)
		assert.Len(t, h.tasks(t), 1)
	})

	t.Run("step started without recorded outcome", func(t *testing.T) {
		h := newHarness(t)
		definition := h.save(t, pipeline())
		createRun(t, h, definition, "crashed", models.RunStatusRunning, &staleClaim)

		_, err := h.guard.ReleaseStep(ctx, "crashed", 0)
		require.NoError(t, err)

		h.sweep(t)

		run := h.run(t, "crashed")
		assert.Equal(t, models.RunStatusFailed, run.Status)
		require.Len(t, run.StepResults, 1)
		assert.Contains(t, run.StepResults[0].Error, engine.ErrStepOutcomeUnknown.Error())
		assert.Empty(t, h.tasks(t), "the side effect is not repeated")
	})

	t.Run("step started before a restart", func(t *testing.T) {
		h := newHarness(t)
		h.restart(t, file.NewGuard(h.store.Root(), h.clock, 0))
		definition := h.save(t, pipeline())
		createRun(t, h, definition, "crashed", models.RunStatusRunning, &staleClaim)

		_, err := h.guard.ReleaseStep(ctx, "crashed", 0)
		require.NoError(t, err)

		h.restart(t, file.NewGuard(h.store.Root(), h.clock, 0))
		h.sweep(t)

		run := h.run(t, "crashed")
		assert.Equal(t, models.RunStatusFailed, run.Status)
		require.Len(t, run.StepResults, 1)
		assert.Contains(t, run.StepResults[0].Error, engine.ErrStepOutcomeUnknown.Error())
		assert.Empty(t, h.tasks(t), "the side effect is not repeated")
	})

	t.Run("step recorded before the crash", func(t *testing.T) {
		h := newHarness(t)
		definition := h.save(t, pipeline())
		run := createRun(t, h, definition, "crashed", models.RunStatusRunning, &staleClaim)

		run.StepResults = []models.StepResult{{
			Index:      0,
			ActionType: models.ActionCreateTask,
			Status:     models.StepStatusSucceeded,
			ExecutedAt: staleClaim,
			Attempts:   1,
			Output:     map[string]any{"task_id": "T-1"},
		}}
		require.NoError(t, h.store.RunRepository().Update(ctx, run))

		_, err := h.guard.ReleaseStep(ctx, "crashed", 0)
		require.NoError(t, err)

		h.sweep(t)

		recovered := h.run(t, "crashed")
		assert.Equal(t, models.RunStatusCompleted, recovered.Status)
		require.Len(t, recovered.StepResults, 2)
		assert.Empty(t, h.tasks(t))

		student, err := h.entities.Get(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, "called", student.Fields["status"])
	})

	t.Run("fresh claim is left alone", func(t *testing.T) {
		h := newHarness(t)
		definition := h.save(t, pipeline())
		freshClaim := baseTime.Add(-time.Minute)
		createRun(t, h, definition, "busy", models.RunStatusRunning, &freshClaim)

		assert.Equal(t, 0, h.sweep(t).Examined)

		_, err := h.engine.Advance(ctx, "busy")
		require.ErrorIs(t, err, engine.ErrRunNotClaimable)
		assert.Empty(t, h.tasks(t))
	})

	t.Run("orphaned pending run", func(t *testing.T) {
		h := newHarness(t)
		definition := h.save(t, pipeline())
		createRun(t, h, definition, "orphan", models.RunStatusPending, nil)

		h.clock.Advance(10 * time.Minute)

		assert.Equal(t, 1, h.sweep(t).Advanced)
		assert.Equal(t, models.RunStatusCompleted, h.run(t, "orphan").Status)
	})
}

func TestHandleDomainEvent(t *testing.T) {
	h := newHarness(t)
	h.save(t, emailThenTask())
	ctx := context.Background()

	require.NoError(t, h.engine.HandleDomainEvent(ctx, profileCreated("E1", "S1")))
	assert.Len(t, h.runs(t), 1)

	require.NoError(t, h.engine.HandleDomainEvent(ctx, &events.DomainEvent{}), "invalid events are dropped")
	require.ErrorIs(t, h.engine.HandleDomainEvent(ctx, "not an event"), events.ErrInvalidEventData)
}

func TestStart_RunsSweepOnSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real cron tick")
	}

	h := newHarness(t, func(cfg *engine.Config) { cfg.SweepSchedule = "@every 1s" })
	definition := h.save(t, emailThenTask())
	wakeAt := baseTime.Add(-time.Minute)
	run := createRun(t, h, definition, "due", models.RunStatusWaiting, nil)
	run.NextWakeAt = &wakeAt
	run.CurrentStepIndex = 1
	require.NoError(t, h.store.RunRepository().Update(context.Background(), run))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)

	go func() { stopped <- h.engine.Start(ctx) }()

	require.Eventually(t, func() bool {
		return h.run(t, "due").Status == models.RunStatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-stopped)
	assert.Len(t, h.tasks(t), 1)
}

func createRun(t *testing.T, h *harness, definition *models.WorkflowDefinition, id string, status models.RunStatus, claimedAt *time.Time) *models.WorkflowRun {
	t.Helper()

	run := &models.WorkflowRun{
		ID:                   id,
		WorkflowDefinitionID: definition.ID,
		DefinitionSnapshot:   definition.Snapshot(),
		TargetEntityID:       "S1",
		TargetEntityType:     "student",
		TriggeringEventID:    "E-" + id,
		Status:               status,
		StepResults:          []models.StepResult{},
		CreatedAt:            baseTime,
		UpdatedAt:            baseTime,
	}

	if claimedAt != nil {
		run.ClaimedBy = "crashed-worker"
		run.ClaimedAt = claimedAt
		run.CreatedAt = *claimedAt
	}

	require.NoError(t, h.store.RunRepository().Create(context.Background(), run))

	return run
}
