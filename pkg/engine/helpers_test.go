package engine_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/actions/createtask"
	"github.com/dukex/cadence/pkg/actions/delay"
	"github.com/dukex/cadence/pkg/actions/sendmessage"
	"github.com/dukex/cadence/pkg/actions/updatestatus"
	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/entitystore/memory"
	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/idempotency"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/dukex/cadence/pkg/triggers/entity"
	"github.com/dukex/cadence/pkg/triggers/statuschanged"
	"github.com/dukex/cadence/pkg/triggers/threshold"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type harness struct {
	engine    *engine.Engine
	registry  *registry.Registry
	store     *file.Persistence
	guard     idempotency.Guard
	cfg       engine.Config
	entities  *memory.Store
	sender    *recordingSender
	publisher *recordingPublisher
	clock     *clockwork.FakeClock
}

func testConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.WorkerID = "worker-test"
	cfg.StepTimeout = 2 * time.Second
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond

	return cfg
}

func newHarness(t *testing.T, configure ...func(*engine.Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, fn := range configure {
		fn(&cfg)
	}

	h := &harness{
		cfg:       cfg,
		registry:  newRegistry(),
		store:     file.NewPersistence(t.TempDir()),
		entities:  memory.NewStore(),
		sender:    &recordingSender{},
		publisher: &recordingPublisher{},
		clock:     clockwork.NewFakeClockAt(baseTime),
	}
	h.restart(t, idempotency.NewMemoryGuard(h.clock, cfg.DedupRetention))

	h.entities.Put(&protocol.Entity{
		ID:   "S1",
		Type: "student",
		Fields: map[string]any{
			"first_name": "Ana",
			"email":      "ana@example.com",
			"status":     "new",
		},
	})

	return h
}

// restart replaces the engine with a new one on the same store, as a process restart
// does. The guard is whatever the new process would build.
func (h *harness) restart(t *testing.T, guard idempotency.Guard) {
	t.Helper()

	h.guard = guard

	e, err := engine.New(h.cfg, engine.Dependencies{
		Definitions: h.store.DefinitionRepository(),
		Runs:        h.store.RunRepository(),
		Guard:       h.guard,
		Registry:    h.registry,
		Entities:    h.entities,
		Notifier:    h.sender,
		Publisher:   h.publisher,
		Clock:       h.clock,
		Logger:      slog.Default(),
	})
	require.NoError(t, err)

	h.engine = e
}

func newRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())

	reg.RegisterTrigger(entity.NewProfileCreatedFactory())
	reg.RegisterTrigger(entity.NewDocumentUploadedFactory())
	reg.RegisterTrigger(entity.NewDocumentRejectedFactory())
	reg.RegisterTrigger(threshold.NewTriggerFactory())
	reg.RegisterTrigger(statuschanged.NewTriggerFactory())

	reg.RegisterAction(createtask.NewActionFactory())
	reg.RegisterAction(sendmessage.NewMessageFactory())
	reg.RegisterAction(sendmessage.NewEmailFactory())
	reg.RegisterAction(updatestatus.NewActionFactory())
	reg.RegisterAction(delay.NewActionFactory())

	return reg
}

func (h *harness) save(t *testing.T, definition *models.WorkflowDefinition) *models.WorkflowDefinition {
	t.Helper()

	definition.NormalizeIndexes()
	definition.CreatedAt = baseTime
	definition.UpdatedAt = baseTime
	require.NoError(t, h.store.DefinitionRepository().Save(context.Background(), definition))

	return definition
}

func (h *harness) run(t *testing.T, id string) *models.WorkflowRun {
	t.Helper()

	run, err := h.store.RunRepository().GetByID(context.Background(), id)
	require.NoError(t, err)

	return run
}

func (h *harness) runs(t *testing.T) []*models.WorkflowRun {
	t.Helper()

	runs, err := h.store.RunRepository().List(context.Background(), persistence.RunFilter{})
	require.NoError(t, err)

	return runs
}

func (h *harness) tasks(t *testing.T) []*protocol.Entity {
	t.Helper()

	tasks, err := h.entities.List(context.Background(), "task", nil)
	require.NoError(t, err)

	return tasks
}

func (h *harness) sweep(t *testing.T) engine.SweepResult {
	t.Helper()

	result, err := h.engine.Sweep(context.Background(), h.clock.Now())
	require.NoError(t, err)

	return result
}

func (h *harness) submit(t *testing.T, event *events.DomainEvent) engine.SubmitResult {
	t.Helper()

	result, err := h.engine.SubmitEvent(context.Background(), event)
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	return result
}

// welcomeSequence creates a call task, waits two days, then emails the student.
func welcomeSequence() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:          "welcome",
		Name:        "Welcome Sequence",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{ActionType: models.ActionCreateTask, Config: map[string]any{"title": "Call student"}},
			{ActionType: models.ActionDelay, DelayBeforeDays: 2},
			{
				ActionType: models.ActionSendEmail,
				Config: map[string]any{
					"subject": "Next steps",
					"body":    "Hi {{first_name}}, your {{unknown}} is ready.",
				},
			},
		},
	}
}

func emailThenTask() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:          "greet",
		Name:        "Greet then call",
		TriggerType: models.TriggerProfileCreated,
		IsActive:    true,
		Actions: []models.ActionStep{
			{
				ActionType: models.ActionSendEmail,
				Config: map[string]any{
					"subject": "Welcome {{first_name}}",
					"body":    "Hi {{first_name}}, your {{unknown}} is ready.",
				},
			},
			{
				ActionType:      models.ActionCreateTask,
				Config:          map[string]any{"title": "Call the student"},
				DelayBeforeDays: 3,
			},
		},
	}
}

func profileCreated(eventID, entityID string) *events.DomainEvent {
	return events.NewDomainEvent(eventID, string(models.TriggerProfileCreated), entityID, "student", nil)
}

type recordingSender struct {
	mu       sync.Mutex
	sent     []protocol.Notification
	failures int
}

func (s *recordingSender) Send(_ context.Context, notification protocol.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--

		return fmt.Errorf("%w: mail relay down", protocol.ErrUnavailable)
	}

	s.sent = append(s.sent, notification)

	return nil
}

func (s *recordingSender) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = n
}

func (s *recordingSender) notifications() []protocol.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]protocol.Notification(nil), s.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event.GetType())

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]events.EventType(nil), p.events...)
}

// gateFactory builds an action that blocks until the test opens the gate.
type gateFactory struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGateFactory() *gateFactory {
	return &gateFactory{started: make(chan struct{}), release: make(chan struct{})}
}

func (f *gateFactory) ID() models.ActionType { return "gate" }

func (f *gateFactory) Schema() map[string]any { return nil }

func (f *gateFactory) Create(map[string]any) (protocol.Action, error) { return f, nil }

func (f *gateFactory) Execute(ctx context.Context, _ protocol.StepContext) (map[string]any, error) {
	f.once.Do(func() { close(f.started) })

	select {
	case <-f.release:
		return map[string]any{"opened": true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stallFactory builds an action that never finishes before its context ends.
type stallFactory struct {
	mu    sync.Mutex
	calls int
}

func (f *stallFactory) ID() models.ActionType { return "stall" }

func (f *stallFactory) Schema() map[string]any { return nil }

func (f *stallFactory) Create(map[string]any) (protocol.Action, error) { return f, nil }

func (f *stallFactory) Execute(ctx context.Context, _ protocol.StepContext) (map[string]any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	<-ctx.Done()

	return nil, ctx.Err()
}
