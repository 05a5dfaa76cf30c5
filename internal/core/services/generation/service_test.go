package generation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/flow"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/stepindex"
	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// memStore implements flow.SessionStore and SessionReader for testing
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.PitchSession
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[uuid.UUID]*domain.PitchSession)}
}

func copySession(s *domain.PitchSession) *domain.PitchSession {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Blocks.Blocks = append([]domain.StarBlock(nil), s.Blocks.Blocks...)
	if s.CorrelationToken != nil {
		token := *s.CorrelationToken
		clone.CorrelationToken = &token
	}
	return &clone
}

func (m *memStore) Create(ctx context.Context, s *domain.PitchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

func (m *memStore) Save(ctx context.Context, s *domain.PitchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
	return nil
}

func (m *memStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.PitchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.RecordNotFound("session")
	}
	return copySession(s), nil
}

func (m *memStore) FindByCorrelationToken(ctx context.Context, token string) (*domain.PitchSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.CorrelationToken != nil && *s.CorrelationToken == token {
			return copySession(s), nil
		}
	}
	return nil, apperrors.RecordNotFound("session")
}

func (m *memStore) CompleteGeneration(ctx context.Context, token, content string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.CorrelationToken != nil && *s.CorrelationToken == token && s.Status == domain.StatusGenerating {
			s.GeneratedPitch = content
			s.Status = domain.StatusFinal
			s.Locked = false
			s.CurrentStep = stepindex.TotalSteps(s.BlockCount)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) get(id uuid.UUID) *domain.PitchSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.sessions[id])
}

func (m *memStore) generatingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status == domain.StatusGenerating {
			n++
		}
	}
	return n
}

type mockAgent struct {
	mu           sync.Mutex
	submitCalls  int
	submitErr    error
	submitDelay  time.Duration
	guidanceText string
}

func (a *mockAgent) SubmitPitch(ctx context.Context, req PitchRequest) (string, error) {
	a.mu.Lock()
	a.submitCalls++
	n := a.submitCalls
	delay := a.submitDelay
	err := a.submitErr
	a.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("exec-%d", n), nil
}

func (a *mockAgent) PollPitch(ctx context.Context, token string) (PollResult, error) {
	return PollResult{}, nil
}

func (a *mockAgent) GenerateGuidance(ctx context.Context, req GuidanceRequest) (string, error) {
	return a.guidanceText, nil
}

func (a *mockAgent) submits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitCalls
}

type mockNotifier struct {
	mu       sync.Mutex
	pitch    map[string][]chan string
	guidance map[uuid.UUID][]chan GuidanceEvent
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{
		pitch:    make(map[string][]chan string),
		guidance: make(map[uuid.UUID][]chan GuidanceEvent),
	}
}

func (n *mockNotifier) SubscribePitchDone(ctx context.Context, token string) (<-chan string, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan string, 1)
	n.pitch[token] = append(n.pitch[token], ch)
	return ch, func() {}, nil
}

func (n *mockNotifier) SubscribeGuidanceDone(ctx context.Context, sessionID uuid.UUID) (<-chan GuidanceEvent, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan GuidanceEvent, 1)
	n.guidance[sessionID] = append(n.guidance[sessionID], ch)
	return ch, func() {}, nil
}

func (n *mockNotifier) publishPitchDone(token, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.pitch[token] {
		select {
		case ch <- content:
		default:
		}
	}
}

func (n *mockNotifier) publishGuidanceDone(sessionID uuid.UUID, event GuidanceEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.guidance[sessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (n *mockNotifier) guidanceSubscribers(sessionID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.guidance[sessionID])
}

type mockEnqueuer struct {
	mu            sync.Mutex
	pollTasks     []PitchPollTask
	guidanceTasks []GuidanceTask
}

func (q *mockEnqueuer) EnqueuePitchPoll(ctx context.Context, task PitchPollTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pollTasks = append(q.pollTasks, task)
	return nil
}

func (q *mockEnqueuer) EnqueueGuidance(ctx context.Context, task GuidanceTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.guidanceTasks = append(q.guidanceTasks, task)
	return nil
}

func (q *mockEnqueuer) guidance() []GuidanceTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]GuidanceTask(nil), q.guidanceTasks...)
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]string)}
}

func (c *mockCache) GetGuidance(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.entries[key]
	return text, ok, nil
}

func (c *mockCache) SetGuidance(ctx context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = text
	return nil
}

type fixture struct {
	store    *memStore
	agent    *mockAgent
	notifier *mockNotifier
	queue    *mockEnqueuer
	cache    *mockCache
	manager  *flow.Manager
	svc      *Service
}

func newFixture() *fixture {
	store := newMemStore()
	agent := &mockAgent{guidanceText: "Lead with measurable outcomes."}
	notifier := newMockNotifier()
	queue := &mockEnqueuer{}
	cache := newMockCache()

	manager := flow.NewManager(store, flow.Config{
		AutosaveDebounce:     20 * time.Millisecond,
		SaveRetryMaxAttempts: 1,
	}, nil)

	svc := NewService(manager, store, agent, notifier, queue, cache,
		WatcherConfig{Interval: 10 * time.Millisecond, MaxAttempts: 100}, nil)

	return &fixture{store: store, agent: agent, notifier: notifier,
		queue: queue, cache: cache, manager: manager, svc: svc}
}

func seedReady(store *memStore) *domain.PitchSession {
	s := &domain.PitchSession{
		ID:                 uuid.New(),
		OwnerID:            "owner-1",
		RoleName:           "Policy Officer",
		RoleLevel:          "APS5",
		RoleDescription:    "Drafting briefs and coordinating stakeholders.",
		RelevantExperience: "4 years across two departments.",
		WordLimit:          650,
		BlockCount:         2,
		Blocks:             domain.NewBlockEnvelope(2),
		CurrentStep:        stepindex.LastExampleStep(2),
		Status:             domain.StatusDraft,
	}
	for i := range s.Blocks.Blocks {
		b := &s.Blocks.Blocks[i]
		b.Situation = domain.Situation{Where: "Dept. of Finance, 2023", Challenge: "Slipping deadlines."}
		b.Task = domain.Task{Responsibility: "Coordinate the drafting cycle."}
		b.Action = domain.Action{Steps: []domain.ActionStep{{What: "Built a tracker", How: "Shared worksheet with owners"}}}
		b.Result = domain.Result{Outcome: "Briefs landed on time.", Benefit: "Minister saw drafts earlier."}
	}
	store.sessions[s.ID] = s
	return s
}

func TestConfirmAndSubmit_RapidConfirmsShareOneJob(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	f.agent.submitDelay = 50 * time.Millisecond

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]*domain.PitchSession, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.svc.ConfirmAndSubmit(ctx, seed.ID)
	}()

	// Wait until the first confirm is inside the agent call, then race it
	require.Eventually(t, func() bool { return f.agent.submits() == 1 },
		time.Second, 5*time.Millisecond)

	results[1], errs[1] = f.svc.ConfirmAndSubmit(ctx, seed.ID)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, f.agent.submits())

	require.NotNil(t, results[0].CorrelationToken)
	require.NotNil(t, results[1].CorrelationToken)
	assert.Equal(t, *results[0].CorrelationToken, *results[1].CorrelationToken)

	assert.Equal(t, 1, f.store.generatingCount())
	persisted := f.store.get(seed.ID)
	assert.Equal(t, domain.StatusGenerating, persisted.Status)
	assert.True(t, persisted.Locked)

	// Resolve the watcher so the test does not leave a live poll loop
	require.Eventually(t, func() bool {
		f.notifier.publishPitchDone(*results[0].CorrelationToken, "generated pitch")
		state, _, err := f.svc.Status(ctx, seed.ID)
		return err == nil && state == WatchCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestConfirmAndSubmit_ValidationFailureDoesNotSubmit(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	f.store.sessions[seed.ID].RelevantExperience = ""

	_, err := f.svc.ConfirmAndSubmit(context.Background(), seed.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
	assert.Equal(t, 0, f.agent.submits())

	persisted := f.store.get(seed.ID)
	assert.Equal(t, domain.StatusDraft, persisted.Status)
	assert.False(t, persisted.Locked)
}

func TestConfirmAndSubmit_AgentFailureLeavesSessionEditable(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	f.agent.submitErr = assert.AnError

	ctx := context.Background()
	_, err := f.svc.ConfirmAndSubmit(ctx, seed.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAgentRequestFailed))

	persisted := f.store.get(seed.ID)
	assert.Equal(t, domain.StatusDraft, persisted.Status)
	assert.False(t, persisted.Locked)
	assert.Nil(t, persisted.CorrelationToken)

	// The guard released on failure, so a retry reaches the agent again
	f.agent.mu.Lock()
	f.agent.submitErr = nil
	f.agent.mu.Unlock()

	result, err := f.svc.ConfirmAndSubmit(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.agent.submits())
	require.NotNil(t, result.CorrelationToken)

	require.Eventually(t, func() bool {
		f.notifier.publishPitchDone(*result.CorrelationToken, "generated pitch")
		state, _, serr := f.svc.Status(ctx, seed.ID)
		return serr == nil && state == WatchCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestCancel_UnlocksAndPermitsResubmission(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	ctx := context.Background()

	first, err := f.svc.ConfirmAndSubmit(ctx, seed.ID)
	require.NoError(t, err)
	require.NotNil(t, first.CorrelationToken)

	cancelled, err := f.svc.Cancel(ctx, seed.ID)
	require.NoError(t, err)
	assert.Nil(t, cancelled.CorrelationToken)
	assert.False(t, cancelled.Locked)
	assert.Equal(t, domain.StatusDraft, cancelled.Status)

	// A late completion for the abandoned token no longer matches anything
	f.notifier.publishPitchDone(*first.CorrelationToken, "stale result")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.store.get(seed.ID).GeneratedPitch)

	second, err := f.svc.ConfirmAndSubmit(ctx, seed.ID)
	require.NoError(t, err)
	require.NotNil(t, second.CorrelationToken)
	assert.NotEqual(t, *first.CorrelationToken, *second.CorrelationToken)

	require.Eventually(t, func() bool {
		f.notifier.publishPitchDone(*second.CorrelationToken, "fresh pitch")
		return f.store.get(seed.ID).GeneratedPitch == "fresh pitch"
	}, time.Second, 5*time.Millisecond)
}

func TestCancel_WithoutOutstandingJob(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)

	_, err := f.svc.Cancel(context.Background(), seed.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNoOutstandingJob))
}

func TestStatus_TracksLifecycle(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	ctx := context.Background()

	state, _, err := f.svc.Status(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, WatchIdle, state)

	result, err := f.svc.ConfirmAndSubmit(ctx, seed.ID)
	require.NoError(t, err)

	state, _, err = f.svc.Status(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, WatchPolling, state)

	require.Eventually(t, func() bool {
		f.notifier.publishPitchDone(*result.CorrelationToken, "generated pitch")
		state, _, err := f.svc.Status(ctx, seed.ID)
		return err == nil && state == WatchCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestStatus_TerminalWatchersAreEvicted(t *testing.T) {
	f := newFixture()
	f.svc.watcherRetention = 10 * time.Millisecond
	seed := seedReady(f.store)
	ctx := context.Background()

	result, err := f.svc.ConfirmAndSubmit(ctx, seed.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f.notifier.publishPitchDone(*result.CorrelationToken, "generated pitch")
		state, _, serr := f.svc.Status(ctx, seed.ID)
		return serr == nil && state == WatchCompleted
	}, time.Second, 5*time.Millisecond)

	// The resolved watcher is dropped after the retention window
	require.Eventually(t, func() bool {
		f.svc.mu.Lock()
		n := len(f.svc.watchers)
		f.svc.mu.Unlock()
		return n == 0
	}, time.Second, 5*time.Millisecond)

	// Status still reports completion from the session record alone
	state, _, err := f.svc.Status(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, WatchCompleted, state)
}

func TestResume_ReattachesWatcherAfterReload(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)

	// Simulate a session persisted mid-generation by a previous process life
	token := "exec-resumed"
	persisted := f.store.sessions[seed.ID]
	persisted.Status = domain.StatusGenerating
	persisted.Locked = true
	persisted.CorrelationToken = &token

	ctx := context.Background()
	loaded, err := f.manager.Get(ctx, seed.ID)
	require.NoError(t, err)
	f.svc.Resume(ctx, loaded)

	// A confirm while the resumed job is outstanding shares its token
	result, err := f.svc.ConfirmAndSubmit(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.agent.submits())
	require.NotNil(t, result.CorrelationToken)
	assert.Equal(t, token, *result.CorrelationToken)

	require.Eventually(t, func() bool {
		f.notifier.publishPitchDone(token, "resumed pitch")
		return f.store.get(seed.ID).GeneratedPitch == "resumed pitch"
	}, time.Second, 5*time.Millisecond)
	final := f.store.get(seed.ID)
	assert.Equal(t, domain.StatusFinal, final.Status)
	assert.False(t, final.Locked)
}

func TestRequestGuidance_CacheHitAppliesImmediately(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	ctx := context.Background()

	snapshot, err := f.manager.Get(ctx, seed.ID)
	require.NoError(t, err)
	key := GuidanceCacheKey(BuildGuidanceRequest(snapshot))
	require.NoError(t, f.cache.SetGuidance(ctx, key, "cached suggestion"))

	result, err := f.svc.RequestGuidance(ctx, seed.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "cached suggestion", result.GuidanceText)
	assert.Empty(t, f.queue.guidance())
}

func TestRequestGuidance_RequiresRoleDetails(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	f.store.sessions[seed.ID].RoleName = "   "

	_, err := f.svc.RequestGuidance(context.Background(), seed.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest))
	assert.Empty(t, f.queue.guidance())
}

func TestRequestGuidance_DuplicateRequestCoalesces(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	ctx := context.Background()

	_, err := f.svc.RequestGuidance(ctx, seed.ID, false)
	require.NoError(t, err)
	_, err = f.svc.RequestGuidance(ctx, seed.ID, false)
	require.NoError(t, err)

	tasks := f.queue.guidance()
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(1), tasks[0].Seq)

	require.Eventually(t, func() bool {
		return f.notifier.guidanceSubscribers(seed.ID) >= 1
	}, time.Second, 5*time.Millisecond)
	f.notifier.publishGuidanceDone(seed.ID, GuidanceEvent{Seq: 1, Text: "one suggestion"})
	require.Eventually(t, func() bool {
		s, gerr := f.manager.Get(ctx, seed.ID)
		return gerr == nil && s.GuidanceText == "one suggestion"
	}, time.Second, 5*time.Millisecond)
}

// instantWorker resolves guidance tasks synchronously, publishing the result
// before the enqueue call even returns
type instantWorker struct {
	notifier *mockNotifier
	text     string
}

func (w *instantWorker) EnqueuePitchPoll(ctx context.Context, task PitchPollTask) error {
	return nil
}

func (w *instantWorker) EnqueueGuidance(ctx context.Context, task GuidanceTask) error {
	w.notifier.publishGuidanceDone(task.SessionID, GuidanceEvent{Seq: task.Seq, Text: w.text})
	return nil
}

func TestRequestGuidance_PublishRacingEnqueueIsNotLost(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	ctx := context.Background()

	// The result lands while EnqueueGuidance is still on the stack; the
	// subscription has to already exist for the event to be delivered
	f.svc.queue = &instantWorker{notifier: f.notifier, text: "instant suggestion"}

	_, err := f.svc.RequestGuidance(ctx, seed.ID, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, gerr := f.manager.Get(ctx, seed.ID)
		return gerr == nil && s.GuidanceText == "instant suggestion"
	}, time.Second, 5*time.Millisecond)
}

func TestRequestGuidance_RefreshSupersedesInFlight(t *testing.T) {
	f := newFixture()
	seed := seedReady(f.store)
	ctx := context.Background()

	_, err := f.svc.RequestGuidance(ctx, seed.ID, false)
	require.NoError(t, err)
	_, err = f.svc.RequestGuidance(ctx, seed.ID, true)
	require.NoError(t, err)

	tasks := f.queue.guidance()
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(1), tasks[0].Seq)
	assert.Equal(t, int64(2), tasks[1].Seq)

	require.Eventually(t, func() bool {
		return f.notifier.guidanceSubscribers(seed.ID) == 2
	}, time.Second, 5*time.Millisecond)

	// The superseded request's result arrives first and is dropped
	f.notifier.publishGuidanceDone(seed.ID, GuidanceEvent{Seq: 1, Text: "stale suggestion"})
	time.Sleep(50 * time.Millisecond)
	stale, err := f.manager.Get(ctx, seed.ID)
	require.NoError(t, err)
	assert.Empty(t, stale.GuidanceText)

	f.notifier.publishGuidanceDone(seed.ID, GuidanceEvent{Seq: 2, Text: "fresh suggestion"})
	require.Eventually(t, func() bool {
		s, gerr := f.manager.Get(ctx, seed.ID)
		return gerr == nil && s.GuidanceText == "fresh suggestion"
	}, time.Second, 5*time.Millisecond)
}
