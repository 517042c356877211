package testagent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	"github.com/huguei/zonemaster-backend/internal/domain/params"
)

// queueStore feeds a fixed set of queued tests to the agent and records
// state transitions.
type queueStore struct {
	mu      sync.Mutex
	queued  []*model.Test
	claimed map[string]*model.Test

	advances []core.AdvanceParams
	done     chan struct{}
	want     int
}

var _ core.RunnerStore = (*queueStore)(nil)

func newQueueStore(want int, tests ...*model.Test) *queueStore {
	return &queueStore{
		queued:  tests,
		claimed: make(map[string]*model.Test),
		done:    make(chan struct{}),
		want:    want,
	}
}

func (q *queueStore) ClaimNext(_ context.Context) (*model.Test, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queued) == 0 {
		return nil, model.ErrNoTestsAvailable
	}
	test := q.queued[0]
	q.queued = q.queued[1:]
	test.State = model.TestStateRunning
	q.claimed[test.HashID] = test
	return test, nil
}

func (q *queueStore) WaitForNotification(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (q *queueStore) Advance(_ context.Context, p core.AdvanceParams) (*model.Test, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	test, ok := q.claimed[p.HashID]
	if !ok {
		return nil, errors.New("advance of unclaimed test")
	}
	test.State = p.NewState
	test.Results = p.Results

	q.advances = append(q.advances, p)
	if len(q.advances) == q.want {
		close(q.done)
	}
	return test, nil
}

func (q *queueStore) transitions() []core.AdvanceParams {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]core.AdvanceParams(nil), q.advances...)
}

// scriptedEngine runs a per-domain function.
type scriptedEngine struct {
	run func(ctx context.Context, canonical model.CanonicalParams, progress func(int)) ([]model.ResultEntry, error)
}

func (e *scriptedEngine) Run(ctx context.Context, canonical model.CanonicalParams, progress func(int)) ([]model.ResultEntry, error) {
	return e.run(ctx, canonical, progress)
}

type memSink struct {
	mu     sync.Mutex
	values map[string][]int
}

func (s *memSink) Set(_ context.Context, hashID string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string][]int)
	}
	s.values[hashID] = append(s.values[hashID], percent)
	return nil
}

func (s *memSink) Get(_ context.Context, hashID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[hashID]
	if len(v) == 0 {
		return 0, false, nil
	}
	return v[len(v)-1], true, nil
}

func queuedTest(t *testing.T, hashID string, raw model.TestParams) *model.Test {
	t.Helper()
	encoded, err := json.Marshal(raw)
	require.NoError(t, err)
	return &model.Test{
		HashID: hashID,
		Domain: raw.Domain,
		Params: encoded,
		State:  model.TestStateQueued,
	}
}

func runAgent(t *testing.T, store *queueStore, engine core.Engine, sink core.ProgressSink) {
	t.Helper()

	runner, err := NewRunner(RunnerOptions{
		Store:        store,
		Engine:       engine,
		Defaults:     params.Defaults{Profile: "default"},
		PollInterval: 10 * time.Millisecond,
		Progress:     sink,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	select {
	case <-store.done:
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not finish the queued tests in time")
	}

	cancel()
	require.NoError(t, <-runErr)
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Engine: &scriptedEngine{}})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Store: newQueueStore(0)})
	require.Error(t, err)
}

func TestAgentCompletesQueuedTest(t *testing.T) {
	store := newQueueStore(1, queuedTest(t, "completes00000ok", model.TestParams{Domain: "example.org"}))
	sink := &memSink{}

	engine := &scriptedEngine{
		run: func(_ context.Context, canonical model.CanonicalParams, progress func(int)) ([]model.ResultEntry, error) {
			progress(60)
			return []model.ResultEntry{
				{Module: "delegation", Level: "info", Tag: "DELEGATION_OK", Args: map[string]any{"domain": canonical.Domain}},
			}, nil
		},
	}

	runAgent(t, store, engine, sink)

	transitions := store.transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, model.TestStateCompleted, transitions[0].NewState)

	var entries []model.ResultEntry
	require.NoError(t, json.Unmarshal(transitions[0].Results, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "DELEGATION_OK", entries[0].Tag)

	last, ok, err := sink.Get(context.Background(), "completes00000ok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 60, last)
}

func TestAgentFailsTestOnEngineError(t *testing.T) {
	store := newQueueStore(1, queuedTest(t, "engineboom000000", model.TestParams{Domain: "example.org"}))

	engine := &scriptedEngine{
		run: func(context.Context, model.CanonicalParams, func(int)) ([]model.ResultEntry, error) {
			return nil, errors.New("resolver blew up")
		},
	}

	runAgent(t, store, engine, nil)

	transitions := store.transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, model.TestStateFailed, transitions[0].NewState)

	var entries []model.ResultEntry
	require.NoError(t, json.Unmarshal(transitions[0].Results, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "TEST_DIED", entries[0].Tag)
	assert.Equal(t, "resolver blew up", entries[0].Args["reason"])
}

func TestAgentFailsTestWithUnusableParams(t *testing.T) {
	broken := &model.Test{
		HashID: "brokenparams0000",
		Params: json.RawMessage(`{`),
		State:  model.TestStateQueued,
	}
	store := newQueueStore(1, broken)

	engine := &scriptedEngine{
		run: func(context.Context, model.CanonicalParams, func(int)) ([]model.ResultEntry, error) {
			t.Error("engine must not run for unusable params")
			return nil, nil
		},
	}

	runAgent(t, store, engine, nil)

	transitions := store.transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, model.TestStateFailed, transitions[0].NewState)
}

func TestAgentDrainsQueueAcrossWorkers(t *testing.T) {
	store := newQueueStore(3,
		queuedTest(t, "drainsfirst00000", model.TestParams{Domain: "a.org"}),
		queuedTest(t, "drainssecond0000", model.TestParams{Domain: "b.org"}),
		queuedTest(t, "drainsthird00000", model.TestParams{Domain: "c.org"}),
	)

	engine := &scriptedEngine{
		run: func(context.Context, model.CanonicalParams, func(int)) ([]model.ResultEntry, error) {
			return []model.ResultEntry{}, nil
		},
	}

	runner, err := NewRunner(RunnerOptions{
		Store:        store,
		Engine:       engine,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	select {
	case <-store.done:
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not drain the queue in time")
	}
	cancel()
	require.NoError(t, <-runErr)

	transitions := store.transitions()
	assert.Len(t, transitions, 3)
	for _, tr := range transitions {
		assert.Equal(t, model.TestStateCompleted, tr.NewState)
	}
}

func TestExecuteNeverBlocks(t *testing.T) {
	runner, err := NewRunner(RunnerOptions{
		Store:  newQueueStore(0),
		Engine: &scriptedEngine{},
	})
	require.NoError(t, err)

	// No agent loop is draining the wake channel; repeated nudges must
	// still return immediately.
	for range 10 {
		runner.Execute(context.Background(), "abcdef0123456789", model.CanonicalParams{})
	}
}
