package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huguei/zonemaster-backend/config"
	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

// fakeStore is an in-memory core.TestStore. Reuse policy mirrors the real
// store: an existing live test always satisfies an identical submission.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	tests  map[string]*model.Test

	historyOpts []model.HistoryOptions
	historyPage *model.HistoryPage
}

var _ core.TestStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{tests: make(map[string]*model.Test)}
}

func (f *fakeStore) LookupOrCreate(_ context.Context, t core.NewTest) (*model.Test, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupOrCreateLocked(t)
}

func (f *fakeStore) lookupOrCreateLocked(t core.NewTest) (*model.Test, bool, error) {
	if existing, ok := f.tests[t.HashID]; ok {
		return existing, false, nil
	}

	f.nextID++
	undelegated := t.Undelegated
	test := &model.Test{
		ID:          f.nextID,
		HashID:      t.HashID,
		Domain:      t.Domain,
		Params:      t.Params,
		Undelegated: &undelegated,
		State:       model.TestStateQueued,
		Progress:    model.ProgressQueued,
		BatchID:     t.BatchID,
		CreatedAt:   time.Now(),
	}
	f.tests[t.HashID] = test
	return test, true, nil
}

func (f *fakeStore) CreateBatch(_ context.Context, reg core.BatchRegistration) (*model.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := &model.BatchResult{BatchID: reg.BatchID}
	for _, m := range reg.Members {
		_, created, err := f.lookupOrCreateLocked(m)
		if err != nil {
			return nil, err
		}
		result.Members = append(result.Members, model.BatchMember{
			Domain: m.Domain,
			HashID: m.HashID,
			Reused: !created,
		})
	}
	return result, nil
}

func (f *fakeStore) Advance(_ context.Context, p core.AdvanceParams) (*model.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	test, ok := f.tests[p.HashID]
	if !ok {
		return nil, apperrors.NotFoundf("test %s not found", p.HashID)
	}
	if !test.State.CanAdvanceTo(p.NewState) {
		return nil, apperrors.InvalidTransitionf("cannot advance from %s to %s", test.State, p.NewState)
	}
	test.State = p.NewState
	if p.NewState.Terminal() {
		test.Progress = model.ProgressDone
		test.Results = p.Results
	} else {
		test.Progress = model.ProgressRunning
	}
	return test, nil
}

func (f *fakeStore) GetByHashID(_ context.Context, hashID string) (*model.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	test, ok := f.tests[hashID]
	if !ok {
		return nil, apperrors.NotFoundf("test %s not found", hashID)
	}
	return test, nil
}

func (f *fakeStore) History(_ context.Context, opts model.HistoryOptions) (*model.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.historyOpts = append(f.historyOpts, opts)
	if f.historyPage != nil {
		return f.historyPage, nil
	}
	return &model.HistoryPage{}, nil
}

// stubRunner records hand-offs.
type stubRunner struct {
	mu       sync.Mutex
	executed []string
}

func (r *stubRunner) Execute(_ context.Context, hashID string, _ model.CanonicalParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, hashID)
}

func (r *stubRunner) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.executed...)
}

// stubProgressSink returns canned in-flight progress values.
type stubProgressSink struct {
	values map[string]int
}

func (s *stubProgressSink) Set(_ context.Context, hashID string, percent int) error {
	if s.values == nil {
		s.values = make(map[string]int)
	}
	s.values[hashID] = percent
	return nil
}

func (s *stubProgressSink) Get(_ context.Context, hashID string) (int, bool, error) {
	v, ok := s.values[hashID]
	return v, ok, nil
}

func testBackendConfig() config.BackendConfig {
	return config.BackendConfig{
		DefaultProfile:      "default",
		Profiles:            []string{"default", "strict"},
		ReuseWindow:         10 * time.Minute,
		BatchMaxSize:        3,
		HistoryDefaultLimit: 200,
		HistoryMaxLimit:     1000,
	}
}

func newTestService(t *testing.T, store core.TestStore, runner core.Runner, sink core.ProgressSink) *TestService {
	t.Helper()
	svc, err := NewTestService(TestServiceOptions{
		Store:    store,
		Backend:  testBackendConfig(),
		Runner:   runner,
		Progress: sink,
	})
	require.NoError(t, err)
	return svc
}

func TestNewTestServiceRequiresStore(t *testing.T) {
	_, err := NewTestService(TestServiceOptions{})
	require.Error(t, err)

	assert.Panics(t, func() {
		MustNewTestService(TestServiceOptions{})
	})
}

func TestStartTestCreatesThenReuses(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	first, created, err := svc.StartTest(ctx, model.TestParams{Domain: "example.org", ClientID: "gui"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.TestStateQueued, first.State)

	// Same test from a different client with cosmetic domain differences.
	second, created, err := svc.StartTest(ctx, model.TestParams{Domain: "EXAMPLE.ORG.", ClientID: "cli"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.HashID, second.HashID)
	assert.Equal(t, first.ID, second.ID)
}

func TestStartTestSetsDelegationClass(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	delegated, _, err := svc.StartTest(ctx, model.TestParams{Domain: "example.org"})
	require.NoError(t, err)
	class, ok := delegated.Class()
	require.True(t, ok)
	assert.Equal(t, model.ClassDelegated, class)

	undelegated, _, err := svc.StartTest(ctx, model.TestParams{
		Domain:      "example.org",
		Nameservers: []model.Nameserver{{Name: "ns1.example.org"}},
	})
	require.NoError(t, err)
	class, ok = undelegated.Class()
	require.True(t, ok)
	assert.Equal(t, model.ClassUndelegated, class)

	assert.NotEqual(t, delegated.HashID, undelegated.HashID)
}

func TestStartTestValidation(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil, nil)
	ctx := context.Background()

	_, _, err := svc.StartTest(ctx, model.TestParams{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "domain", apperrors.GetField(err))

	_, _, err = svc.StartTest(ctx, model.TestParams{Domain: "example.org", Profile: "bogus"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "profile", apperrors.GetField(err))
}

func TestStartTestHandsOffOnlyFreshWork(t *testing.T) {
	runner := &stubRunner{}
	svc := newTestService(t, newFakeStore(), runner, nil)
	ctx := context.Background()

	test, created, err := svc.StartTest(ctx, model.TestParams{Domain: "example.org"})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, []string{test.HashID}, runner.calls())

	_, created, err = svc.StartTest(ctx, model.TestParams{Domain: "example.org"})
	require.NoError(t, err)
	require.False(t, created)
	assert.Len(t, runner.calls(), 1)
}

func TestStartBatchValidation(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.StartBatch(ctx, model.StartBatchRequest{})
	require.Error(t, err)
	assert.Equal(t, "domains", apperrors.GetField(err))

	_, err = svc.StartBatch(ctx, model.StartBatchRequest{
		Domains: []string{"a.org", "b.org", "c.org", "d.org"},
	})
	require.Error(t, err)
	assert.Equal(t, "domains", apperrors.GetField(err))

	_, err = svc.StartBatch(ctx, model.StartBatchRequest{
		Domains: []string{"a.org", ""},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestStartBatchDeduplicatesMembers(t *testing.T) {
	store := newFakeStore()
	runner := &stubRunner{}
	svc := newTestService(t, store, runner, nil)
	ctx := context.Background()

	// One member already exists from an individual submission.
	existing, created, err := svc.StartTest(ctx, model.TestParams{Domain: "a.org"})
	require.NoError(t, err)
	require.True(t, created)

	result, err := svc.StartBatch(ctx, model.StartBatchRequest{
		Domains: []string{"a.org", "b.org", "B.ORG."},
	})
	require.NoError(t, err)
	require.Len(t, result.Members, 3)

	assert.True(t, result.Members[0].Reused)
	assert.Equal(t, existing.HashID, result.Members[0].HashID)
	assert.False(t, result.Members[1].Reused)
	// The duplicate domain reuses the row created earlier in the same batch.
	assert.True(t, result.Members[2].Reused)
	assert.Equal(t, result.Members[1].HashID, result.Members[2].HashID)

	// Only the genuinely new identity is handed to the runner twice total:
	// once for a.org's initial submission and once for b.org.
	calls := runner.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, existing.HashID, calls[0])
	assert.Equal(t, result.Members[1].HashID, calls[1])
}

func TestProgress(t *testing.T) {
	store := newFakeStore()
	sink := &stubProgressSink{}
	svc := newTestService(t, store, nil, sink)
	ctx := context.Background()

	test, _, err := svc.StartTest(ctx, model.TestParams{Domain: "example.org"})
	require.NoError(t, err)

	t.Run("queued", func(t *testing.T) {
		resp, err := svc.Progress(ctx, test.HashID)
		require.NoError(t, err)
		assert.Equal(t, model.TestStateQueued, resp.State)
		assert.Equal(t, model.ProgressQueued, resp.Progress)
	})

	_, err = store.Advance(ctx, core.AdvanceParams{HashID: test.HashID, NewState: model.TestStateRunning})
	require.NoError(t, err)

	t.Run("running without report", func(t *testing.T) {
		resp, err := svc.Progress(ctx, test.HashID)
		require.NoError(t, err)
		assert.Equal(t, model.ProgressRunning, resp.Progress)
	})

	t.Run("running with report", func(t *testing.T) {
		require.NoError(t, sink.Set(ctx, test.HashID, 80))
		resp, err := svc.Progress(ctx, test.HashID)
		require.NoError(t, err)
		assert.Equal(t, 80, resp.Progress)
	})

	t.Run("report never reaches done", func(t *testing.T) {
		require.NoError(t, sink.Set(ctx, test.HashID, 100))
		resp, err := svc.Progress(ctx, test.HashID)
		require.NoError(t, err)
		assert.Equal(t, model.ProgressRunning, resp.Progress)
	})

	t.Run("terminal ignores sink", func(t *testing.T) {
		require.NoError(t, sink.Set(ctx, test.HashID, 80))
		_, err = store.Advance(ctx, core.AdvanceParams{
			HashID:   test.HashID,
			NewState: model.TestStateCompleted,
			Results:  json.RawMessage(`[]`),
		})
		require.NoError(t, err)

		resp, err := svc.Progress(ctx, test.HashID)
		require.NoError(t, err)
		assert.Equal(t, model.ProgressDone, resp.Progress)
	})
}

func TestProgressRejectsMalformedIdentity(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil, nil)

	_, err := svc.Progress(context.Background(), "not-a-hash")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "test_id", apperrors.GetField(err))
}

func TestResults(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	test, _, err := svc.StartTest(ctx, model.TestParams{Domain: "example.org", ClientID: "gui"})
	require.NoError(t, err)

	t.Run("not ready before terminal", func(t *testing.T) {
		_, err := svc.Results(ctx, test.HashID, "en")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotReady(err))
	})

	t.Run("unsupported language", func(t *testing.T) {
		_, err := svc.Results(ctx, test.HashID, "xx")
		require.Error(t, err)
		assert.Equal(t, "language", apperrors.GetField(err))
	})

	stored := []model.ResultEntry{
		{Module: "delegation", Level: "info", Tag: "DELEGATION_OK", Args: map[string]any{"domain": "example.org"}},
	}
	encoded, err := json.Marshal(stored)
	require.NoError(t, err)

	_, err = store.Advance(ctx, core.AdvanceParams{HashID: test.HashID, NewState: model.TestStateRunning})
	require.NoError(t, err)
	_, err = store.Advance(ctx, core.AdvanceParams{
		HashID:   test.HashID,
		NewState: model.TestStateCompleted,
		Results:  encoded,
	})
	require.NoError(t, err)

	t.Run("renders messages in requested language", func(t *testing.T) {
		resp, err := svc.Results(ctx, test.HashID, "en")
		require.NoError(t, err)

		assert.Equal(t, test.HashID, resp.HashID)
		assert.Equal(t, model.ClassDelegated, resp.Class)
		assert.Equal(t, "example.org", resp.Params.Domain)
		assert.Equal(t, "gui", resp.Params.ClientID)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "DELEGATION_OK", resp.Results[0].Tag)
		assert.Equal(t, "The delegation of example.org is consistent", resp.Results[0].Message)
	})

	t.Run("empty language defaults to english", func(t *testing.T) {
		resp, err := svc.Results(ctx, test.HashID, "")
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "The delegation of example.org is consistent", resp.Results[0].Message)
	})
}

func TestGetParamsRoundTrip(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil, nil)
	ctx := context.Background()

	submitted := model.TestParams{
		Domain:        "Example.ORG",
		ClientID:      "cli",
		ClientVersion: "7.0.0",
		Profile:       "strict",
		Nameservers:   []model.Nameserver{{Name: "NS1.example.org", IP: "192.0.2.1"}},
	}
	test, _, err := svc.StartTest(ctx, submitted)
	require.NoError(t, err)

	// The raw submission comes back verbatim, not canonicalized.
	got, err := svc.GetParams(ctx, test.HashID)
	require.NoError(t, err)
	assert.Equal(t, submitted, got)
}

func TestHistoryClampsLimit(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil, nil)
	ctx := context.Background()

	_, err := svc.History(ctx, model.HistoryOptions{})
	require.NoError(t, err)
	_, err = svc.History(ctx, model.HistoryOptions{Limit: 5000})
	require.NoError(t, err)
	_, err = svc.History(ctx, model.HistoryOptions{Limit: 10})
	require.NoError(t, err)

	require.Len(t, store.historyOpts, 3)
	assert.Equal(t, 200, store.historyOpts[0].Limit)
	assert.Equal(t, 1000, store.historyOpts[1].Limit)
	assert.Equal(t, 10, store.historyOpts[2].Limit)
}

func TestProfilesReturnsCopy(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil, nil)

	profiles := svc.Profiles()
	require.Equal(t, []string{"default", "strict"}, profiles)

	profiles[0] = "mutated"
	assert.Equal(t, []string{"default", "strict"}, svc.Profiles())
}

func TestLanguages(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil, nil)
	assert.Equal(t, []string{"da", "en", "fr", "sv"}, svc.Languages())
}
