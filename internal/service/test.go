// Package service implements the business logic between the RPC surface
// and the test store.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/huguei/zonemaster-backend/config"
	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	"github.com/huguei/zonemaster-backend/internal/domain/params"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
	"github.com/huguei/zonemaster-backend/internal/i18n"
	"github.com/huguei/zonemaster-backend/internal/observability/metrics"
	"github.com/huguei/zonemaster-backend/internal/observability/statsd"
)

// TestServiceOptions groups dependencies for TestService.
type TestServiceOptions struct {
	Store    core.TestStore       // Required: test store
	Backend  config.BackendConfig // Required: profiles, limits, reuse policy
	Runner   core.Runner          // Optional: immediate hand-off of fresh tests
	Progress core.ProgressSink    // Optional: worker-reported in-flight progress
	Catalog  *i18n.Catalog        // Optional: result message rendering
	Metrics  statsd.Sink          // Optional: submission counters
	Logger   *slog.Logger         // Optional: structured logger
}

// TestService provides test submission, deduplication, progress and result
// access. Identity derivation and classification are pure functions of the
// canonical parameters; everything stateful lives behind the store.
type TestService struct {
	store    core.TestStore
	backend  config.BackendConfig
	runner   core.Runner
	progress core.ProgressSink
	catalog  *i18n.Catalog
	metrics  statsd.Sink
	logger   *slog.Logger
}

// NewTestService constructs a new TestService.
func NewTestService(opts TestServiceOptions) (*TestService, error) {
	if opts.Store == nil {
		return nil, errors.New("TestStore is required")
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = i18n.NewCatalog()
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "test_service")
	}

	return &TestService{
		store:    opts.Store,
		backend:  opts.Backend,
		runner:   opts.Runner,
		progress: opts.Progress,
		catalog:  catalog,
		metrics:  opts.Metrics,
		logger:   logger,
	}, nil
}

// MustNewTestService constructs a new TestService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewTestService(opts TestServiceOptions) *TestService {
	svc, err := NewTestService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create TestService: %v", err))
	}
	return svc
}

// StartTest registers a test for the given raw request, or returns the
// existing test when an equivalent submission is already being served. The
// bool reports whether new work was created.
func (s *TestService) StartTest(ctx context.Context, raw model.TestParams) (*model.Test, bool, error) {
	canonical, class, hashID, err := s.prepare(raw)
	if err != nil {
		return nil, false, err
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request params")
	}

	test, created, err := s.store.LookupOrCreate(ctx, core.NewTest{
		HashID:      hashID,
		Domain:      canonical.Domain,
		Params:      rawJSON,
		Undelegated: class.Undelegated(),
	})
	if err != nil {
		metrics.EmitSubmission(s.metrics, metrics.SubmissionMetric{
			Class:  string(class),
			Result: metrics.ResultError,
		})
		return nil, false, err
	}

	result := metrics.ResultReused
	if created {
		result = metrics.ResultCreated
	}
	metrics.EmitSubmission(s.metrics, metrics.SubmissionMetric{
		Class:  string(class),
		Result: result,
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "test submission",
			"hash_id", test.HashID,
			"domain", canonical.Domain,
			"class", class,
			"created", created,
		)
	}

	if created && s.runner != nil {
		s.runner.Execute(ctx, test.HashID, canonical)
	}

	return test, created, nil
}

// StartBatch registers one test per domain in the request, all sharing the
// parameter template, atomically. Members whose identity matches a test
// being served reuse it instead of creating new work.
func (s *TestService) StartBatch(ctx context.Context, req model.StartBatchRequest) (*model.BatchResult, error) {
	if len(req.Domains) == 0 {
		return nil, apperrors.ValidationField("domains", "batch requires at least one domain")
	}
	if len(req.Domains) > s.backend.BatchMaxSize {
		return nil, apperrors.ValidationField("domains",
			fmt.Sprintf("batch exceeds maximum size of %d domains", s.backend.BatchMaxSize))
	}

	batchID := uuid.NewString()

	members := make([]core.NewTest, 0, len(req.Domains))
	canonicalByHash := make(map[string]model.CanonicalParams, len(req.Domains))
	for i, domain := range req.Domains {
		raw := req.Params
		raw.Domain = domain

		canonical, class, hashID, err := s.prepare(raw)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.GetCode(err),
				"batch domain %d (%s)", i, domain)
		}

		rawJSON, marshalErr := json.Marshal(raw)
		if marshalErr != nil {
			return nil, apperrors.Wrap(marshalErr, apperrors.ErrCodeInternal, "encode member params")
		}

		members = append(members, core.NewTest{
			HashID:      hashID,
			Domain:      canonical.Domain,
			Params:      rawJSON,
			Undelegated: class.Undelegated(),
			BatchID:     &batchID,
		})
		canonicalByHash[hashID] = canonical
	}

	template, err := json.Marshal(req.Params)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode batch template")
	}

	result, err := s.store.CreateBatch(ctx, core.BatchRegistration{
		BatchID: batchID,
		Params:  template,
		Members: members,
	})
	if err != nil {
		return nil, err
	}

	created := 0
	seen := make(map[string]bool, len(result.Members))
	for _, m := range result.Members {
		if m.Reused || seen[m.HashID] {
			continue
		}
		seen[m.HashID] = true
		created++
		if s.runner != nil {
			s.runner.Execute(ctx, m.HashID, canonicalByHash[m.HashID])
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "batch submitted",
			"batch_id", batchID,
			"members", len(result.Members),
			"created", created,
		)
	}

	return result, nil
}

// Progress reports how far along a test is. Queued and terminal tests have
// state-derived progress; running tests report the latest figure pushed by
// the worker, falling back to the state-derived midpoint when the worker
// has not reported yet.
func (s *TestService) Progress(ctx context.Context, hashID string) (*model.ProgressResponse, error) {
	test, err := s.getByIdentity(ctx, hashID)
	if err != nil {
		return nil, err
	}

	progress := test.Progress
	if test.State == model.TestStateRunning && s.progress != nil {
		if reported, ok, sinkErr := s.progress.Get(ctx, test.HashID); sinkErr == nil && ok {
			if reported > progress && reported < model.ProgressDone {
				progress = reported
			}
		} else if sinkErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "progress sink read failed",
				"hash_id", test.HashID, "err", sinkErr)
		}
	}

	return &model.ProgressResponse{
		HashID:   test.HashID,
		State:    test.State,
		Progress: progress,
	}, nil
}

// Results returns the stored outcome of a terminal test with messages
// rendered in the requested language.
func (s *TestService) Results(ctx context.Context, hashID, language string) (*model.ResultsResponse, error) {
	if language != "" && !s.catalog.Supported(language) {
		return nil, apperrors.ValidationField("language",
			fmt.Sprintf("unsupported language %q", language))
	}

	test, err := s.getByIdentity(ctx, hashID)
	if err != nil {
		return nil, err
	}
	if !test.State.Terminal() {
		return nil, apperrors.NotReady(
			fmt.Sprintf("test %s has not finished (state %s)", test.HashID, test.State))
	}

	var entries []model.ResultEntry
	if len(test.Results) > 0 {
		if unmarshalErr := json.Unmarshal(test.Results, &entries); unmarshalErr != nil {
			return nil, apperrors.Wrap(unmarshalErr, apperrors.ErrCodeInternal, "decode stored results")
		}
	}
	for i := range entries {
		entries[i].Message = s.catalog.Render(language, entries[i].Tag, entries[i].Args)
	}

	rawParams, err := test.RawParams()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode stored params")
	}

	class, _ := test.Class()
	return &model.ResultsResponse{
		HashID:    test.HashID,
		Params:    rawParams,
		Class:     class,
		CreatedAt: test.CreatedAt,
		Results:   entries,
	}, nil
}

// GetParams returns the raw parameters exactly as they were submitted.
func (s *TestService) GetParams(ctx context.Context, hashID string) (model.TestParams, error) {
	test, err := s.getByIdentity(ctx, hashID)
	if err != nil {
		return model.TestParams{}, err
	}
	return test.RawParams()
}

// History returns a filtered page of past and in-flight tests. A zero
// limit takes the configured default; limits above the maximum are
// clamped.
func (s *TestService) History(ctx context.Context, opts model.HistoryOptions) (*model.HistoryPage, error) {
	if opts.Limit <= 0 {
		opts.Limit = s.backend.HistoryDefaultLimit
	}
	if opts.Limit > s.backend.HistoryMaxLimit {
		opts.Limit = s.backend.HistoryMaxLimit
	}
	return s.store.History(ctx, opts)
}

// Profiles returns the accepted profile names.
func (s *TestService) Profiles() []string {
	return append([]string(nil), s.backend.Profiles...)
}

// Languages returns the supported result languages.
func (s *TestService) Languages() []string {
	return s.catalog.Languages()
}

// prepare canonicalizes, classifies and hashes one raw request.
func (s *TestService) prepare(raw model.TestParams) (model.CanonicalParams, model.DelegationClass, string, error) {
	canonical, err := params.Canonicalize(raw, params.Defaults{Profile: s.backend.DefaultProfile})
	if err != nil {
		return model.CanonicalParams{}, "", "", err
	}
	if !s.backend.HasProfile(canonical.Profile) {
		return model.CanonicalParams{}, "", "",
			apperrors.ValidationField("profile", fmt.Sprintf("unknown profile %q", canonical.Profile))
	}

	class := params.Classify(canonical)

	hashID, err := params.Identity(canonical)
	if err != nil {
		return model.CanonicalParams{}, "", "",
			apperrors.Wrap(err, apperrors.ErrCodeInternal, "derive test identity")
	}

	return canonical, class, hashID, nil
}

func (s *TestService) getByIdentity(ctx context.Context, hashID string) (*model.Test, error) {
	if !params.ValidIdentity(hashID) {
		return nil, apperrors.ValidationField("test_id",
			fmt.Sprintf("malformed test identifier %q", hashID))
	}
	return s.store.GetByHashID(ctx, hashID)
}
