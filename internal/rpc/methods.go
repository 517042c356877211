package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/huguei/zonemaster-backend/internal/domain/model"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return apperrors.Validation("params are required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed params")
	}
	return nil
}

// versionInfoResult is the version_info reply.
type versionInfoResult struct {
	BackendVersion string   `json:"zonemaster_backend"`
	Languages      []string `json:"languages"`
}

func (s *Server) versionInfo(_ context.Context, _ json.RawMessage) (any, error) {
	return versionInfoResult{
		BackendVersion: Version,
		Languages:      s.tests.Languages(),
	}, nil
}

func (s *Server) profileNames(_ context.Context, _ json.RawMessage) (any, error) {
	return s.tests.Profiles(), nil
}

// startTestResult is the start_domain_test reply.
type startTestResult struct {
	TestID  string `json:"test_id"`
	Created bool   `json:"created"`
}

func (s *Server) startDomainTest(ctx context.Context, raw json.RawMessage) (any, error) {
	var p model.TestParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	test, created, err := s.tests.StartTest(ctx, p)
	if err != nil {
		return nil, err
	}
	return startTestResult{TestID: test.HashID, Created: created}, nil
}

func (s *Server) startBatchJob(ctx context.Context, raw json.RawMessage) (any, error) {
	var p model.StartBatchRequest
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.tests.StartBatch(ctx, p)
}

// identityParams is the common single-identifier parameter shape.
type identityParams struct {
	TestID string `json:"test_id"`
}

func (s *Server) testProgress(ctx context.Context, raw json.RawMessage) (any, error) {
	var p identityParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.tests.Progress(ctx, p.TestID)
}

// resultsParams is the get_test_results parameter shape.
type resultsParams struct {
	TestID   string `json:"test_id"`
	Language string `json:"language"`
}

func (s *Server) getTestResults(ctx context.Context, raw json.RawMessage) (any, error) {
	var p resultsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.tests.Results(ctx, p.TestID, p.Language)
}

func (s *Server) getTestParams(ctx context.Context, raw json.RawMessage) (any, error) {
	var p identityParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return s.tests.GetParams(ctx, p.TestID)
}

// historyParams is the get_test_history parameter shape. Class accepts
// "delegated" or "undelegated"; empty means both.
type historyParams struct {
	Domain   string `json:"domain"`
	Class    string `json:"class"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
	BeforeID int64  `json:"before_id"`
}

func (s *Server) getTestHistory(ctx context.Context, raw json.RawMessage) (any, error) {
	var p historyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	opts := model.HistoryOptions{
		Offset:   p.Offset,
		Limit:    p.Limit,
		BeforeID: p.BeforeID,
	}
	if d := strings.TrimSpace(p.Domain); d != "" {
		opts.Filter.Domain = &d
	}
	if c := strings.TrimSpace(p.Class); c != "" {
		class := model.DelegationClass(strings.ToLower(c))
		if !class.Valid() {
			return nil, apperrors.ValidationField("class",
				"class must be \"delegated\" or \"undelegated\"")
		}
		opts.Filter.Class = &class
	}

	return s.tests.History(ctx, opts)
}
