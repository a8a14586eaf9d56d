package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "nikkeicli/internal/errors"
	"nikkeicli/internal/services"
	"nikkeicli/pkg/contracts/domain"
)

type stubAnalysisService struct {
	snapshot    *domain.Snapshot
	runErr      error
	latestErr   error
	status      services.Status
	batchCalls  int
	liveCalls   int
	moversLimit int
}

func (s *stubAnalysisService) RunRealtime(ctx context.Context) (*domain.Snapshot, error) {
	s.liveCalls++
	return s.snapshot, s.runErr
}

func (s *stubAnalysisService) RunBatch(ctx context.Context) (*domain.Snapshot, error) {
	s.batchCalls++
	return s.snapshot, s.runErr
}

func (s *stubAnalysisService) Status() services.Status { return s.status }

func (s *stubAnalysisService) Latest() (*domain.Snapshot, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return s.snapshot, nil
}

func (s *stubAnalysisService) Movers(limit int) ([]domain.ContributionEntry, []domain.ContributionEntry, error) {
	if s.latestErr != nil {
		return nil, nil, s.latestErr
	}
	s.moversLimit = limit
	gainers := []domain.ContributionEntry{{Code: "7203", Name: "Toyota Motor", Value: 42.5}}
	losers := []domain.ContributionEntry{{Code: "6758", Name: "Sony Group", Value: -17.3}}
	return gainers, losers, nil
}

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		RunID:       "test-run",
		Period:      time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		GeneratedAt: time.Now(),
		IndexChange: 100,
		Stocks: []domain.ContributionEntry{
			{Code: "7203", Name: "Toyota Motor", Value: 100},
		},
	}
}

func newTestHandler(svc AnalysisServiceInterface) *AnalysisHandler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAnalysisHandler(svc, logger, apierrors.NewErrorHandler(logger))
}

func TestRunAnalysisDefaultsToRealtime(t *testing.T) {
	svc := &stubAnalysisService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.liveCalls)
	assert.Equal(t, 0, svc.batchCalls)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
}

func TestRunAnalysisBatchMode(t *testing.T) {
	svc := &stubAnalysisService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"mode":"batch"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.batchCalls)
	assert.Equal(t, 0, svc.liveCalls)
}

func TestRunAnalysisInvalidMode(t *testing.T) {
	svc := &stubAnalysisService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"mode":"yearly"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.liveCalls)
	assert.Equal(t, 0, svc.batchCalls)
}

func TestRunAnalysisConflict(t *testing.T) {
	svc := &stubAnalysisService{runErr: services.ErrAnalysisRunning}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ANALYSIS_RUNNING", body["error_code"])
}

func TestRunAnalysisFailure(t *testing.T) {
	svc := &stubAnalysisService{runErr: services.ErrNoIndexChange}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ANALYSIS_FAILED", body["error_code"])
}

func TestGetDataNoSnapshot(t *testing.T) {
	svc := &stubAnalysisService{latestErr: services.ErrNoSnapshot}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NO_ANALYSIS_DATA", body["error_code"])
}

func TestGetData(t *testing.T) {
	svc := &stubAnalysisService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string          `json:"status"`
		Data   domain.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test-run", body.Data.RunID)
	require.Len(t, body.Data.Stocks, 1)
	assert.Equal(t, "7203", body.Data.Stocks[0].Code)
}

func TestGetStatus(t *testing.T) {
	svc := &stubAnalysisService{status: services.Status{State: services.RunStateIdle}}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"idle"`)
}

func TestGetMovers(t *testing.T) {
	svc := &stubAnalysisService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/movers?limit=3", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.moversLimit)
	assert.Contains(t, rec.Body.String(), "Toyota Motor")
	assert.Contains(t, rec.Body.String(), "Sony Group")
}

func TestGetMoversInvalidLimit(t *testing.T) {
	svc := &stubAnalysisService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	for _, limit := range []string{"0", "101", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/movers?limit="+limit, nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("1.0.0")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
	assert.Contains(t, rec.Body.String(), `"1.0.0"`)
}
