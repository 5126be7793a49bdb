package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/reddit-analyzer/api"
	"github.com/brettboylen/reddit-analyzer/models"
	"github.com/brettboylen/reddit-analyzer/parser"
	"github.com/brettboylen/reddit-analyzer/service"
)

type stubAnalyzer struct {
	requests []models.AnalysisRequest
	err      error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AnalysisResponse{
		RequestID:    "req-1",
		InputSource:  req.Input,
		AnalysisType: req.AnalysisType,
		KeywordFrequency: models.KeywordFrequency{
			{Keyword: "golang", Count: 4},
			{Keyword: "generics", Count: 2},
		},
	}, nil
}

var clientSeq int32

func newTestServer(analyzer Analyzer) *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(Config{Port: 0, CORSOrigins: []string{"http://localhost:3000"}, MaxRequestsPerMinute: 60}, analyzer, log)
}

// do sends a request from a fresh client address so the rate limiter stays out of the way
func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.0.%d", atomic.AddInt32(&clientSeq, 1)))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestAnalyzeReddit(t *testing.T) {
	analyzer := &stubAnalyzer{}
	s := newTestServer(analyzer)

	rec := do(s, http.MethodPost, "/api/analyze-reddit", `{"input":"r/golang","analysis_type":"subreddit"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, analyzer.requests, 1)
	assert.Equal(t, models.AnalysisRequest{Input: "r/golang", AnalysisType: "subreddit"}, analyzer.requests[0])

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.JSONEq(t, `"req-1"`, string(resp["request_id"]))
	assert.Equal(t, `{"golang":4,"generics":2}`, string(resp["keyword_frequency"]))
}

func TestAnalyzeRedditInvalidBody(t *testing.T) {
	analyzer := &stubAnalyzer{}
	s := newTestServer(analyzer)

	rec := do(s, http.MethodPost, "/api/analyze-reddit", `{"input":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeError(t, rec))
	assert.Empty(t, analyzer.requests)
}

func TestAnalyzeSubredditAndThread(t *testing.T) {
	analyzer := &stubAnalyzer{}
	s := newTestServer(analyzer)

	rec := do(s, http.MethodPost, "/api/analyze-subreddit?subreddit=golang", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodPost, "/api/analyze-thread?threadUrl=https%3A%2F%2Fwww.reddit.com%2Fr%2Fgo%2Fcomments%2Fa%2Fb%2F", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, analyzer.requests, 2)
	assert.Equal(t, models.AnalysisRequest{Input: "golang", AnalysisType: models.KindSubreddit}, analyzer.requests[0])
	assert.Equal(t, models.AnalysisRequest{Input: "https://www.reddit.com/r/go/comments/a/b/", AnalysisType: models.KindThread}, analyzer.requests[1])
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"missing input", service.ErrMissingInput, http.StatusBadRequest, service.ErrMissingInput.Error()},
		{"bad type", service.ErrUnknownAnalysisType, http.StatusBadRequest, service.ErrUnknownAnalysisType.Error()},
		{"auth", fmt.Errorf("collect: %w", &api.AuthError{StatusCode: 401, Message: "secret detail"}), http.StatusBadGateway, authFailedMessage},
		{"fetch", fmt.Errorf("collect: %w", &api.FetchError{URL: "https://oauth.reddit.com/x", Attempts: 4}), http.StatusBadGateway, fetchFailedMessage},
		{"parse", &parser.ParseError{Source: "thread", Err: errors.New("bad json")}, http.StatusBadGateway, fetchFailedMessage},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, internalMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&stubAnalyzer{err: tc.err})
			rec := do(s, http.MethodPost, "/api/analyze-subreddit?subreddit=golang", "")

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, decodeError(t, rec))
			assert.NotContains(t, rec.Body.String(), "secret detail")
			assert.NotContains(t, rec.Body.String(), "oauth.reddit.com")
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubAnalyzer{})

	rec := do(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, healthMessage, rec.Body.String())

	rec = do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRateLimitPerClient(t *testing.T) {
	s := newTestServer(&stubAnalyzer{})

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-Real-IP", "192.0.2.1")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&stubAnalyzer{})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze-reddit", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("X-Real-IP", "192.0.2.50")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
