package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	return log, &buf
}

func geminiServer(t *testing.T, status int, reply string, hits *int32, captured *generateRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		if captured != nil {
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(body, captured))
		}

		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
}

func candidateReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func TestGenerateSummary(t *testing.T) {
	var hits int32
	var captured generateRequest
	server := geminiServer(t, http.StatusOK, candidateReply("## Overview\n**Busy** community with `go` and [docs](https://go.dev)."), &hits, &captured)
	defer server.Close()

	log, logs := testLogger()
	client := NewGeminiClient("secret-key", server.URL, 5*time.Second, log)

	summary := client.GenerateSummary(context.Background(), "Title: hello\n", "subreddit", "golang")
	assert.Equal(t, "Overview\nBusy community with go and docs.", summary)
	assert.Equal(t, int32(1), hits)

	require.Len(t, captured.Contents, 1)
	require.Len(t, captured.Contents[0].Parts, 1)
	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "r/golang")
	assert.Contains(t, prompt, "Posts to analyze:\nTitle: hello\n")
	assert.Equal(t, generationConfig{Temperature: 0.6, TopK: 32, TopP: 0.8, MaxOutputTokens: 1500}, captured.GenerationConfig)

	assert.NotContains(t, logs.String(), "secret-key")
	assert.Contains(t, logs.String(), "key=****")
}

func TestGenerateBusinessInsights(t *testing.T) {
	var hits int32
	var captured generateRequest
	server := geminiServer(t, http.StatusOK, candidateReply("  Hire *remote* engineers.  "), &hits, &captured)
	defer server.Close()

	log, _ := testLogger()
	client := NewGeminiClient("secret-key", server.URL, 5*time.Second, log)

	insights := client.GenerateBusinessInsights(context.Background(), "digest", []string{"remote", "salary"}, "cscareerquestions")
	assert.Equal(t, "Hire remote engineers.", insights)

	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "r/cscareerquestions")
	assert.Contains(t, prompt, "Key discussion topics identified: remote, salary")
}

func TestUnconfiguredKey(t *testing.T) {
	log, _ := testLogger()
	for _, key := range []string{"", "   ", placeholderKey} {
		client := NewGeminiClient(key, "http://127.0.0.1:1", time.Second, log)
		assert.Equal(t, summaryKeyMessage, client.GenerateSummary(context.Background(), "x", "subreddit", "go"))
		assert.Equal(t, insightsKeyMessage, client.GenerateBusinessInsights(context.Background(), "x", nil, "go"))
	}
}

func TestUpstreamErrorIsReportedNotReturned(t *testing.T) {
	var hits int32
	server := geminiServer(t, http.StatusServiceUnavailable, `{"error":"overloaded"}`, &hits, nil)
	defer server.Close()

	log, logs := testLogger()
	client := NewGeminiClient("secret-key", server.URL, 5*time.Second, log)

	summary := client.GenerateSummary(context.Background(), "digest", "subreddit", "golang")
	assert.Equal(t, "Gemini API error: 503 - please try again later.", summary)
	assert.Contains(t, logs.String(), "overloaded")
}

func TestUnexpectedResponseShape(t *testing.T) {
	var hits int32
	server := geminiServer(t, http.StatusOK, `{"candidates":[]}`, &hits, nil)
	defer server.Close()

	log, _ := testLogger()
	client := NewGeminiClient("secret-key", server.URL, 5*time.Second, log)
	assert.Equal(t, unexpectedMessage, client.GenerateSummary(context.Background(), "digest", "subreddit", "golang"))
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	server := geminiServer(t, http.StatusInternalServerError, "boom", &hits, nil)
	defer server.Close()

	log, _ := testLogger()
	client := NewGeminiClient("secret-key", server.URL, 5*time.Second, log)

	for i := 0; i < breakerFailures; i++ {
		client.GenerateSummary(context.Background(), "digest", "subreddit", "golang")
	}
	assert.Equal(t, int32(breakerFailures), atomic.LoadInt32(&hits))

	summary := client.GenerateSummary(context.Background(), "digest", "subreddit", "golang")
	assert.Equal(t, unavailableMessage, summary)
	assert.Equal(t, int32(breakerFailures), atomic.LoadInt32(&hits), "open breaker must not reach the api")
}

func TestPromptClipsDigest(t *testing.T) {
	long := strings.Repeat("a", promptTextLimit+500)

	prompt := buildSummaryPrompt(long, "subreddit", "golang")
	assert.Contains(t, prompt, strings.Repeat("a", promptTextLimit)+"...")
	assert.NotContains(t, prompt, strings.Repeat("a", promptTextLimit+1))

	short := buildInsightsPrompt("short digest", []string{"go"}, "golang")
	assert.Contains(t, short, "Content summary:\nshort digest\n")
	assert.NotContains(t, short, "short digest...")
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bold", "a **strong** point", "a strong point"},
		{"italic", "an *emphasised* word", "an emphasised word"},
		{"headers", "# Title\n### Section\nbody", "Title\nSection\nbody"},
		{"fenced code", "```go\nfmt.Println()\n```\ndone", "fmt.Println()\ndone"},
		{"inline code", "use `go test` often", "use go test often"},
		{"links", "see [the docs](https://go.dev/doc) now", "see the docs now"},
		{"trim", "  \n plain \n ", "plain"},
		{"empty", "   ", emptyResponseMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cleanResponse(tc.input))
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "https://x/y?key=****", maskKey("https://x/y?key=abc123"))
	assert.Equal(t, "https://x/y?key=****&alt=json", maskKey("https://x/y?key=abc123&alt=json"))
}
