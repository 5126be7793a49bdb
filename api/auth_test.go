package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, hits *int32, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeToken(w http.ResponseWriter, token string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"access_token":"` + token + `","token_type":"bearer","expires_in":` + strconv.Itoa(expiresIn) + `,"scope":"*"}`))
}

func TestTokenPasswordGrant(t *testing.T) {
	var hits int32
	server := newTokenServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		assert.Equal(t, "hunter2", r.PostForm.Get("password"))
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		writeToken(w, "abc", 3600)
	})

	p := NewTokenProvider(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Username:     "alice",
		Password:     "hunter2",
		UserAgent:    "test-agent/1.0",
		AuthURL:      server.URL,
	}, testLogger())

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	// cached
	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTokenClientCredentialsGrant(t *testing.T) {
	var hits int32
	server := newTokenServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		writeToken(w, "app-only", 3600)
	})

	p := NewTokenProvider(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      server.URL,
	}, testLogger())

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "app-only", token)
}

func TestTokenRefreshesInsideSafetyMargin(t *testing.T) {
	var hits int32
	server := newTokenServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&hits) == 1 {
			writeToken(w, "first", 3600)
			return
		}
		writeToken(w, "second", 3600)
	})

	p := NewTokenProvider(TokenConfig{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL}, testLogger())
	start := time.Now()
	clock := start
	p.now = func() time.Time { return clock }

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	// well before expiry minus margin
	clock = start.Add(3400 * time.Second)
	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	// inside the 60s margin
	clock = start.Add(3545 * time.Second)
	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", token)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestTokenConcurrentCallersShareOneExchange(t *testing.T) {
	var hits int32
	server := newTokenServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		writeToken(w, "shared", 3600)
	})

	p := NewTokenProvider(TokenConfig{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL}, testLogger())

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := p.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	for _, token := range tokens {
		assert.Equal(t, "shared", token)
	}
}

func TestTokenExchangeFailure(t *testing.T) {
	var hits int32
	server := newTokenServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	p := NewTokenProvider(TokenConfig{ClientID: "id", ClientSecret: "bad", AuthURL: server.URL}, testLogger())

	_, err := p.Token(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestTokenMissingAccessToken(t *testing.T) {
	var hits int32
	server := newTokenServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"bearer","expires_in":3600}`))
	})

	p := NewTokenProvider(TokenConfig{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL}, testLogger())

	_, err := p.Token(context.Background())

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
}
