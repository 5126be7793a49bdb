package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://oauth.reddit.com"
	DefaultUserAgent = "RedditAnalysisBot/1.0 (Educational Research)"

	// max bytes of an error response body kept for logs
	errorBodyLimit = 1024
)

// Authenticator hands out bearer tokens for Reddit requests
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// RedditAPI performs authenticated GETs against the Reddit API
type RedditAPI struct {
	tokens            Authenticator
	baseURL           string
	userAgent         string
	httpClient        *http.Client
	limiter           *rate.Limiter
	log               *logrus.Logger
	sleep             func(ctx context.Context, d time.Duration) error
	maxRequestsPerMin int

	rateRemainingCached int
	rateResetCached     int
	rateUsedCached      int
	rateHeadersMutex    sync.RWMutex
}

// NewRedditAPI creates a new Reddit API client
func NewRedditAPI(
	tokens Authenticator,
	baseURL string,
	userAgent string,
	maxRequestsPerMinute int,
	timeout time.Duration,
	log *logrus.Logger,
) *RedditAPI {
	// default to 100 requests per minute (real Reddit limit)
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = 100
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// use 95% of the allowance, no burst
	perSecond := float64(maxRequestsPerMinute) / 60.0 * 0.95

	return &RedditAPI{
		tokens:            tokens,
		baseURL:           strings.TrimRight(baseURL, "/"),
		userAgent:         userAgent,
		httpClient:        &http.Client{Timeout: timeout},
		limiter:           rate.NewLimiter(rate.Limit(perSecond), 1),
		log:               log,
		sleep:             sleepContext,
		maxRequestsPerMin: maxRequestsPerMinute,
		rateResetCached:   600,
	}
}

// BaseURL returns the API root requests are built against
func (r *RedditAPI) BaseURL() string {
	return r.baseURL
}

// GetRateLimitStatus returns the last seen rate limit headers (remaining, reset seconds, used)
func (r *RedditAPI) GetRateLimitStatus() (int, int, int) {
	r.rateHeadersMutex.RLock()
	defer r.rateHeadersMutex.RUnlock()
	return r.rateRemainingCached, r.rateResetCached, r.rateUsedCached
}

// Fetch GETs endpoint with a bearer token, following the retry policy.
// Token failures are returned as-is and never retried.
func (r *RedditAPI) Fetch(ctx context.Context, endpoint string, policy RetryPolicy) ([]byte, error) {
	var (
		lastErr    error
		lastStatus int
		attempts   int
	)

	for retry := 0; retry <= policy.MaxRetries; retry++ {
		if retry > 0 {
			wait := policy.delay(retry)
			r.log.WithFields(logrus.Fields{
				"url":      endpoint,
				"retry":    retry,
				"wait":     wait.String(),
				"last_err": lastErr,
			}).Warn("Retrying Reddit request")

			if err := r.sleep(ctx, wait); err != nil {
				return nil, &FetchError{URL: endpoint, StatusCode: lastStatus, Attempts: attempts, Skippable: policy.Skippable, Err: err}
			}
		}

		token, err := r.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		attempts++
		body, status, err := r.get(ctx, endpoint, token)
		if err == nil {
			return body, nil
		}
		lastErr, lastStatus = err, status

		if ctx.Err() != nil {
			break
		}
	}

	r.log.WithFields(logrus.Fields{
		"url":         endpoint,
		"attempts":    attempts,
		"status_code": lastStatus,
	}).WithError(lastErr).Error("Reddit request failed")

	return nil, &FetchError{
		URL:        endpoint,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Skippable:  policy.Skippable,
		Err:        lastErr,
	}
}

// get performs a single GET and returns the body of a 2xx response
func (r *RedditAPI) get(ctx context.Context, endpoint, token string) ([]byte, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	r.updateRateLimits(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		r.log.WithFields(logrus.Fields{
			"url":           endpoint,
			"response_body": strings.TrimSpace(string(body)),
			"status_code":   resp.StatusCode,
		}).Debug("Reddit API error response")
		return nil, resp.StatusCode, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// updateRateLimits records the X-Ratelimit headers for debugging
func (r *RedditAPI) updateRateLimits(resp *http.Response) {
	// X-Ratelimit-Used: approximate number of requests used in this period
	// X-Ratelimit-Remaining: approximate number of requests left
	// X-Ratelimit-Reset: approximate seconds to end of period
	used := getHeaderAsInt(resp.Header, "X-Ratelimit-Used")
	remaining := getHeaderAsInt(resp.Header, "X-Ratelimit-Remaining")
	reset := getHeaderAsInt(resp.Header, "X-Ratelimit-Reset")

	if reset == 0 && used == 0 {
		return
	}

	r.rateHeadersMutex.Lock()
	r.rateRemainingCached = remaining
	r.rateResetCached = reset
	r.rateUsedCached = used
	r.rateHeadersMutex.Unlock()

	// reddit allocates 10 minutes worth of the per-minute budget per period
	totalAllocation := float64(r.maxRequestsPerMin * 10)

	r.log.WithFields(logrus.Fields{
		"used":      used,
		"remaining": remaining,
		"reset_sec": reset,
		"usage_pct": float64(used) / totalAllocation * 100,
	}).Debug("Updated rate limit status from Reddit headers")
}

func getHeaderAsInt(header http.Header, name string) int {
	value := header.Get(name)
	if value == "" {
		return 0
	}

	// reddit sends remaining/reset as floats ("598.0")
	if i := strings.IndexByte(value, '.'); i >= 0 {
		value = value[:i]
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}

	return intValue
}
