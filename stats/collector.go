package stats

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-analyzer/api"
	"github.com/brettboylen/reddit-analyzer/models"
	"github.com/brettboylen/reddit-analyzer/parser"
)

const (
	defaultPostsPerSort = 35
	defaultMaxPosts     = 100
	defaultSortDelay    = 500 * time.Millisecond
)

// sort orders are fetched in this order; earlier sorts win dedup
var defaultSortOrders = []string{"hot", "top", "new"}

// Fetcher performs one authenticated GET under a retry policy
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, policy api.RetryPolicy) ([]byte, error)
}

// Collector gathers the posts for one analysis target
type Collector struct {
	fetcher      Fetcher
	baseURL      string
	sortOrders   []string
	postsPerSort int
	maxPosts     int
	sortDelay    time.Duration
	threadPolicy api.RetryPolicy
	sortPolicy   api.RetryPolicy
	log          *logrus.Logger
}

// NewCollector creates a new collector. sortDelay is waited between
// successive sort order fetches to stay clear of Reddit's rate limits.
func NewCollector(fetcher Fetcher, baseURL string, sortDelay time.Duration, log *logrus.Logger) *Collector {
	if sortDelay < 0 {
		sortDelay = defaultSortDelay
	}
	return &Collector{
		fetcher:      fetcher,
		baseURL:      strings.TrimRight(baseURL, "/"),
		sortOrders:   defaultSortOrders,
		postsPerSort: defaultPostsPerSort,
		maxPosts:     defaultMaxPosts,
		sortDelay:    sortDelay,
		threadPolicy: api.ThreadPolicy(),
		sortPolicy:   api.ListingPolicy(),
		log:          log,
	}
}

// Collect fetches and merges the posts for target. Thread targets fail hard
// once retries are exhausted; subreddit targets skip sort orders that fail.
func (c *Collector) Collect(ctx context.Context, target models.Target) ([]models.Post, error) {
	if target.IsThread() {
		return c.collectThread(ctx, target.Input)
	}
	return c.collectSubreddit(ctx, target.Input)
}

func (c *Collector) collectThread(ctx context.Context, input string) ([]models.Post, error) {
	endpoint := c.threadEndpoint(NormalizeThreadURL(input))

	c.log.WithField("url", endpoint).Info("Fetching thread from Reddit API")

	body, err := c.fetcher.Fetch(ctx, endpoint, c.threadPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread: %w", err)
	}

	posts, err := parser.ParseThread(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse thread: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"url":        endpoint,
		"post_count": len(posts),
	}).Info("Fetched thread")

	return posts, nil
}

func (c *Collector) collectSubreddit(ctx context.Context, input string) ([]models.Post, error) {
	subreddit := ExtractSubredditName(input)
	collected := make([]models.Post, 0, len(c.sortOrders)*c.postsPerSort)

	for i, sortOrder := range c.sortOrders {
		if i > 0 {
			if err := sleepContext(ctx, c.sortDelay); err != nil {
				return nil, err
			}
		}

		endpoint := fmt.Sprintf("%s/r/%s/%s.json?limit=%d&raw_json=1", c.baseURL, subreddit, sortOrder, c.postsPerSort)
		logger := c.log.WithFields(logrus.Fields{
			"subreddit": subreddit,
			"sort":      sortOrder,
		})

		posts, err := c.fetchListing(ctx, endpoint)
		if err != nil {
			if isSkippable(err) {
				logger.WithError(err).Warn("Skipping sort order")
				continue
			}
			return nil, err
		}

		logger.WithField("count", len(posts)).Info("Fetched posts for sort order")
		collected = append(collected, posts...)
	}

	unique := Dedupe(collected)
	if len(unique) > c.maxPosts {
		unique = unique[:c.maxPosts]
	}

	c.log.WithFields(logrus.Fields{
		"subreddit": subreddit,
		"fetched":   len(collected),
		"unique":    len(unique),
	}).Info("Collected subreddit posts")

	return unique, nil
}

func (c *Collector) fetchListing(ctx context.Context, endpoint string) ([]models.Post, error) {
	body, err := c.fetcher.Fetch(ctx, endpoint, c.sortPolicy)
	if err != nil {
		return nil, err
	}

	posts, err := parser.ParsePosts(body)
	if err != nil {
		// an undecodable payload counts as a failed fetch for this source
		return nil, &api.FetchError{URL: endpoint, Attempts: 1, Skippable: c.sortPolicy.Skippable, Err: err}
	}
	return posts, nil
}

// threadEndpoint points the thread path at the API host
func (c *Collector) threadEndpoint(threadURL string) string {
	path := threadURL
	if u, err := url.Parse(threadURL); err == nil && u.Host != "" {
		path = u.Path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return c.baseURL + strings.TrimSuffix(path, "/") + ".json?raw_json=1"
}

// Dedupe drops posts whose id was already seen, keeping first occurrences in order
func Dedupe(posts []models.Post) []models.Post {
	seen := make(map[string]struct{}, len(posts))
	unique := make([]models.Post, 0, len(posts))
	for _, post := range posts {
		if _, ok := seen[post.ID]; ok {
			continue
		}
		seen[post.ID] = struct{}{}
		unique = append(unique, post)
	}
	return unique
}

// ExtractSubredditName accepts a full URL containing /r/<name>, an r/<name>
// shorthand or a bare name and returns the bare name
func ExtractSubredditName(input string) string {
	input = strings.TrimSpace(input)

	var name string
	switch {
	case strings.Contains(input, "reddit.com/r/"):
		name = input[strings.Index(input, "/r/")+3:]
	case strings.HasPrefix(input, "r/"):
		name = input[2:]
	default:
		return input
	}

	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	return name
}

// NormalizeThreadURL strips the query string and ensures a trailing slash
func NormalizeThreadURL(input string) string {
	input = strings.TrimSpace(input)
	if i := strings.Index(input, "?"); i >= 0 {
		input = input[:i]
	}
	if !strings.HasSuffix(input, "/") {
		input += "/"
	}
	return input
}

func isSkippable(err error) bool {
	var fetchErr *api.FetchError
	return errors.As(err, &fetchErr) && fetchErr.Skippable
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
