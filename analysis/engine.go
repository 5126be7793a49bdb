// Package analysis derives sentiment, topics, keyword frequency and summary
// statistics from a set of posts, and condenses posts into a text digest.
package analysis

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/brettboylen/reddit-analyzer/models"
)

const (
	maxTopics      = 15
	maxKeywords    = 20
	minTokenLength = 4

	// a class needs this many more hits than the other to win
	sentimentMargin = 1
)

var nonWord = regexp.MustCompile(`\W+`)

// Engine computes metrics over a post set using a fixed lexicon
type Engine struct {
	positive  []string
	negative  []string
	topics    map[string]struct{}
	stopWords map[string]struct{}
}

// NewEngine creates a new metrics engine
func NewEngine(lexicon Lexicon) *Engine {
	return &Engine{
		positive:  lexicon.Positive,
		negative:  lexicon.Negative,
		topics:    toSet(lexicon.Topics),
		stopWords: toSet(lexicon.StopWords),
	}
}

// Classify labels every post in place and returns the share of each class.
// An empty set is reported as entirely neutral.
func (e *Engine) Classify(posts []models.Post) models.SentimentSummary {
	var positive, neutral, negative int

	for i := range posts {
		counts := tokenCounts(postText(posts[i]))
		pos := sumCounts(counts, e.positive)
		neg := sumCounts(counts, e.negative)

		switch {
		case pos > neg+sentimentMargin:
			positive++
			posts[i].Sentiment = models.SentimentPositive
		case neg > pos+sentimentMargin:
			negative++
			posts[i].Sentiment = models.SentimentNegative
		default:
			neutral++
			posts[i].Sentiment = models.SentimentNeutral
		}
	}

	total := len(posts)
	if total == 0 {
		return models.SentimentSummary{
			PositivePercentage: 0,
			NeutralPercentage:  100,
			NegativePercentage: 0,
			OverallSentiment:   models.SentimentNeutral,
		}
	}

	summary := models.SentimentSummary{
		PositivePercentage: percentage(positive, total),
		NeutralPercentage:  percentage(neutral, total),
		NegativePercentage: percentage(negative, total),
	}

	p, n, neg := summary.PositivePercentage, summary.NeutralPercentage, summary.NegativePercentage
	switch {
	case p > neg && p > n:
		summary.OverallSentiment = models.SentimentPositive
	case neg > p && neg > n:
		summary.OverallSentiment = models.SentimentNegative
	default:
		summary.OverallSentiment = models.SentimentNeutral
	}

	return summary
}

// ExtractTopics returns up to 15 recurring tokens, most frequent first.
// Tokens on the topic allow-list are kept even if they are stop words.
func (e *Engine) ExtractTopics(posts []models.Post) []string {
	c := newCounter()
	for _, post := range posts {
		for _, token := range tokenize(postText(post)) {
			if len(token) < minTokenLength {
				continue
			}
			if _, ok := e.topics[token]; ok || !e.isStopWord(token) {
				c.add(token)
			}
		}
	}

	ranked := c.ranked(maxTopics)
	topics := make([]string, 0, len(ranked))
	for _, kc := range ranked {
		topics = append(topics, kc.Keyword)
	}
	return topics
}

// KeywordFrequency returns up to 20 recurring non stop-word tokens with
// their counts, most frequent first
func (e *Engine) KeywordFrequency(posts []models.Post) models.KeywordFrequency {
	c := newCounter()
	for _, post := range posts {
		for _, token := range tokenize(postText(post)) {
			if len(token) >= minTokenLength && !e.isStopWord(token) {
				c.add(token)
			}
		}
	}
	return models.KeywordFrequency(c.ranked(maxKeywords))
}

func (e *Engine) isStopWord(token string) bool {
	_, ok := e.stopWords[token]
	return ok
}

// CalculateStats computes descriptive statistics over posts
func CalculateStats(posts []models.Post) models.AnalysisStats {
	stats := models.AnalysisStats{TotalPosts: len(posts)}
	if len(posts) == 0 {
		return stats
	}

	postsByAuthor := newCounter()
	mostUpvoted := posts[0]
	totalUpvotes := 0

	for _, post := range posts {
		stats.TotalComments += post.CommentCount
		totalUpvotes += post.Upvotes

		if post.Author != "" && post.Author != models.UnknownAuthor {
			postsByAuthor.add(post.Author)
		}
		if post.Upvotes > mostUpvoted.Upvotes {
			mostUpvoted = post
		}
	}

	stats.TotalUsers = len(postsByAuthor.order)
	stats.MostUpvotedPost = mostUpvoted.Title
	stats.MostActiveUser = postsByAuthor.top()
	stats.AverageScore = round1(float64(totalUpvotes) / float64(len(posts)))

	return stats
}

func postText(post models.Post) string {
	return strings.ToLower(post.Title + " " + post.Content)
}

// tokenize splits on runs of non-word characters, dropping empty tokens
func tokenize(text string) []string {
	parts := nonWord.Split(text, -1)
	tokens := parts[:0]
	for _, part := range parts {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

func tokenCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, token := range tokenize(text) {
		counts[token]++
	}
	return counts
}

func sumCounts(counts map[string]int, terms []string) int {
	total := 0
	for _, term := range terms {
		total += counts[term]
	}
	return total
}

func percentage(count, total int) float64 {
	return round1(float64(count) * 100 / float64(total))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// counter counts tokens and remembers first-seen order for stable ranking
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(token string) {
	if _, ok := c.counts[token]; !ok {
		c.order = append(c.order, token)
	}
	c.counts[token]++
}

// ranked returns tokens seen more than once, highest count first, ties in
// first-seen order, at most limit entries
func (c *counter) ranked(limit int) []models.KeywordCount {
	ranked := make([]models.KeywordCount, 0, len(c.order))
	for _, token := range c.order {
		if n := c.counts[token]; n > 1 {
			ranked = append(ranked, models.KeywordCount{Keyword: token, Count: n})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// top returns the most counted token, ties to the first seen
func (c *counter) top() string {
	best, bestCount := "", 0
	for _, token := range c.order {
		if n := c.counts[token]; n > bestCount {
			best, bestCount = token, n
		}
	}
	return best
}
