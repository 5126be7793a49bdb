package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// UnknownAuthor is used when a post carries no author
const UnknownAuthor = "unknown"

// Analysis kinds accepted by the collector
const (
	KindSubreddit = "subreddit"
	KindThread    = "thread"
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Target describes what to analyze: a subreddit (bare name, r/name or URL) or a thread URL
type Target struct {
	Kind  string `json:"kind"`
	Input string `json:"input"`
}

// IsThread reports whether the target points at a single discussion thread
func (t Target) IsThread() bool {
	return t.Kind == KindThread
}

// Post represents a normalized Reddit post
type Post struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Author       string    `json:"author"`
	Upvotes      int       `json:"upvotes"`
	CreatedAt    time.Time `json:"created_at"`
	CommentCount int       `json:"comment_count"`
	Sentiment    string    `json:"sentiment,omitempty"`
}

// SentimentSummary holds the share of posts per sentiment class
type SentimentSummary struct {
	PositivePercentage float64 `json:"positive_percentage"`
	NeutralPercentage  float64 `json:"neutral_percentage"`
	NegativePercentage float64 `json:"negative_percentage"`
	OverallSentiment   string  `json:"overall_sentiment"`
}

// KeywordCount is a single ranked keyword
type KeywordCount struct {
	Keyword string
	Count   int
}

// KeywordFrequency is an ordered keyword -> count mapping, highest count first
type KeywordFrequency []KeywordCount

// Get returns the count for keyword and whether it is present
func (kf KeywordFrequency) Get(keyword string) (int, bool) {
	for _, kc := range kf {
		if kc.Keyword == keyword {
			return kc.Count, true
		}
	}
	return 0, false
}

// MarshalJSON encodes the frequency as a JSON object keeping rank order
func (kf KeywordFrequency) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kc := range kf {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(kc.Keyword)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(kc.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AnalysisStats holds descriptive statistics over a post set
type AnalysisStats struct {
	TotalPosts      int     `json:"total_posts"`
	TotalComments   int     `json:"total_comments"`
	TotalUsers      int     `json:"total_users"`
	MostActiveUser  string  `json:"most_active_user"`
	MostUpvotedPost string  `json:"most_upvoted_post"`
	AverageScore    float64 `json:"average_score"`
}

// AnalysisRequest is the inbound analysis request body
type AnalysisRequest struct {
	Input        string `json:"input"`
	AnalysisType string `json:"analysis_type"`
}

// AnalysisResponse packages everything computed for one request
type AnalysisResponse struct {
	RequestID         string           `json:"request_id"`
	InputSource       string           `json:"input_source"`
	AnalysisType      string           `json:"analysis_type"`
	Subreddit         string           `json:"subreddit"`
	Timestamp         time.Time        `json:"timestamp"`
	SentimentAnalysis SentimentSummary `json:"sentiment_analysis"`
	KeyTopics         []string         `json:"key_topics"`
	KeywordFrequency  KeywordFrequency `json:"keyword_frequency"`
	LLMSummary        string           `json:"llm_summary"`
	BusinessInsights  string           `json:"business_insights"`
	AnalyzedPosts     []Post           `json:"analyzed_posts"`
	Stats             AnalysisStats    `json:"stats"`
}
