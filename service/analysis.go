// Package service runs one analysis request end to end: collect posts,
// compute metrics, condense a digest and ask the summarizer about it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-analyzer/analysis"
	"github.com/brettboylen/reddit-analyzer/models"
	"github.com/brettboylen/reddit-analyzer/stats"
)

const unknownSubreddit = "unknown"

var (
	ErrMissingInput        = errors.New("input is required")
	ErrUnknownAnalysisType = errors.New("analysis_type must be subreddit or thread")
)

// PostCollector gathers the posts for an analysis target
type PostCollector interface {
	Collect(ctx context.Context, target models.Target) ([]models.Post, error)
}

// Summarizer turns a digest into commentary. Implementations report their
// own failures in the returned text.
type Summarizer interface {
	GenerateSummary(ctx context.Context, text, analysisType, subreddit string) string
	GenerateBusinessInsights(ctx context.Context, text string, topics []string, subreddit string) string
}

// Analyzer orchestrates an analysis request
type Analyzer struct {
	collector  PostCollector
	engine     *analysis.Engine
	summarizer Summarizer
	log        *logrus.Logger
	now        func() time.Time
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(collector PostCollector, engine *analysis.Engine, summarizer Summarizer, log *logrus.Logger) *Analyzer {
	return &Analyzer{
		collector:  collector,
		engine:     engine,
		summarizer: summarizer,
		log:        log,
		now:        time.Now,
	}
}

// Analyze validates the request, collects its posts and builds the response
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	target, err := targetFor(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	log := a.log.WithFields(logrus.Fields{
		"request_id":    requestID,
		"analysis_type": target.Kind,
		"input":         target.Input,
	})
	log.Info("Starting analysis")
	started := a.now()

	posts, err := a.collector.Collect(ctx, target)
	if err != nil {
		log.WithError(err).Error("Failed to collect posts")
		return nil, fmt.Errorf("failed to collect posts: %w", err)
	}

	sentiment := a.engine.Classify(posts)
	topics := a.engine.ExtractTopics(posts)
	keywords := a.engine.KeywordFrequency(posts)
	postStats := analysis.CalculateStats(posts)

	subreddit := stats.ExtractSubredditName(target.Input)
	if subreddit == "" {
		subreddit = unknownSubreddit
	}

	digest := analysis.CombinePostsText(posts)
	summary := a.summarizer.GenerateSummary(ctx, digest, target.Kind, subreddit)
	insights := a.summarizer.GenerateBusinessInsights(ctx, digest, topics, subreddit)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"posts":     postStats.TotalPosts,
		"comments":  postStats.TotalComments,
		"sentiment": sentiment.OverallSentiment,
		"duration":  a.now().Sub(started).String(),
	}).Info("Analysis complete")

	if posts == nil {
		posts = []models.Post{}
	}

	return &models.AnalysisResponse{
		RequestID:         requestID,
		InputSource:       req.Input,
		AnalysisType:      target.Kind,
		Subreddit:         subreddit,
		Timestamp:         started,
		SentimentAnalysis: sentiment,
		KeyTopics:         topics,
		KeywordFrequency:  keywords,
		LLMSummary:        summary,
		BusinessInsights:  insights,
		AnalyzedPosts:     posts,
		Stats:             postStats,
	}, nil
}

func targetFor(req models.AnalysisRequest) (models.Target, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return models.Target{}, ErrMissingInput
	}

	kind := strings.ToLower(strings.TrimSpace(req.AnalysisType))
	switch kind {
	case "":
		kind = models.KindSubreddit
	case models.KindSubreddit, models.KindThread:
	default:
		return models.Target{}, ErrUnknownAnalysisType
	}

	return models.Target{Kind: kind, Input: input}, nil
}
