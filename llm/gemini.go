// Package llm talks to the Gemini text-generation API to produce the
// community summary and business insights for an analysis.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	DefaultAPIURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

	placeholderKey  = "YOUR_GEMINI_API_KEY_HERE"
	promptTextLimit = 4000
	errorBodyLimit  = 1024
	breakerFailures = 3
	breakerCooldown = 30 * time.Second

	summaryKeyMessage    = "Please configure your Gemini API key to enable AI-powered insights."
	insightsKeyMessage   = "Please configure your Gemini API key to enable AI-powered business insights."
	unavailableMessage   = "AI analysis is temporarily unavailable, please try again later."
	unexpectedMessage    = "AI analysis completed but response format was unexpected."
	emptyResponseMessage = "No response generated."
)

var (
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern     = regexp.MustCompile(`\*([^*]+)\*`)
	headerPattern     = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	codeFencePattern  = regexp.MustCompile("```[A-Za-z0-9_-]*\\n?")
	inlineCodePattern = regexp.MustCompile("`([^`]+)`")
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	apiKeyPattern     = regexp.MustCompile(`(key=)[^&]+`)
)

// GeminiClient generates analysis commentary. It never fails the caller:
// configuration problems and upstream errors come back as fixed messages.
type GeminiClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Logger
}

// StatusError is a non-2xx answer from the Gemini API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini api returned status %d: %s", e.StatusCode, e.Body)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(apiKey, apiURL string, timeout time.Duration, log *logrus.Logger) *GeminiClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	g := &GeminiClient{
		apiKey:     strings.TrimSpace(apiKey),
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gemini",
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return g
}

// GenerateSummary produces a community summary of the digest
func (g *GeminiClient) GenerateSummary(ctx context.Context, text, analysisType, subreddit string) string {
	if !g.configured() {
		return summaryKeyMessage
	}
	return g.generate(ctx, buildSummaryPrompt(text, analysisType, subreddit))
}

// GenerateBusinessInsights produces recommendations from the digest and its key topics
func (g *GeminiClient) GenerateBusinessInsights(ctx context.Context, text string, topics []string, subreddit string) string {
	if !g.configured() {
		return insightsKeyMessage
	}
	return g.generate(ctx, buildInsightsPrompt(text, topics, subreddit))
}

func (g *GeminiClient) configured() bool {
	return g.apiKey != "" && g.apiKey != placeholderKey
}

func (g *GeminiClient) generate(ctx context.Context, prompt string) string {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.call(ctx, prompt)
	})
	if err != nil {
		return g.failureMessage(err)
	}

	response := result.(*generateResponse)
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		g.log.Warn("Gemini response had no candidates")
		return unexpectedMessage
	}

	return cleanResponse(response.Candidates[0].Content.Parts[0].Text)
}

func (g *GeminiClient) failureMessage(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.log.WithField("state", g.breaker.State().String()).Warn("Gemini circuit breaker open, request rejected")
		return unavailableMessage
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		g.log.WithFields(logrus.Fields{
			"status": statusErr.StatusCode,
			"body":   statusErr.Body,
		}).Error("Gemini API error")
		return fmt.Sprintf("Gemini API error: %d - please try again later.", statusErr.StatusCode)
	}

	g.log.WithError(err).Error("Unexpected error while calling Gemini API")
	return unavailableMessage
}

func (g *GeminiClient) call(ctx context.Context, prompt string) (*generateResponse, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.6,
			TopK:            32,
			TopP:            0.8,
			MaxOutputTokens: 1500,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := g.apiURL + "?key=" + g.apiKey
	g.log.WithField("url", maskKey(endpoint)).Info("Calling Gemini API")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// the transport error carries the full url
		return nil, fmt.Errorf("request failed: %s", maskKey(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &decoded, nil
}

func buildSummaryPrompt(text, analysisType, subreddit string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following Reddit posts from r/%s and provide a comprehensive professional summary. ", subreddit)
	if analysisType == "thread" {
		b.WriteString("The posts come from a single discussion thread. ")
	}
	b.WriteString("Focus on the community's trends, challenges, and opportunities. ")
	b.WriteString("Write in clean, readable paragraphs without any markdown formatting or special characters.\n\n")

	b.WriteString("Posts to analyze:\n")
	b.WriteString(clipText(text, promptTextLimit))

	b.WriteString("\n\nProvide analysis covering:\n")
	b.WriteString("1. Key themes and trending topics within the subreddit\n")
	b.WriteString("2. Common challenges faced by the community\n")
	b.WriteString("3. Career and industry trends if applicable\n")
	b.WriteString("4. Technical discussions and innovations\n")
	b.WriteString("5. Community sentiment and engagement patterns\n\n")

	b.WriteString("Write the response in clean, professional language suitable for business reporting. ")
	b.WriteString("Use proper paragraphs and avoid any special formatting characters.")

	return b.String()
}

func buildInsightsPrompt(text string, topics []string, subreddit string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Based on discussions in r/%s, provide actionable business insights for companies, recruiters, and stakeholders. ", subreddit)
	b.WriteString("Write in clean, readable format without any markdown or special characters.\n\n")

	b.WriteString("Key discussion topics identified: ")
	b.WriteString(strings.Join(topics, ", "))
	b.WriteString("\n\nContent summary:\n")
	b.WriteString(clipText(text, promptTextLimit))

	b.WriteString("\n\nProvide specific business insights on:\n")
	b.WriteString("1. Talent acquisition and retention strategies for this community\n")
	b.WriteString("2. Community pain points that should be addressed\n")
	b.WriteString("3. Emerging trends and technologies\n")
	b.WriteString("4. Market opportunities and gaps\n")
	b.WriteString("5. User behavior and engagement patterns\n")
	b.WriteString("6. Skills gaps and educational opportunities\n\n")

	b.WriteString("Format as clear, actionable recommendations that business leaders can implement. ")
	b.WriteString("Use professional language suitable for executive briefings.")

	return b.String()
}

// clipText keeps the first limit characters of text, marking the cut with "..."
func clipText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// cleanResponse strips markdown from generated text
func cleanResponse(response string) string {
	if strings.TrimSpace(response) == "" {
		return emptyResponseMessage
	}

	cleaned := boldPattern.ReplaceAllString(response, "$1")
	cleaned = italicPattern.ReplaceAllString(cleaned, "$1")
	cleaned = headerPattern.ReplaceAllString(cleaned, "")
	cleaned = codeFencePattern.ReplaceAllString(cleaned, "")
	cleaned = inlineCodePattern.ReplaceAllString(cleaned, "$1")
	cleaned = linkPattern.ReplaceAllString(cleaned, "$1")

	return strings.TrimSpace(cleaned)
}

func maskKey(s string) string {
	return apiKeyPattern.ReplaceAllString(s, "${1}****")
}
