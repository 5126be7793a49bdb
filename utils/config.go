package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultUserAgent  = "RedditAnalysisBot/1.0 (Educational Research)"
	defaultAPIBaseURL = "https://oauth.reddit.com"
	defaultAuthURL    = "https://www.reddit.com/api/v1/access_token"
	maxSortDelay      = 5 * time.Second
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Reddit   RedditConfig
	Gemini   GeminiConfig
	Analysis AnalysisConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// RedditConfig holds Reddit API configuration
type RedditConfig struct {
	ClientID             string
	ClientSecret         string
	Username             string
	Password             string
	UserAgent            string
	APIBaseURL           string
	AuthURL              string
	MaxRequestsPerMinute int
	RequestTimeout       time.Duration
	SortDelay            time.Duration
}

// GeminiConfig holds the text-generation API configuration
type GeminiConfig struct {
	APIKey  string
	APIURL  string
	Timeout time.Duration
}

// AnalysisConfig holds metric settings
type AnalysisConfig struct {
	LexiconPath string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

// LoadConfig loads configuration from the environment, reading envPath
// first when it exists. Variables already set in the environment win.
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
		log.WithField("file", envPath).Warn("No .env file found, using environment only")
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Reddit Analyzer"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Reddit: RedditConfig{
			ClientID:             getEnv("REDDIT_CLIENT_ID", ""),
			ClientSecret:         getEnv("REDDIT_CLIENT_SECRET", ""),
			Username:             getEnv("REDDIT_USERNAME", ""),
			Password:             getEnv("REDDIT_PASSWORD", ""),
			UserAgent:            getEnv("REDDIT_USER_AGENT", defaultUserAgent),
			APIBaseURL:           getEnv("REDDIT_API_BASE_URL", defaultAPIBaseURL),
			AuthURL:              getEnv("REDDIT_AUTH_URL", defaultAuthURL),
			MaxRequestsPerMinute: getEnvAsInt("REDDIT_MAX_REQUESTS_PER_MINUTE", 100),
			RequestTimeout:       getEnvAsDuration("REDDIT_REQUEST_TIMEOUT", 30*time.Second),
			SortDelay:            getEnvAsDuration("REDDIT_SORT_DELAY", 500*time.Millisecond),
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			APIURL:  getEnv("GEMINI_API_URL", ""),
			Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
		},
		Analysis: AnalysisConfig{
			LexiconPath: getEnv("LEXICON_PATH", ""),
		},
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			CORSOrigins: parseList(getEnv("SERVER_CORS_ORIGIN", "http://localhost:3000")),
		},
	}

	// validation
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// parseList parses a comma-separated list, dropping blank entries
func parseList(value string) []string {
	parts := strings.Split(value, ",")

	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}

	return items
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms", "2m") or whole seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	// Check Reddit API credentials
	if config.Reddit.ClientID == "" {
		return fmt.Errorf("REDDIT_CLIENT_ID environment variable is required")
	}
	if config.Reddit.ClientSecret == "" {
		return fmt.Errorf("REDDIT_CLIENT_SECRET environment variable is required")
	}

	// the password grant needs both halves; neither means app-only auth
	if (config.Reddit.Username == "") != (config.Reddit.Password == "") {
		return fmt.Errorf("REDDIT_USERNAME and REDDIT_PASSWORD must be set together")
	}

	// User-Agent required per API documentation; it has strict requirements. see example.env
	if config.Reddit.UserAgent == "" {
		return fmt.Errorf("REDDIT_USER_AGENT environment variable is required")
	}
	if config.Reddit.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("REDDIT_MAX_REQUESTS_PER_MINUTE must be positive")
	}
	if config.Reddit.RequestTimeout <= 0 {
		return fmt.Errorf("REDDIT_REQUEST_TIMEOUT must be positive")
	}
	if config.Reddit.SortDelay < 0 || config.Reddit.SortDelay > maxSortDelay {
		return fmt.Errorf("REDDIT_SORT_DELAY must be between 0 and %s", maxSortDelay)
	}
	if config.Gemini.Timeout <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be positive")
	}
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if len(config.Server.CORSOrigins) == 0 {
		return fmt.Errorf("SERVER_CORS_ORIGIN must name at least one origin")
	}

	return nil
}
