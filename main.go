package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-analyzer/analysis"
	"github.com/brettboylen/reddit-analyzer/api"
	"github.com/brettboylen/reddit-analyzer/llm"
	"github.com/brettboylen/reddit-analyzer/server"
	"github.com/brettboylen/reddit-analyzer/service"
	"github.com/brettboylen/reddit-analyzer/stats"
	"github.com/brettboylen/reddit-analyzer/utils"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "debug", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := setupLogger(*logLevel)
	log.Info("Starting Reddit Analyzer")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"api_base_url":  config.Reddit.APIBaseURL,
		"app_only_auth": config.Reddit.Username == "",
		"sort_delay":    config.Reddit.SortDelay,
		"server_port":   config.Server.Port,
	}).Info("Configuration loaded")

	lexicon, err := analysis.LoadLexicon(config.Analysis.LexiconPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load lexicon")
	}

	tokens := api.NewTokenProvider(api.TokenConfig{
		ClientID:     config.Reddit.ClientID,
		ClientSecret: config.Reddit.ClientSecret,
		Username:     config.Reddit.Username,
		Password:     config.Reddit.Password,
		UserAgent:    config.Reddit.UserAgent,
		AuthURL:      config.Reddit.AuthURL,
		Timeout:      config.Reddit.RequestTimeout,
	}, log)

	redditAPI := api.NewRedditAPI(
		tokens,
		config.Reddit.APIBaseURL,
		config.Reddit.UserAgent,
		config.Reddit.MaxRequestsPerMinute,
		config.Reddit.RequestTimeout,
		log,
	)

	collector := stats.NewCollector(redditAPI, redditAPI.BaseURL(), config.Reddit.SortDelay, log)
	gemini := llm.NewGeminiClient(config.Gemini.APIKey, config.Gemini.APIURL, config.Gemini.Timeout, log)
	analyzer := service.NewAnalyzer(collector, analysis.NewEngine(lexicon), gemini, log)

	srv := server.New(server.Config{
		Port:                 config.Server.Port,
		CORSOrigins:          config.Server.CORSOrigins,
		MaxRequestsPerMinute: config.Reddit.MaxRequestsPerMinute,
	}, analyzer, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			log.WithError(err).Error("API server stopped unexpectedly")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, log)
	<-done
	log.Info("Reddit Analyzer stopped")
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// waitForShutdown waits for a shutdown signal or for ctx to end
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
}
