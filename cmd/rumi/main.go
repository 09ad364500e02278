package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dotsetgreg/rumi/pkg/ai"
	"github.com/dotsetgreg/rumi/pkg/config"
	"github.com/dotsetgreg/rumi/pkg/logger"
	"github.com/dotsetgreg/rumi/pkg/memory"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "rumi"

// formatVersion returns the version string with optional git commit
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func formatBuildInfo() (build string, goVer string) {
	build = buildTime
	goVer = goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the config, then applies its log level.
func loadConfig(path string, debug bool) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*memory.SQLiteStore, error) {
	return memory.Open(memory.Config{
		Path:         cfg.StoragePath(),
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		BusyTimeout:  cfg.BusyTimeout(),
		QueryTimeout: cfg.QueryTimeout(),
	})
}

func newAIClient(cfg *config.Config) (*ai.OpenAIClient, error) {
	return ai.NewOpenAIClient(ai.ClientConfig{
		APIKey:              cfg.GetAPIKey(),
		BaseURL:             cfg.GetBaseURL(),
		Model:               cfg.AI.Model,
		SummaryTemperature:  cfg.AI.SummaryTemperature,
		AnalysisTemperature: cfg.AI.AnalysisTemperature,
		SummaryMaxTokens:    cfg.AI.SummaryMaxTokens,
		AnalysisMaxTokens:   cfg.AI.AnalysisMaxTokens,
		ChatTemperature:     cfg.AI.ChatTemperature,
		RuminateTemperature: cfg.AI.RuminateTemperature,
		ChatMaxTokens:       cfg.AI.ChatMaxTokens,
		RequestTimeout:      time.Duration(cfg.AI.RequestTimeoutSeconds) * time.Second,
		MaxRetries:          2,
	})
}

func retentionPolicy(cfg *config.Config) memory.RetentionPolicy {
	return memory.RetentionPolicy{
		RawDays:     cfg.Retention.RawDays,
		SummaryDays: cfg.Retention.SummaryDays,
	}
}
