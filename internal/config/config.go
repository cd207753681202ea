package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"feedcorpus/internal/domain"
)

const (
	configPathEnv    = "FEEDCORPUS_CONFIG"
	corpusPathEnv    = "FEEDCORPUS_CORPUS"
	analyticsPathEnv = "FEEDCORPUS_ANALYTICS_DB"
	geminiAPIKeyEnv  = "GEMINI_API_KEY"
	geminiModelEnv   = "GEMINI_MODEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Relevance RelevanceConfig `yaml:"relevance"`
	Keywords  KeywordConfig   `yaml:"keywords"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CorpusConfig locates the snapshot file.
type CorpusConfig struct {
	Path string `yaml:"path"`
}

// AnalyticsConfig locates the SQLite analytics database.
type AnalyticsConfig struct {
	Path string `yaml:"path"`
}

// GeminiConfig defines how to contact the generation API.
type GeminiConfig struct {
	Endpoint           string `yaml:"endpoint"`
	Model              string `yaml:"model"`
	APIKey             string `yaml:"apiKey"`
	Attempts           int    `yaml:"attempts"`
	BackoffBaseSeconds int    `yaml:"backoffBaseSeconds"`
}

// BackoffBase resolves the initial quota-retry delay.
func (g GeminiConfig) BackoffBase() time.Duration {
	return time.Duration(g.BackoffBaseSeconds) * time.Second
}

// EnrichConfig tunes the batch scheduler and convergence loop.
type EnrichConfig struct {
	BatchSize             int `yaml:"batchSize"`
	CheckpointInterval    int `yaml:"checkpointInterval"`
	PacingSeconds         int `yaml:"pacingSeconds"`
	ConvergePauseSeconds  int `yaml:"convergePauseSeconds"`
	MaxIterations         int `yaml:"maxIterations"`
	PreferredKeywordLimit int `yaml:"preferredKeywordLimit"`
}

// Pacing resolves the inter-item delay within a batch.
func (e EnrichConfig) Pacing() time.Duration {
	return time.Duration(e.PacingSeconds) * time.Second
}

// ConvergePause resolves the pause between outer-loop iterations.
func (e EnrichConfig) ConvergePause() time.Duration {
	return time.Duration(e.ConvergePauseSeconds) * time.Second
}

// RelevanceConfig tunes the relevance-scoring pass.
type RelevanceConfig struct {
	PacingSeconds int `yaml:"pacingSeconds"`
}

// Pacing resolves the delay between scoring calls.
func (r RelevanceConfig) Pacing() time.Duration {
	return time.Duration(r.PacingSeconds) * time.Second
}

// KeywordConfig defines the focus topic and the keyword exclusion list.
type KeywordConfig struct {
	FocusTopic string   `yaml:"focusTopic"`
	Excluded   []string `yaml:"excluded"`
}

// FetchConfig bounds the best-effort article content fetch.
type FetchConfig struct {
	MaxBytes       int `yaml:"maxBytes"`
	ExcerptChars   int `yaml:"excerptChars"`
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// Timeout resolves the per-fetch deadline.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// WatchConfig defines the period of the resident watch mode.
type WatchConfig struct {
	IntervalMinutes int `yaml:"intervalMinutes"`
}

// Interval resolves the watch period.
func (w WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMinutes) * time.Minute
}

// LoggingConfig selects the log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(corpusPathEnv); v != "" {
		c.Corpus.Path = v
	}

	if v := os.Getenv(analyticsPathEnv); v != "" {
		c.Analytics.Path = v
	}

	if v := os.Getenv(geminiAPIKeyEnv); v != "" {
		c.Gemini.APIKey = v
	}

	if v := os.Getenv(geminiModelEnv); v != "" {
		c.Gemini.Model = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Corpus.Path != "" {
		base.Corpus = override.Corpus
	}

	if override.Analytics.Path != "" {
		base.Analytics = override.Analytics
	}

	if override.Gemini.Endpoint != "" {
		base.Gemini.Endpoint = override.Gemini.Endpoint
	}
	if override.Gemini.Model != "" {
		base.Gemini.Model = override.Gemini.Model
	}
	if override.Gemini.APIKey != "" {
		base.Gemini.APIKey = override.Gemini.APIKey
	}
	if override.Gemini.Attempts > 0 {
		base.Gemini.Attempts = override.Gemini.Attempts
	}
	if override.Gemini.BackoffBaseSeconds > 0 {
		base.Gemini.BackoffBaseSeconds = override.Gemini.BackoffBaseSeconds
	}

	if override.Enrich.BatchSize > 0 {
		base.Enrich.BatchSize = override.Enrich.BatchSize
	}
	if override.Enrich.CheckpointInterval > 0 {
		base.Enrich.CheckpointInterval = override.Enrich.CheckpointInterval
	}
	if override.Enrich.PacingSeconds > 0 {
		base.Enrich.PacingSeconds = override.Enrich.PacingSeconds
	}
	if override.Enrich.ConvergePauseSeconds > 0 {
		base.Enrich.ConvergePauseSeconds = override.Enrich.ConvergePauseSeconds
	}
	if override.Enrich.MaxIterations > 0 {
		base.Enrich.MaxIterations = override.Enrich.MaxIterations
	}
	if override.Enrich.PreferredKeywordLimit > 0 {
		base.Enrich.PreferredKeywordLimit = override.Enrich.PreferredKeywordLimit
	}

	if override.Relevance.PacingSeconds > 0 {
		base.Relevance.PacingSeconds = override.Relevance.PacingSeconds
	}

	if override.Keywords.FocusTopic != "" {
		base.Keywords.FocusTopic = override.Keywords.FocusTopic
	}
	if len(override.Keywords.Excluded) > 0 {
		base.Keywords.Excluded = override.Keywords.Excluded
	}

	if override.Fetch.MaxBytes > 0 {
		base.Fetch.MaxBytes = override.Fetch.MaxBytes
	}
	if override.Fetch.ExcerptChars > 0 {
		base.Fetch.ExcerptChars = override.Fetch.ExcerptChars
	}
	if override.Fetch.TimeoutSeconds > 0 {
		base.Fetch.TimeoutSeconds = override.Fetch.TimeoutSeconds
	}

	if override.Watch.IntervalMinutes > 0 {
		base.Watch.IntervalMinutes = override.Watch.IntervalMinutes
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Corpus:    CorpusConfig{Path: "feed.json"},
		Analytics: AnalyticsConfig{Path: "analytics.db"},
		Gemini: GeminiConfig{
			Endpoint:           "https://generativelanguage.googleapis.com/v1beta",
			Model:              "gemini-flash-latest",
			APIKey:             "",
			Attempts:           3,
			BackoffBaseSeconds: 10,
		},
		Enrich: EnrichConfig{
			BatchSize:             10,
			CheckpointInterval:    5,
			PacingSeconds:         7,
			ConvergePauseSeconds:  2,
			MaxIterations:         100,
			PreferredKeywordLimit: 20,
		},
		Relevance: RelevanceConfig{PacingSeconds: 1},
		Keywords: KeywordConfig{
			FocusTopic: "haptic/tactile feedback",
			Excluded:   domain.DefaultExcludedKeywords,
		},
		Fetch: FetchConfig{
			MaxBytes:       10000,
			ExcerptChars:   3000,
			TimeoutSeconds: 10,
		},
		Watch:   WatchConfig{IntervalMinutes: 360},
		Logging: LoggingConfig{Level: "info"},
	}
}
