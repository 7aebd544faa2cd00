// Package config provides YAML-based configuration loading for oso.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level oso configuration, loaded from config.yaml.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	Reddit    RedditConfig    `yaml:"reddit"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Workers   int             `yaml:"workers"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// DBConfig holds connection settings for the message store. When SQLite is
// set the MySQL fields are ignored and a local file store is used instead.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SQLite   string `yaml:"sqlite"`
}

// RedditConfig holds OAuth2 credentials for the Reddit script app. Secrets
// left empty in YAML fall back to the environment.
type RedditConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	UserAgent    string `yaml:"user_agent"`
	Subreddit    string `yaml:"subreddit"`
}

// GeminiConfig selects the models behind the content capabilities.
type GeminiConfig struct {
	APIKey          string `yaml:"api_key"`
	ClassifierModel string `yaml:"classifier_model"`
	StoryModel      string `yaml:"story_model"`
	EmbeddingModel  string `yaml:"embedding_model"`
	MaxStoryChars   int    `yaml:"max_story_chars"`
}

// PipelineConfig tunes the lease and retry discipline.
type PipelineConfig struct {
	LeaseTimeoutSeconds   int  `yaml:"lease_timeout_seconds"`
	AdapterTimeoutSeconds int  `yaml:"adapter_timeout_seconds"`
	MaxRetries            int  `yaml:"max_retries"`
	ClaimBatch            int  `yaml:"claim_batch"`
	LookbackDays          int  `yaml:"lookback_days"`
	PublishEnabled        bool `yaml:"publish_enabled"`
	PublishMinGapHours    int  `yaml:"publish_min_gap_hours"`
}

// LeaseTimeout returns the lease timeout as a duration.
func (p PipelineConfig) LeaseTimeout() time.Duration {
	return time.Duration(p.LeaseTimeoutSeconds) * time.Second
}

// AdapterTimeout returns the per-call adapter timeout as a duration.
func (p PipelineConfig) AdapterTimeout() time.Duration {
	return time.Duration(p.AdapterTimeoutSeconds) * time.Second
}

// Lookback returns how far back queries reach when building sender history
// and reply threads.
func (p PipelineConfig) Lookback() time.Duration {
	return time.Duration(p.LookbackDays) * 24 * time.Hour
}

// PublishMinGap returns the minimum spacing between published posts from
// the same sender.
func (p PipelineConfig) PublishMinGap() time.Duration {
	return time.Duration(p.PublishMinGapHours) * time.Hour
}

// IngestConfig controls inbox polling.
type IngestConfig struct {
	Schedule string `yaml:"schedule"` // 5-field cron expression
	Limit    int    `yaml:"limit"`
}

// DashboardConfig controls the status HTTP server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig wires operator alert channels. Any platform left blank is
// disabled.
type NotifyConfig struct {
	Discord DiscordNotifyConfig `yaml:"discord"`
	Slack   SlackNotifyConfig   `yaml:"slack"`
}

// DiscordNotifyConfig holds Discord bot credentials for alerts.
type DiscordNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackNotifyConfig holds Slack bot credentials for alerts.
type SlackNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values. Secrets absent from
// the file are pulled from the environment so config.yaml can be committed
// without credentials.
func (c *Config) applyDefaults() {
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.User == "" {
		c.DB.User = "oso"
	}
	if c.DB.Database == "" {
		c.DB.Database = "oso"
	}

	if c.Reddit.ClientID == "" {
		c.Reddit.ClientID = os.Getenv("REDDIT_CLIENT_ID")
	}
	if c.Reddit.ClientSecret == "" {
		c.Reddit.ClientSecret = os.Getenv("REDDIT_CLIENT_SECRET")
	}
	if c.Reddit.Username == "" {
		c.Reddit.Username = os.Getenv("REDDIT_USERNAME")
	}
	if c.Reddit.Password == "" {
		c.Reddit.Password = os.Getenv("REDDIT_PASSWORD")
	}
	if c.Reddit.UserAgent == "" {
		c.Reddit.UserAgent = "oso/1.0 (by /u/" + c.Reddit.Username + ")"
	}
	if c.Reddit.Subreddit == "" {
		// Post to the bot's own profile unless told otherwise.
		c.Reddit.Subreddit = "u_" + c.Reddit.Username
	}

	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Gemini.ClassifierModel == "" {
		c.Gemini.ClassifierModel = "gemini-2.0-flash"
	}
	if c.Gemini.StoryModel == "" {
		c.Gemini.StoryModel = "gemini-2.0-flash"
	}
	if c.Gemini.EmbeddingModel == "" {
		c.Gemini.EmbeddingModel = "gemini-embedding-001"
	}
	if c.Gemini.MaxStoryChars == 0 {
		c.Gemini.MaxStoryChars = 2000
	}

	if c.Pipeline.LeaseTimeoutSeconds == 0 {
		c.Pipeline.LeaseTimeoutSeconds = 300
	}
	if c.Pipeline.AdapterTimeoutSeconds == 0 {
		c.Pipeline.AdapterTimeoutSeconds = 60
	}
	if c.Pipeline.MaxRetries == 0 {
		c.Pipeline.MaxRetries = 3
	}
	if c.Pipeline.ClaimBatch == 0 {
		c.Pipeline.ClaimBatch = 10
	}
	if c.Pipeline.LookbackDays == 0 {
		c.Pipeline.LookbackDays = 7
	}
	if c.Pipeline.PublishMinGapHours == 0 {
		c.Pipeline.PublishMinGapHours = 24
	}

	if c.Ingest.Schedule == "" {
		c.Ingest.Schedule = "*/5 * * * *"
	}
	if c.Ingest.Limit == 0 {
		c.Ingest.Limit = 100
	}

	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Reddit.ClientID == "" {
		errs = append(errs, "reddit.client_id is required (or REDDIT_CLIENT_ID)")
	}
	if c.Reddit.Username == "" {
		errs = append(errs, "reddit.username is required (or REDDIT_USERNAME)")
	}
	if c.Gemini.APIKey == "" {
		errs = append(errs, "gemini.api_key is required (or GEMINI_API_KEY)")
	}
	if c.Pipeline.LeaseTimeoutSeconds <= c.Pipeline.AdapterTimeoutSeconds {
		errs = append(errs, "pipeline.lease_timeout_seconds must exceed adapter_timeout_seconds")
	}
	if c.Workers < 1 {
		errs = append(errs, "workers must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
