// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Modes select which source adapter feeds the pipeline.
const (
	ModeCrawl   = "crawl"
	ModeHarvest = "harvest"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Mode      string          `mapstructure:"mode"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	GenAI     GenAIConfig     `mapstructure:"genai"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs the domain-crawler source adapter.
type CrawlerConfig struct {
	SeedURL            string   `mapstructure:"seed_url"`
	ExcludedSegments   []string `mapstructure:"excluded_segments"`
	MaxPages           int      `mapstructure:"max_pages"`
	BoilerplatePattern string   `mapstructure:"boilerplate_pattern"`
	DelaySeconds       int      `mapstructure:"delay_seconds"`
	TimeoutSeconds     int      `mapstructure:"timeout_seconds"`
	UserAgent          string   `mapstructure:"user_agent"`
	RespectRobots      bool     `mapstructure:"respect_robots"`
}

// HarvestConfig governs the keyword-harvester source adapter.
type HarvestConfig struct {
	Topics            []string `mapstructure:"topics"`
	TopicsFile        string   `mapstructure:"topics_file"`
	MaxResults        int      `mapstructure:"max_results"`
	Iterations        int      `mapstructure:"iterations"`
	DelaySeconds      int      `mapstructure:"delay_seconds"`
	TimeoutSeconds    int      `mapstructure:"timeout_seconds"`
	APIBaseURL        string   `mapstructure:"api_base_url"`
	APIKey            string   `mapstructure:"api_key"`
	TranscriptBaseURL string   `mapstructure:"transcript_base_url"`
}

// QueueConfig controls the durable work queue.
type QueueConfig struct {
	Path     string `mapstructure:"path"`
	Capacity int    `mapstructure:"capacity"`
}

// CacheConfig points at the persisted identity sets.
type CacheConfig struct {
	VisitedPath string `mapstructure:"visited_path"`
	FailedPath  string `mapstructure:"failed_path"`
}

// StorageConfig sets the artifact and summary directories.
type StorageConfig struct {
	ArtifactDir string `mapstructure:"artifact_dir"`
	SummaryDir  string `mapstructure:"summary_dir"`
}

// SummaryConfig sizes chunks to the generation context window.
type SummaryConfig struct {
	ContextWindow  int    `mapstructure:"context_window"`
	Overlap        int    `mapstructure:"overlap"`
	PromptTemplate string `mapstructure:"prompt_template"`
}

// GenAIConfig points at the generation service.
type GenAIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	EmbedModel     string `mapstructure:"embed_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ServerConfig controls the ops HTTP endpoint.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// TelemetryConfig controls the console reporter.
type TelemetryConfig struct {
	ErrorsShown     int `mapstructure:"errors_shown"`
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONDENSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeCrawl)
	v.SetDefault("crawler.max_pages", 10000)
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.timeout_seconds", 10)
	v.SetDefault("crawler.user_agent", "condenser-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("harvest.max_results", 40)
	v.SetDefault("harvest.iterations", 1000)
	v.SetDefault("harvest.delay_seconds", 1)
	v.SetDefault("harvest.timeout_seconds", 15)
	v.SetDefault("queue.path", "data/queue.json")
	v.SetDefault("queue.capacity", 100)
	v.SetDefault("cache.visited_path", "data/processed.json")
	v.SetDefault("cache.failed_path", "data/failed.json")
	v.SetDefault("storage.artifact_dir", "data/text_data")
	v.SetDefault("storage.summary_dir", "data/summaries")
	v.SetDefault("summary.context_window", 10000)
	v.SetDefault("summary.overlap", 1000)
	v.SetDefault("summary.prompt_template",
		"You are my assistant, we work to summarize reference pages. "+
			"Be as concise as possible and keep the main points.\n\n"+
			"page text: %s\n\nSummary:")
	v.SetDefault("genai.base_url", "http://127.0.0.1:11434")
	v.SetDefault("genai.model", "llama3.1:8b")
	v.SetDefault("genai.embed_model", "snowflake-arctic-embed2:latest")
	v.SetDefault("genai.timeout_seconds", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("telemetry.errors_shown", 10)
	v.SetDefault("telemetry.interval_seconds", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Mode != ModeCrawl && c.Mode != ModeHarvest {
		return fmt.Errorf("mode must be %q or %q", ModeCrawl, ModeHarvest)
	}
	if c.Mode == ModeCrawl && c.Crawler.SeedURL == "" {
		return fmt.Errorf("crawler.seed_url must be set in crawl mode")
	}
	if c.Mode == ModeHarvest && len(c.Harvest.Topics) == 0 && c.Harvest.TopicsFile == "" {
		return fmt.Errorf("harvest.topics or harvest.topics_file must be set in harvest mode")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}
	if c.Summary.ContextWindow <= 0 {
		return fmt.Errorf("summary.context_window must be > 0")
	}
	if c.Summary.Overlap < 0 || c.Summary.Overlap >= c.Summary.ContextWindow {
		return fmt.Errorf("summary.overlap must satisfy 0 <= overlap < context_window")
	}
	if !strings.Contains(c.Summary.PromptTemplate, "%s") {
		return fmt.Errorf("summary.prompt_template must contain a %%s placeholder")
	}
	if c.GenAI.BaseURL == "" {
		return fmt.Errorf("genai.base_url must be set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// CrawlDelay returns the politeness delay between crawler fetches.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Crawler.DelaySeconds) * time.Second
}

// HarvestDelay returns the politeness delay between harvester fetches.
func (c Config) HarvestDelay() time.Duration {
	return time.Duration(c.Harvest.DelaySeconds) * time.Second
}

// ReportInterval returns the telemetry render period.
func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.Telemetry.IntervalSeconds) * time.Second
}
