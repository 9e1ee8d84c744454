package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName is used for config file discovery and environment variable prefixes
const AppName = "imgharvest"

// Config holds all configuration options for the image harvester
type Config struct {
	// Search engine settings
	Search SearchConfig `yaml:"search" json:"search"`

	// Headless browser settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Scroll expansion settings
	Scroll ScrollConfig `yaml:"scroll" json:"scroll"`

	// Candidate extraction and prefiltering
	Extract ExtractConfig `yaml:"extract" json:"extract"`

	// Image fetch settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Perceptual hash settings
	Hash HashConfig `yaml:"hash" json:"hash"`

	// Dedupe store settings
	Dedupe DedupeConfig `yaml:"dedupe" json:"dedupe"`

	// Output locations
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SearchConfig holds the results page location
type SearchConfig struct {
	// URLTemplate must contain {query}; the query is URL-escaped before substitution
	URLTemplate string `yaml:"url_template" json:"url_template"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	RemoteURL         string        `yaml:"remote_url" json:"remote_url"`
	BinPath           string        `yaml:"bin_path" json:"bin_path"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
}

// ScrollConfig holds the expansion state machine parameters
type ScrollConfig struct {
	StepsPerRound     int           `yaml:"steps_per_round" json:"steps_per_round"`
	SettleDelay       time.Duration `yaml:"settle_delay" json:"settle_delay"`
	NoGrowthThreshold int           `yaml:"no_growth_threshold" json:"no_growth_threshold"`
	MaxRounds         int           `yaml:"max_rounds" json:"max_rounds"`
	MaxDuration       time.Duration `yaml:"max_duration" json:"max_duration"`
}

// ExtractConfig holds candidate selection and prefilter settings
type ExtractConfig struct {
	HostPattern     string   `yaml:"host_pattern" json:"host_pattern"`
	MinURLLength    int      `yaml:"min_url_length" json:"min_url_length"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
}

// FetchConfig holds image download settings
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxImageBytes int64         `yaml:"max_image_bytes" json:"max_image_bytes"`
	Concurrency   int           `yaml:"concurrency" json:"concurrency"`
}

// HashConfig holds fingerprint settings
type HashConfig struct {
	GridSize int `yaml:"grid_size" json:"grid_size"`
}

// DedupeConfig holds dedupe store settings
type DedupeConfig struct {
	SeedFromDisk bool `yaml:"seed_from_disk" json:"seed_from_disk"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	ImageDir     string `yaml:"image_dir" json:"image_dir"`
	CaptionDir   string `yaml:"caption_dir" json:"caption_dir"`
	MetadataDir  string `yaml:"metadata_dir" json:"metadata_dir"`
	SaveMetadata bool   `yaml:"save_metadata" json:"save_metadata"`
	CaptionLabel string `yaml:"caption_label" json:"caption_label"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			URLTemplate: "https://www.google.com/search?hl=en&tbm=isch&q={query}",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
		},
		Scroll: ScrollConfig{
			StepsPerRound:     50,
			SettleDelay:       2 * time.Second,
			NoGrowthThreshold: 2,
			MaxRounds:         0, // 0 means no cap
			MaxDuration:       0,
		},
		Extract: ExtractConfig{
			HostPattern:     "encrypted-tbn0.gstatic.com",
			MinURLLength:    50,
			ExcludePatterns: []string{"favicon"},
		},
		Fetch: FetchConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			MaxAttempts:   2,
			RetryDelay:    time.Second,
			MaxImageBytes: 20 << 20,
			Concurrency:   1,
		},
		Hash: HashConfig{
			GridSize: 8,
		},
		Dedupe: DedupeConfig{
			SeedFromDisk: true,
		},
		Output: OutputConfig{
			ImageDir:     "images",
			CaptionDir:   "titles",
			MetadataDir:  "metadata",
			SaveMetadata: false,
			CaptionLabel: "Title: ",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// envKey builds the prefixed environment variable name
func envKey(name string) string {
	return strings.ToUpper(AppName) + "_" + name
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv(envKey("SEARCH_URL_TEMPLATE")); v != "" {
		c.Search.URLTemplate = v
	}
	if v := os.Getenv(envKey("BROWSER_REMOTE_URL")); v != "" {
		c.Browser.RemoteURL = v
	}
	if v := os.Getenv(envKey("BROWSER_BIN")); v != "" {
		c.Browser.BinPath = v
	}
	if v := os.Getenv(envKey("HEADLESS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envKey("HEADLESS"), err))
		} else {
			c.Browser.Headless = b
		}
	}

	// Scroll tuning
	if v := os.Getenv(envKey("SCROLL_STEPS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envKey("SCROLL_STEPS"), err))
		} else {
			c.Scroll.StepsPerRound = n
		}
	}
	if v := os.Getenv(envKey("SETTLE_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envKey("SETTLE_DELAY"), err))
		} else {
			c.Scroll.SettleDelay = d
		}
	}
	if v := os.Getenv(envKey("MAX_ROUNDS")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envKey("MAX_ROUNDS"), err))
		} else {
			c.Scroll.MaxRounds = n
		}
	}

	if v := os.Getenv(envKey("FETCH_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envKey("FETCH_CONCURRENCY"), err))
		} else {
			c.Fetch.Concurrency = n
		}
	}

	// Output directories
	if v := os.Getenv(envKey("IMAGE_DIR")); v != "" {
		c.Output.ImageDir = v
	}
	if v := os.Getenv(envKey("CAPTION_DIR")); v != "" {
		c.Output.CaptionDir = v
	}

	if v := os.Getenv(envKey("LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		AppName + ".yaml",
		AppName + ".yml",
		"." + AppName + ".yaml",
		"." + AppName + ".yml",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	if p, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
		return p
	}

	return ""
}

// DefaultConfigPath returns the per-user config location under the XDG config home
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if !strings.Contains(c.Search.URLTemplate, "{query}") {
		errs = append(errs, errors.New("search url template must contain {query}"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}

	// Scroll state machine
	if c.Scroll.StepsPerRound <= 0 {
		errs = append(errs, errors.New("steps per round must be positive"))
	}
	if c.Scroll.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay cannot be negative"))
	}
	if c.Scroll.NoGrowthThreshold <= 0 {
		errs = append(errs, errors.New("no-growth threshold must be positive"))
	}
	if c.Scroll.MaxRounds < 0 {
		errs = append(errs, errors.New("max rounds cannot be negative"))
	}
	if c.Scroll.MaxDuration < 0 {
		errs = append(errs, errors.New("max duration cannot be negative"))
	}

	if c.Extract.MinURLLength < 0 {
		errs = append(errs, errors.New("minimum URL length cannot be negative"))
	}

	// Fetch settings
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch timeout must be positive"))
	}
	if c.Fetch.MaxAttempts <= 0 {
		errs = append(errs, errors.New("fetch max attempts must be positive"))
	}
	if c.Fetch.Concurrency <= 0 {
		errs = append(errs, errors.New("fetch concurrency must be positive"))
	}
	if c.Fetch.Concurrency > 16 {
		errs = append(errs, errors.New("fetch concurrency should not exceed 16"))
	}


	if c.Hash.GridSize < 8 || (c.Hash.GridSize*c.Hash.GridSize)%64 != 0 {
		errs = append(errs, errors.New("hash grid size must be at least 8 and give a multiple of 64 cells"))
	}

	// Output settings
	if c.Output.ImageDir == "" {
		errs = append(errs, errors.New("image directory is required"))
	}
	if c.Output.CaptionDir == "" {
		errs = append(errs, errors.New("caption directory is required"))
	}
	if c.Output.SaveMetadata && c.Output.MetadataDir == "" {
		errs = append(errs, errors.New("metadata directory is required when save_metadata is set"))
	}
	if c.Output.ImageDir != "" && filepath.Clean(c.Output.ImageDir) == filepath.Clean(c.Output.CaptionDir) {
		errs = append(errs, errors.New("image and caption directories must differ"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["image-dir"].(string); ok && v != "" {
		c.Output.ImageDir = v
	}
	if v, ok := flags["caption-dir"].(string); ok && v != "" {
		c.Output.CaptionDir = v
	}
	if v, ok := flags["save-metadata"].(bool); ok {
		c.Output.SaveMetadata = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["remote-url"].(string); ok && v != "" {
		c.Browser.RemoteURL = v
	}
	if v, ok := flags["steps"].(int); ok && v > 0 {
		c.Scroll.StepsPerRound = v
	}
	if v, ok := flags["settle-delay"].(time.Duration); ok && v >= 0 {
		c.Scroll.SettleDelay = v
	}
	if v, ok := flags["max-rounds"].(int); ok && v >= 0 {
		c.Scroll.MaxRounds = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Fetch.Concurrency = v
	}
	if v, ok := flags["no-seed"].(bool); ok && v {
		c.Dedupe.SeedFromDisk = false
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(xdg.ConfigHome, AppName, AppName+".env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
