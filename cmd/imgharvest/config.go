package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"imgharvest/pkg/config"
	"imgharvest/pkg/ui"
)

var configUserDir bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage imgharvest configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IMGHARVEST_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to ./imgharvest.yaml, to the path given with --config, or to
the per-user config directory with --user.`,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load configuration from all sources and check it.

This command checks:
  - YAML syntax
  - Value ranges
  - Output directory accessibility`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	initCmd.Flags().BoolVar(&configUserDir, "user", false, "write to the per-user config directory")
}

const exampleConfig = `# imgharvest configuration
#
# Every option can also be set with an IMGHARVEST_ environment variable,
# for example IMGHARVEST_IMAGE_DIR or IMGHARVEST_FETCH_CONCURRENCY.

search:
  # {query} is replaced with the URL-escaped query
  url_template: "https://www.google.com/search?hl=en&tbm=isch&q={query}"

browser:
  headless: true
  # Connect to an already running browser instead of launching one
  remote_url: ""
  bin_path: ""
  user_agent: ""
  navigation_timeout: 30s

scroll:
  # Expand signals per round, and the wait after each one
  steps_per_round: 50
  settle_delay: 2s
  # Rounds without height growth before the page counts as fully loaded
  no_growth_threshold: 2
  # Safety caps, 0 means no cap
  max_rounds: 0
  max_duration: 0s

extract:
  host_pattern: "encrypted-tbn0.gstatic.com"
  min_url_length: 50
  exclude_patterns:
    - favicon

fetch:
  timeout: 30s
  max_attempts: 2
  retry_delay: 1s
  max_image_bytes: 20971520
  # Parallel fetches; dedupe order is unaffected
  concurrency: 1

hash:
  # 8 gives the classic 64-bit average hash
  grid_size: 8

dedupe:
  # Hash images already in image_dir at startup
  seed_from_disk: true

output:
  image_dir: images
  caption_dir: titles
  metadata_dir: metadata
  save_metadata: false
  caption_label: "Title: "

logging:
  # debug, info, warn, error, disabled
  level: info
  # Optional log file in addition to stderr
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	switch {
	case configUserDir:
		configPath = config.DefaultConfigPath()
	case configPath == "":
		configPath = config.AppName + ".yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	p := ui.NewPrinter(cmd.OutOrStdout(), false)
	p.Success("Configuration file created: " + configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "1. Adjust output directories and scroll settings")
	fmt.Fprintln(cmd.OutOrStdout(), "2. Run 'imgharvest config validate' to check the configuration")
	fmt.Fprintln(cmd.OutOrStdout(), "3. Start harvesting with 'imgharvest' or 'imgharvest crawl <query>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))

	fmt.Fprintln(out, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintln(out, "2. Environment variables (IMGHARVEST_*)")
	if configFile != "" {
		fmt.Fprintf(out, "3. Configuration file: %s\n", configFile)
	} else {
		fmt.Fprintf(out, "3. Configuration file: ./%s.yaml or %s\n", config.AppName, config.DefaultConfigPath())
	}
	fmt.Fprintln(out, "4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p := ui.NewPrinter(out, false)

	cfg, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var warnings []string
	for _, dir := range []string{cfg.Output.ImageDir, cfg.Output.CaptionDir} {
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			return fmt.Errorf("output path is not a directory: %s", dir)
		} else if os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("%s does not exist yet and will be created", dir))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
	}
	if cfg.Scroll.MaxRounds == 0 && cfg.Scroll.MaxDuration == 0 {
		warnings = append(warnings, "scrolling is uncapped; set scroll.max_rounds or scroll.max_duration for unattended runs")
	}

	for _, w := range warnings {
		p.Warning("  - " + w)
	}
	p.Success("Configuration is valid")

	fmt.Fprintln(out, "\nConfiguration summary:")
	fmt.Fprintf(out, "  Image directory: %s\n", cfg.Output.ImageDir)
	fmt.Fprintf(out, "  Caption directory: %s\n", cfg.Output.CaptionDir)
	fmt.Fprintf(out, "  Scroll: %d steps/round, %s settle, stop after %d flat rounds\n",
		cfg.Scroll.StepsPerRound, cfg.Scroll.SettleDelay, cfg.Scroll.NoGrowthThreshold)
	fmt.Fprintf(out, "  Fetch concurrency: %d\n", cfg.Fetch.Concurrency)
	fmt.Fprintf(out, "  Seed from disk: %t\n", cfg.Dedupe.SeedFromDisk)
	fmt.Fprintf(out, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
