package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"imgharvest/pkg/config"
	"imgharvest/pkg/logger"
	"imgharvest/pkg/runloop"
	"imgharvest/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	logLevel     string
	imageDir     string
	captionDir   string
	saveMetadata bool
	headless     bool
	remoteURL    string
	steps        int
	settleDelay  time.Duration
	maxRounds    int
	concurrency  int
	noSeed       bool
	forcePrompt  bool
)

// rootCmd runs the interactive query loop when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "imgharvest",
	Short: "Harvest deduplicated images from image search results",
	Long: `imgharvest reads search queries from standard input, one per line, and for
each query loads the image search results page in a headless browser, scrolls
it until no more results load, then downloads every thumbnail it has not seen
before.

Duplicates are detected with a perceptual average hash, so re-encoded copies
of the same picture are kept only once. Images already in the output directory
are hashed at startup and count as seen.

Type 'done' or send EOF to finish.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd, func(ctx context.Context, loop *runloop.Loop) (runloop.Totals, error) {
			return loop.Run(ctx)
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Red(err.Error()))
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default ./imgharvest.yaml or $XDG_CONFIG_HOME/imgharvest/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")

	f := rootCmd.Flags()
	addHarvestFlags(f)
	f.BoolVar(&forcePrompt, "prompt", false, "always show the query prompt, even when stdin is not a terminal")

	rootCmd.SetVersionTemplate(`imgharvest {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

type flagSet interface {
	StringVar(p *string, name, value, usage string)
	BoolVar(p *bool, name string, value bool, usage string)
	IntVar(p *int, name string, value int, usage string)
	DurationVar(p *time.Duration, name string, value time.Duration, usage string)
}

func addHarvestFlags(f flagSet) {
	f.StringVar(&imageDir, "image-dir", "", "directory for downloaded images")
	f.StringVar(&captionDir, "caption-dir", "", "directory for caption files")
	f.BoolVar(&saveMetadata, "save-metadata", false, "write a JSON metadata sidecar per image")
	f.BoolVar(&headless, "headless", true, "run the browser without a window")
	f.StringVar(&remoteURL, "remote-url", "", "connect to a running browser at this DevTools URL")
	f.IntVar(&steps, "steps", 0, "expand signals sent per scroll round")
	f.DurationVar(&settleDelay, "settle-delay", 0, "wait after each expand signal")
	f.IntVar(&maxRounds, "max-rounds", 0, "cap on scroll rounds (0 means no cap)")
	f.IntVar(&concurrency, "concurrency", 0, "parallel image fetches")
	f.BoolVar(&noSeed, "no-seed", false, "do not hash existing images at startup")
}

// collectFlags maps the flags the user actually set onto config keys
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		flags["log-level"] = logLevel
	}
	if changed("image-dir") {
		flags["image-dir"] = imageDir
	}
	if changed("caption-dir") {
		flags["caption-dir"] = captionDir
	}
	if changed("save-metadata") {
		flags["save-metadata"] = saveMetadata
	}
	if changed("headless") {
		flags["headless"] = headless
	}
	if changed("remote-url") {
		flags["remote-url"] = remoteURL
	}
	if changed("steps") {
		flags["steps"] = steps
	}
	if changed("settle-delay") {
		flags["settle-delay"] = settleDelay
	}
	if changed("max-rounds") {
		flags["max-rounds"] = maxRounds
	}
	if changed("concurrency") {
		flags["concurrency"] = concurrency
	}
	if changed("no-seed") {
		flags["no-seed"] = noSeed
	}
	return flags
}

// runHarvest loads config, wires the harvester and hands the loop to drive
func runHarvest(cmd *cobra.Command, drive func(context.Context, *runloop.Loop) (runloop.Totals, error)) error {
	cfg, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("imgharvest starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHarvester(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer h.Close()

	var opts []runloop.Option
	if forcePrompt {
		opts = append(opts, runloop.WithPrompt(true))
	}
	loop := runloop.New(h.session, h.blobs, os.Stdin, os.Stdout, log, opts...)

	totals, err := drive(ctx, loop)
	log.WithFields(map[string]interface{}{
		"queries":    totals.Queries,
		"downloaded": totals.Downloaded,
		"skipped":    totals.Skipped,
	}).Info("imgharvest finished")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
